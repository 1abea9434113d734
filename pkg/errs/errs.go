// Package errs 定义业务错误分类，供各上下文统一使用并由接口层映射为 HTTP 状态码
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	// KindValidation 入参缺失或非法，在访问存储前被拒绝
	KindValidation Kind = "VALIDATION"
	// KindNotFound 引用的实体不存在
	KindNotFound Kind = "NOT_FOUND"
	// KindStateConflict 实体不处于期望状态（重复处理、自转账、币种不匹配）
	KindStateConflict Kind = "STATE_CONFLICT"
	// KindInsufficientFunds 余额校验失败
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	// KindDependency 外部依赖（存储、价格源）不可用
	KindDependency Kind = "DEPENDENCY"
)

// Error 业务错误，携带分类与可读原因
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建业务错误
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap 包装底层错误
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Validation 入参错误
func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// NotFound 实体不存在
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Reason: resource + " not found"}
}

// StateConflict 状态冲突
func StateConflict(reason string) *Error {
	return &Error{Kind: KindStateConflict, Reason: reason}
}

// InsufficientFunds 余额不足
func InsufficientFunds(reason string) *Error {
	return &Error{Kind: KindInsufficientFunds, Reason: reason}
}

// Dependency 依赖不可用
func Dependency(reason string, err error) *Error {
	return &Error{Kind: KindDependency, Reason: reason, Err: err}
}

// KindOf 提取错误分类；非业务错误归为 KindDependency
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// IsKind 判断错误是否属于给定分类
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus 错误分类到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}
