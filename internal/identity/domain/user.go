// Package domain 身份上下文的领域模型：用户账户
package domain

import (
	"context"

	"gorm.io/gorm"
)

// Role 用户角色
type Role string

// Status 账户状态
type Status string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"

	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
)

// User 用户账户
// 推荐码在注册时生成且全局唯一；ReferredBy 存注册时填写的他人推荐码，
// 佣金级联按该码解析推荐人，码失效时静默跳过。
type User struct {
	gorm.Model
	// 用户 ID (业务主键)
	UserID string `gorm:"column:user_id;type:varchar(32);uniqueIndex;not null" json:"user_id"`
	// 用户名
	Username string `gorm:"column:username;type:varchar(32);uniqueIndex;not null" json:"username"`
	// 邮箱
	Email string `gorm:"column:email;type:varchar(128);uniqueIndex;not null" json:"email"`
	// 密码哈希
	PasswordHash string `gorm:"column:password_hash;type:varchar(128);not null" json:"-"`
	// 角色
	Role Role `gorm:"column:role;type:varchar(10);not null" json:"role"`
	// 状态
	Status Status `gorm:"column:status;type:varchar(10);not null" json:"status"`
	// 本人的推荐码，全局唯一
	ReferralCode string `gorm:"column:referral_code;type:varchar(16);uniqueIndex;not null" json:"referral_code"`
	// 注册时填写的他人推荐码
	ReferredBy string `gorm:"column:referred_by;type:varchar(16)" json:"referred_by,omitempty"`
}

// Blocked 账户是否被冻结
func (u *User) Blocked() bool {
	return u.Status == StatusBlocked
}

// UserRepository 用户仓储接口
// 查询方法在目标不存在时返回 (nil, nil)。
type UserRepository interface {
	// Create 创建用户
	Create(ctx context.Context, user *User) error
	// FindByUserID 根据用户 ID 获取用户
	FindByUserID(ctx context.Context, userID string) (*User, error)
	// FindByUsername 根据用户名获取用户
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByEmail 根据邮箱获取用户
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByReferralCode 根据推荐码获取用户
	FindByReferralCode(ctx context.Context, code string) (*User, error)
	// List 分页获取用户列表
	List(ctx context.Context, limit, offset int) ([]*User, int64, error)
	// UpdateStatus 更新账户状态
	UpdateStatus(ctx context.Context, userID string, status Status) error
	// UpdateRole 更新账户角色
	UpdateRole(ctx context.Context, userID string, role Role) error
}
