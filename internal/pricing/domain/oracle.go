// Package domain 行情上下文的领域模型：报价与价格预言机端口
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote 某资产在某一时刻的单价
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Oracle 价格预言机端口
// 成交定价协议要求每笔成交只读取一次价格，之后的计算全部基于该快照值。
type Oracle interface {
	// CurrentPrice 获取资产当前单价，未知资产返回错误
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// Snapshot 获取全部已知资产的报价
	Snapshot(ctx context.Context) ([]Quote, error)
}
