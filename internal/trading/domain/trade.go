// Package domain 交易上下文的领域模型：市价成交记录
package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeSide 买卖方向
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Trade 成交记录
// 价格为成交时读取的一次性快照，此后所有派生数值都基于该值；
// Total 为不含费的总额（数量 × 单价），Fee 单独记录。
type Trade struct {
	gorm.Model
	// 成交 ID (业务主键)
	TradeID string `gorm:"column:trade_id;type:varchar(32);uniqueIndex;not null" json:"trade_id"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 资产符号（如 BTC）
	Symbol string `gorm:"column:symbol;type:varchar(10);not null" json:"symbol"`
	// 买卖方向
	Side TradeSide `gorm:"column:side;type:varchar(4);not null" json:"side"`
	// 成交数量
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 成交单价（USDT 计价）
	Price decimal.Decimal `gorm:"column:price;type:decimal(32,18);not null" json:"price"`
	// 不含费总额 = 数量 × 单价
	Total decimal.Decimal `gorm:"column:total;type:decimal(32,18);not null" json:"total"`
	// 手续费（USDT 计价）
	Fee decimal.Decimal `gorm:"column:fee;type:decimal(32,18);not null" json:"fee"`
}

// TradeRepository 成交仓储接口
type TradeRepository interface {
	// Create 创建成交记录
	Create(ctx context.Context, trade *Trade) error
	// ListByOwner 按时间倒序获取用户成交记录
	ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*Trade, error)
}
