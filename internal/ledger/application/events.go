package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 事件类型，发布到账务事件主题供下游（通知、审计）消费
const (
	EventDepositApproved     = "ledger.deposit.approved"
	EventTransferSettled     = "ledger.transfer.settled"
	EventWithdrawalRequested = "ledger.withdrawal.requested"
	EventCommissionPaid      = "ledger.commission.paid"
)

// LedgerEvent 提交后发布的账务事件
type LedgerEvent struct {
	Type       string          `json:"type"`
	UserID     string          `json:"user_id"`
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventPublisher 事件发布端口；发布失败不影响已提交的账务结果
type EventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent)
}

// NopPublisher 空实现，事件发布关闭时使用
type NopPublisher struct{}

// Publish 丢弃事件
func (NopPublisher) Publish(ctx context.Context, event LedgerEvent) {}
