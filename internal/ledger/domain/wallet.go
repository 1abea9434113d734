// Package domain 账务上下文的领域模型：钱包、流水、充值、提现与推荐佣金
package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet 钱包实体
// 每个 (用户, 币种) 唯一一个钱包；余额在任何已提交的变更后都不为负。
// 余额只能经由余额变更引擎修改，钱包永不删除。
type Wallet struct {
	gorm.Model
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);uniqueIndex:idx_owner_currency;not null" json:"user_id"`
	// 币种（如 USDT, BTC, ETH）
	Currency string `gorm:"column:currency;type:varchar(10);uniqueIndex:idx_owner_currency;not null" json:"currency"`
	// 余额
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(32,18);default:0;not null" json:"balance"`
	// 收款地址，创建时分配，全局唯一，用于站内划转路由
	Address string `gorm:"column:address;type:varchar(64);uniqueIndex;not null" json:"address"`
}

// EntryType 流水类型
type EntryType string

const (
	EntryDeposit    EntryType = "DEPOSIT"
	EntryWithdrawal EntryType = "WITHDRAWAL"
	EntryTradeBuy   EntryType = "TRADE_BUY"
	EntryTradeSell  EntryType = "TRADE_SELL"
	EntryCommission EntryType = "COMMISSION"
)

// LedgerEntry 账务流水
// 不可变：一经追加，永不更新或删除。
// 不变量：某 (用户, 币种) 全部流水的带符号金额之和等于该钱包当前余额。
type LedgerEntry struct {
	gorm.Model
	// 流水 ID (业务主键)
	EntryID string `gorm:"column:entry_id;type:varchar(32);uniqueIndex;not null" json:"entry_id"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 流水类型
	Type EntryType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	// 带符号金额，正为入账、负为出账
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 关联的业务事件（充值 ID、对端地址、成交 ID 等）
	Reference string `gorm:"column:reference;type:varchar(128)" json:"reference"`
}

// DepositStatus 充值状态
type DepositStatus string

const (
	DepositPending DepositStatus = "PENDING"
	DepositActive  DepositStatus = "ACTIVE"
)

// Deposit 用户申报的入金
// 生命周期：用户创建为 PENDING，管理员批准后恰好一次转为 ACTIVE；
// 仅 PENDING 状态可被管理员删除。
type Deposit struct {
	gorm.Model
	// 充值 ID (业务主键)
	DepositID string `gorm:"column:deposit_id;type:varchar(32);uniqueIndex;not null" json:"deposit_id"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 金额
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	// 外部链上交易 ID，全局唯一
	TxID string `gorm:"column:txid;type:varchar(128);uniqueIndex;not null" json:"txid"`
	// 状态
	Status DepositStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
}

// WithdrawalStatus 提现状态
type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "PENDING"
)

// Withdrawal 外部提现请求
// 地址未命中任何站内钱包时创建；余额在请求时即被扣减（资金锁定），
// 后续链上结算在本系统之外进行，PENDING 记录即为对外负债。
type Withdrawal struct {
	gorm.Model
	// 提现 ID (业务主键)
	WithdrawalID string `gorm:"column:withdrawal_id;type:varchar(32);uniqueIndex;not null" json:"withdrawal_id"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 金额
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	// 目标地址
	Address string `gorm:"column:address;type:varchar(128);not null" json:"address"`
	// 状态
	Status WithdrawalStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
}

// ReferralCommission 推荐佣金记录
// 每笔符合条件的充值结算至多产生一条，仅解析一级推荐人。
type ReferralCommission struct {
	gorm.Model
	// 佣金 ID (业务主键)
	CommissionID string `gorm:"column:commission_id;type:varchar(32);uniqueIndex;not null" json:"commission_id"`
	// 推荐人用户 ID
	ReferrerID string `gorm:"column:referrer_id;type:varchar(32);index;not null" json:"referrer_id"`
	// 产生佣金的用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 金额
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	// 来源（目前仅 DEPOSIT）
	Source string `gorm:"column:source;type:varchar(20);not null" json:"source"`
}
