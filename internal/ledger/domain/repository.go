package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// WalletRepository 钱包仓储接口
// 查询方法在目标不存在时返回 (nil, nil)。
type WalletRepository interface {
	// FindByOwner 获取用户的全部钱包
	FindByOwner(ctx context.Context, userID string) ([]*Wallet, error)
	// Find 根据 (用户, 币种) 获取钱包
	Find(ctx context.Context, userID, currency string) (*Wallet, error)
	// FindByAddress 根据收款地址获取钱包
	FindByAddress(ctx context.Context, address string) (*Wallet, error)
	// FindOrCreate 获取钱包，不存在则以零余额创建并分配地址（幂等）
	FindOrCreate(ctx context.Context, userID, currency string) (*Wallet, error)
	// AdjustBalance 按增量调整余额；结果为负时必须令所在事务失败
	AdjustBalance(ctx context.Context, walletID uint, delta decimal.Decimal) error
}

// LedgerRepository 流水仓储接口，只追加
type LedgerRepository interface {
	// Append 追加一条流水
	Append(ctx context.Context, entry *LedgerEntry) error
	// ListByOwner 按时间倒序获取用户流水
	ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*LedgerEntry, error)
	// SumByOwnerCurrency 计算 (用户, 币种) 的带符号金额之和，用于对账
	SumByOwnerCurrency(ctx context.Context, userID, currency string) (decimal.Decimal, error)
}

// DepositRepository 充值仓储接口
type DepositRepository interface {
	// Create 创建充值记录
	Create(ctx context.Context, deposit *Deposit) error
	// Get 根据充值 ID 获取记录，不存在返回 (nil, nil)
	Get(ctx context.Context, depositID string) (*Deposit, error)
	// FindByTxID 根据外部交易 ID 获取记录，不存在返回 (nil, nil)
	FindByTxID(ctx context.Context, txid string) (*Deposit, error)
	// ListPending 获取全部待处理充值
	ListPending(ctx context.Context) ([]*Deposit, error)
	// ListPendingByOwner 获取用户的待处理充值
	ListPendingByOwner(ctx context.Context, userID string) ([]*Deposit, error)
	// Transition 状态 CAS：仅当当前状态等于 expected 时置为 next，
	// 返回是否发生了转换；false 表示已被并发处理
	Transition(ctx context.Context, depositID string, expected, next DepositStatus) (bool, error)
	// DeletePending 仅当仍为 PENDING 时删除，返回是否删除
	DeletePending(ctx context.Context, depositID string) (bool, error)
}

// WithdrawalRepository 提现仓储接口
type WithdrawalRepository interface {
	// Create 创建提现记录
	Create(ctx context.Context, withdrawal *Withdrawal) error
	// ListPendingByOwner 获取用户的待处理提现
	ListPendingByOwner(ctx context.Context, userID string) ([]*Withdrawal, error)
}

// CommissionRepository 推荐佣金仓储接口
type CommissionRepository interface {
	// Create 创建佣金记录
	Create(ctx context.Context, commission *ReferralCommission) error
}

// TxManager 事务边界：fn 内经由 ctx 传播的全部写入要么一起提交、要么全部回滚
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountRole 账户角色
type AccountRole string

// AccountStatus 账户状态
type AccountStatus string

const (
	RoleUser  AccountRole = "USER"
	RoleAdmin AccountRole = "ADMIN"

	StatusActive  AccountStatus = "ACTIVE"
	StatusBlocked AccountStatus = "BLOCKED"
)

// AccountInfo 引擎所需的账户视图
type AccountInfo struct {
	UserID       string
	Role         AccountRole
	Status       AccountStatus
	ReferralCode string
	ReferredBy   string
}

// Blocked 账户是否被冻结
func (a *AccountInfo) Blocked() bool {
	return a.Status == StatusBlocked
}

// AccountDirectory 账户目录端口，由身份上下文提供实现
type AccountDirectory interface {
	// Get 根据用户 ID 获取账户，不存在返回 (nil, nil)
	Get(ctx context.Context, userID string) (*AccountInfo, error)
	// FindByReferralCode 根据推荐码获取账户，不存在返回 (nil, nil)
	FindByReferralCode(ctx context.Context, code string) (*AccountInfo, error)
}
