// 包 账务上下文的查询与配号用例
package application

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
)

// TransactionView 统一的交易视图：已入账流水与待处理的充值/提现合并展示
type TransactionView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReconciliationReport 单个钱包的对账结果
type ReconciliationReport struct {
	UserID     string          `json:"user_id"`
	Currency   string          `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Reconciled bool            `json:"reconciled"`
}

// LedgerService 账务查询服务
type LedgerService struct {
	wallets     domain.WalletRepository
	entries     domain.LedgerRepository
	deposits    domain.DepositRepository
	withdrawals domain.WithdrawalRepository
}

// NewLedgerService 创建账务查询服务
func NewLedgerService(
	wallets domain.WalletRepository,
	entries domain.LedgerRepository,
	deposits domain.DepositRepository,
	withdrawals domain.WithdrawalRepository,
) *LedgerService {
	return &LedgerService{
		wallets:     wallets,
		entries:     entries,
		deposits:    deposits,
		withdrawals: withdrawals,
	}
}

// ProvisionWallets 为用户按币种配号钱包，注册时调用，幂等
func (s *LedgerService) ProvisionWallets(ctx context.Context, userID string, currencies []string) error {
	for _, currency := range currencies {
		if _, err := s.wallets.FindOrCreate(ctx, userID, currency); err != nil {
			logger.Error(ctx, "Failed to provision wallet",
				"user_id", userID,
				"currency", currency,
				"error", err,
			)
			return errs.Wrap(errs.KindDependency, "wallet provisioning failed", err)
		}
	}
	logger.Info(ctx, "Wallets provisioned", "user_id", userID, "currencies", currencies)
	return nil
}

// WalletsOf 获取用户的全部钱包
func (s *LedgerService) WalletsOf(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	wallets, err := s.wallets.FindByOwner(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
	}
	return wallets, nil
}

// TransactionHistory 按时间倒序返回用户的统一交易视图
func (s *LedgerService) TransactionHistory(ctx context.Context, userID string, limit, offset int) ([]TransactionView, error) {
	if limit <= 0 {
		limit = 50
	}

	entries, err := s.entries.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "ledger lookup failed", err)
	}
	pendingDeposits, err := s.deposits.ListPendingByOwner(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "deposit lookup failed", err)
	}
	pendingWithdrawals, err := s.withdrawals.ListPendingByOwner(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "withdrawal lookup failed", err)
	}

	views := make([]TransactionView, 0, len(entries)+len(pendingDeposits)+len(pendingWithdrawals))
	for _, d := range pendingDeposits {
		views = append(views, TransactionView{
			ID:        d.DepositID,
			UserID:    d.UserID,
			Type:      "DEPOSIT (PENDING)",
			Currency:  d.Currency,
			Amount:    d.Amount,
			Reference: d.TxID,
			Status:    "PENDING",
			CreatedAt: d.CreatedAt,
		})
	}
	for _, w := range pendingWithdrawals {
		views = append(views, TransactionView{
			ID:        w.WithdrawalID,
			UserID:    w.UserID,
			Type:      "WITHDRAWAL (PENDING)",
			Currency:  w.Currency,
			// 提现为出账，展示为负
			Amount:    w.Amount.Neg(),
			Reference: w.Address,
			Status:    "PENDING",
			CreatedAt: w.CreatedAt,
		})
	}
	for _, e := range entries {
		views = append(views, TransactionView{
			ID:        e.EntryID,
			UserID:    e.UserID,
			Type:      string(e.Type),
			Currency:  e.Currency,
			Amount:    e.Amount,
			Reference: e.Reference,
			Status:    "COMPLETED",
			CreatedAt: e.CreatedAt,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

// PendingDeposits 获取全部待处理充值（管理员）
func (s *LedgerService) PendingDeposits(ctx context.Context) ([]*domain.Deposit, error) {
	deposits, err := s.deposits.ListPending(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "deposit lookup failed", err)
	}
	return deposits, nil
}

// Reconcile 对账：逐钱包校验余额等于其流水的带符号金额之和
func (s *LedgerService) Reconcile(ctx context.Context, userID string) ([]ReconciliationReport, error) {
	wallets, err := s.wallets.FindByOwner(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
	}

	reports := make([]ReconciliationReport, 0, len(wallets))
	for _, w := range wallets {
		sum, err := s.entries.SumByOwnerCurrency(ctx, userID, w.Currency)
		if err != nil {
			return nil, errs.Wrap(errs.KindDependency, "ledger sum failed", err)
		}
		reconciled := w.Balance.Equal(sum)
		if !reconciled {
			logger.Warn(ctx, "Wallet out of balance with ledger",
				"user_id", userID,
				"currency", w.Currency,
				"balance", w.Balance.String(),
				"ledger_sum", sum.String(),
			)
		}
		reports = append(reports, ReconciliationReport{
			UserID:     userID,
			Currency:   w.Currency,
			Balance:    w.Balance,
			LedgerSum:  sum,
			Reconciled: reconciled,
		})
	}
	return reports, nil
}
