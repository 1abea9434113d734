// 余额变更引擎：所有跨钱包的原子变更（充值结算、划转分发、佣金级联）都经由这里执行
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
	"github.com/wyfcoding/cryptocustody/pkg/metrics"
	"github.com/wyfcoding/cryptocustody/pkg/utils"
)

// 推荐佣金费率，固定 5%，仅解析一级推荐人
var commissionRate = decimal.RequireFromString("0.05")

// TransferRoute 划转路由结果
type TransferRoute string

const (
	// RouteInternal 地址命中站内钱包，双边即时结算
	RouteInternal TransferRoute = "INTERNAL"
	// RouteExternal 地址未命中，仅扣减并登记 PENDING 提现
	RouteExternal TransferRoute = "EXTERNAL"
)

// Engine 余额变更引擎
// 每个操作在单个存储事务内完成读-改-写；任何一步失败都不留下可见副作用。
// 正确性依赖存储层的事务回滚与受保护的余额更新，引擎不做补偿写。
type Engine struct {
	tx          domain.TxManager
	wallets     domain.WalletRepository
	entries     domain.LedgerRepository
	deposits    domain.DepositRepository
	withdrawals domain.WithdrawalRepository
	commissions domain.CommissionRepository
	directory   domain.AccountDirectory
	publisher   EventPublisher
	metrics     *metrics.Metrics
}

// NewEngine 创建余额变更引擎
func NewEngine(
	tx domain.TxManager,
	wallets domain.WalletRepository,
	entries domain.LedgerRepository,
	deposits domain.DepositRepository,
	withdrawals domain.WithdrawalRepository,
	commissions domain.CommissionRepository,
	directory domain.AccountDirectory,
	publisher EventPublisher,
	m *metrics.Metrics,
) *Engine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Engine{
		tx:          tx,
		wallets:     wallets,
		entries:     entries,
		deposits:    deposits,
		withdrawals: withdrawals,
		commissions: commissions,
		directory:   directory,
		publisher:   publisher,
		metrics:     m,
	}
}

// requireActiveAccount 校验账户存在且未被冻结
func (e *Engine) requireActiveAccount(ctx context.Context, userID string) (*domain.AccountInfo, error) {
	account, err := e.directory.Get(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "account lookup failed", err)
	}
	if account == nil {
		return nil, errs.NotFound("account")
	}
	if account.Blocked() {
		return nil, errs.StateConflict("account is blocked")
	}
	return account, nil
}

// RequestDeposit 用户申报入金
// 外部交易 ID 全局唯一，重复申报被拒绝；记录创建为 PENDING，等待管理员批准。
func (e *Engine) RequestDeposit(ctx context.Context, userID, currency string, amount decimal.Decimal, txid string) (*domain.Deposit, error) {
	if currency == "" || txid == "" {
		return nil, errs.Validation("currency and txid are required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errs.Validation("amount must be positive")
	}

	if _, err := e.requireActiveAccount(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := e.deposits.FindByTxID(ctx, txid)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "deposit lookup failed", err)
	}
	if existing != nil {
		return nil, errs.StateConflict("transaction id already submitted")
	}

	deposit := &domain.Deposit{
		DepositID: fmt.Sprintf("DEP-%d", utils.GenID()),
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		TxID:      txid,
		Status:    domain.DepositPending,
	}
	if err := e.deposits.Create(ctx, deposit); err != nil {
		logger.Error(ctx, "Failed to create deposit",
			"user_id", userID,
			"txid", txid,
			"error", err,
		)
		return nil, errs.Wrap(errs.KindDependency, "failed to create deposit", err)
	}

	logger.Info(ctx, "Deposit requested",
		"deposit_id", deposit.DepositID,
		"user_id", userID,
		"currency", currency,
		"amount", amount.String(),
	)
	return deposit, nil
}

// ApproveDeposit 充值结算协议
// 单事务内：PENDING→ACTIVE 的 CAS 转换、贷记用户钱包（必要时懒创建）、
// 追加 DEPOSIT 流水；用户存在推荐人时级联支付 5% 佣金。
// CAS 失败即表示已被处理，拒绝而非重试，保证每个充值 ID 至多结算一次。
func (e *Engine) ApproveDeposit(ctx context.Context, depositID string) (*domain.Deposit, error) {
	if depositID == "" {
		return nil, errs.Validation("deposit_id is required")
	}

	deposit, err := e.deposits.Get(ctx, depositID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "deposit lookup failed", err)
	}
	if deposit == nil {
		return nil, errs.NotFound("deposit")
	}
	if deposit.Status != domain.DepositPending {
		return nil, errs.StateConflict("deposit already processed")
	}

	var commission *domain.ReferralCommission
	err = e.tx.WithTx(ctx, func(txCtx context.Context) error {
		ok, err := e.deposits.Transition(txCtx, depositID, domain.DepositPending, domain.DepositActive)
		if err != nil {
			return errs.Wrap(errs.KindDependency, "deposit transition failed", err)
		}
		if !ok {
			return errs.StateConflict("deposit already processed")
		}

		wallet, err := e.wallets.FindOrCreate(txCtx, deposit.UserID, deposit.Currency)
		if err != nil {
			return errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
		}
		if err := e.wallets.AdjustBalance(txCtx, wallet.ID, deposit.Amount); err != nil {
			return err
		}
		if err := e.entries.Append(txCtx, &domain.LedgerEntry{
			EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
			UserID:    deposit.UserID,
			Type:      domain.EntryDeposit,
			Currency:  deposit.Currency,
			Amount:    deposit.Amount,
			Reference: deposit.DepositID,
		}); err != nil {
			return errs.Wrap(errs.KindDependency, "ledger append failed", err)
		}

		paid, err := e.cascadeCommission(txCtx, deposit)
		if err != nil {
			return err
		}
		commission = paid
		return nil
	})
	if err != nil {
		logger.Error(ctx, "Deposit settlement failed",
			"deposit_id", depositID,
			"error", err,
		)
		return nil, err
	}

	deposit.Status = domain.DepositActive

	if e.metrics != nil {
		e.metrics.DepositsApproved.Inc()
		if commission != nil {
			e.metrics.CommissionsPaid.Inc()
		}
	}
	e.publisher.Publish(ctx, LedgerEvent{
		Type:       EventDepositApproved,
		UserID:     deposit.UserID,
		Currency:   deposit.Currency,
		Amount:     deposit.Amount,
		Reference:  deposit.DepositID,
		OccurredAt: time.Now(),
	})
	if commission != nil {
		e.publisher.Publish(ctx, LedgerEvent{
			Type:       EventCommissionPaid,
			UserID:     commission.ReferrerID,
			Currency:   commission.Currency,
			Amount:     commission.Amount,
			Reference:  deposit.DepositID,
			OccurredAt: time.Now(),
		})
	}

	logger.Info(ctx, "Deposit settled",
		"deposit_id", deposit.DepositID,
		"user_id", deposit.UserID,
		"currency", deposit.Currency,
		"amount", deposit.Amount.String(),
		"commission_paid", commission != nil,
	)
	return deposit, nil
}

// cascadeCommission 推荐佣金级联，充值结算事务内执行
// 推荐人缺少对应币种钱包时透明创建；推荐码失效则静默跳过。
// 返回已支付的佣金记录，未触发级联时为 nil。
func (e *Engine) cascadeCommission(ctx context.Context, deposit *domain.Deposit) (*domain.ReferralCommission, error) {
	depositor, err := e.directory.Get(ctx, deposit.UserID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "account lookup failed", err)
	}
	if depositor == nil || depositor.ReferredBy == "" {
		return nil, nil
	}

	referrer, err := e.directory.FindByReferralCode(ctx, depositor.ReferredBy)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "referrer lookup failed", err)
	}
	if referrer == nil {
		return nil, nil
	}

	commission := &domain.ReferralCommission{
		CommissionID: fmt.Sprintf("COM-%d", utils.GenID()),
		ReferrerID:   referrer.UserID,
		UserID:       deposit.UserID,
		Amount:       deposit.Amount.Mul(commissionRate),
		Currency:     deposit.Currency,
		Source:       "DEPOSIT",
	}

	wallet, err := e.wallets.FindOrCreate(ctx, referrer.UserID, deposit.Currency)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "referrer wallet lookup failed", err)
	}
	if err := e.wallets.AdjustBalance(ctx, wallet.ID, commission.Amount); err != nil {
		return nil, err
	}
	if err := e.commissions.Create(ctx, commission); err != nil {
		return nil, errs.Wrap(errs.KindDependency, "commission record failed", err)
	}
	if err := e.entries.Append(ctx, &domain.LedgerEntry{
		EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
		UserID:    referrer.UserID,
		Type:      domain.EntryCommission,
		Currency:  deposit.Currency,
		Amount:    commission.Amount,
		Reference: deposit.DepositID,
	}); err != nil {
		return nil, errs.Wrap(errs.KindDependency, "ledger append failed", err)
	}
	return commission, nil
}

// TransferResult 划转分发结果
type TransferResult struct {
	Route      TransferRoute
	Withdrawal *domain.Withdrawal
}

// Transfer 划转分发协议
// 按目标地址路由：命中站内钱包则双边即时原子结算；
// 未命中则立即扣减（资金锁定）并登记 PENDING 提现等待链外结算。
func (e *Engine) Transfer(ctx context.Context, userID, currency string, amount decimal.Decimal, destAddress string) (*TransferResult, error) {
	if currency == "" || destAddress == "" {
		return nil, errs.Validation("currency and address are required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errs.Validation("amount must be positive")
	}

	if _, err := e.requireActiveAccount(ctx, userID); err != nil {
		return nil, err
	}

	result := &TransferResult{}
	err := e.tx.WithTx(ctx, func(txCtx context.Context) error {
		sender, err := e.wallets.Find(txCtx, userID, currency)
		if err != nil {
			return errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
		}
		if sender == nil {
			return errs.NotFound("wallet")
		}
		if sender.Address == destAddress {
			return errs.StateConflict("cannot transfer to own address")
		}
		if sender.Balance.LessThan(amount) {
			return errs.InsufficientFunds("balance is less than transfer amount")
		}

		receiver, err := e.wallets.FindByAddress(txCtx, destAddress)
		if err != nil {
			return errs.Wrap(errs.KindDependency, "address lookup failed", err)
		}

		if receiver != nil {
			// 站内路由：两边都在本系统控制之下，即时结清，无中间状态
			if receiver.Currency != currency {
				return errs.StateConflict("destination wallet currency mismatch")
			}
			if err := e.wallets.AdjustBalance(txCtx, sender.ID, amount.Neg()); err != nil {
				return err
			}
			if err := e.entries.Append(txCtx, &domain.LedgerEntry{
				EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
				UserID:    sender.UserID,
				Type:      domain.EntryWithdrawal,
				Currency:  currency,
				Amount:    amount.Neg(),
				Reference: destAddress,
			}); err != nil {
				return errs.Wrap(errs.KindDependency, "ledger append failed", err)
			}
			if err := e.wallets.AdjustBalance(txCtx, receiver.ID, amount); err != nil {
				return err
			}
			if err := e.entries.Append(txCtx, &domain.LedgerEntry{
				EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
				UserID:    receiver.UserID,
				Type:      domain.EntryDeposit,
				Currency:  currency,
				Amount:    amount,
				Reference: sender.Address,
			}); err != nil {
				return errs.Wrap(errs.KindDependency, "ledger append failed", err)
			}
			result.Route = RouteInternal
			return nil
		}

		// 站外路由：无法与外部链原子化，仅提交本系统的扣减，
		// 以 PENDING 提现记录对外负债
		if err := e.wallets.AdjustBalance(txCtx, sender.ID, amount.Neg()); err != nil {
			return err
		}
		if err := e.entries.Append(txCtx, &domain.LedgerEntry{
			EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
			UserID:    sender.UserID,
			Type:      domain.EntryWithdrawal,
			Currency:  currency,
			Amount:    amount.Neg(),
			Reference: destAddress,
		}); err != nil {
			return errs.Wrap(errs.KindDependency, "ledger append failed", err)
		}
		withdrawal := &domain.Withdrawal{
			WithdrawalID: fmt.Sprintf("WDR-%d", utils.GenID()),
			UserID:       userID,
			Amount:       amount,
			Currency:     currency,
			Address:      destAddress,
			Status:       domain.WithdrawalPending,
		}
		if err := e.withdrawals.Create(txCtx, withdrawal); err != nil {
			return errs.Wrap(errs.KindDependency, "withdrawal record failed", err)
		}
		result.Route = RouteExternal
		result.Withdrawal = withdrawal
		return nil
	})
	if err != nil {
		logger.Error(ctx, "Transfer dispatch failed",
			"user_id", userID,
			"currency", currency,
			"amount", amount.String(),
			"error", err,
		)
		return nil, err
	}

	if e.metrics != nil {
		switch result.Route {
		case RouteInternal:
			e.metrics.InternalTransfers.Inc()
		case RouteExternal:
			e.metrics.ExternalWithdrawals.Inc()
		}
	}
	eventType := EventTransferSettled
	if result.Route == RouteExternal {
		eventType = EventWithdrawalRequested
	}
	e.publisher.Publish(ctx, LedgerEvent{
		Type:       eventType,
		UserID:     userID,
		Currency:   currency,
		Amount:     amount,
		Reference:  destAddress,
		OccurredAt: time.Now(),
	})

	logger.Info(ctx, "Transfer dispatched",
		"user_id", userID,
		"currency", currency,
		"amount", amount.String(),
		"route", result.Route,
	)
	return result, nil
}

// DeleteDeposit 管理员删除充值记录，仅 PENDING 可删
func (e *Engine) DeleteDeposit(ctx context.Context, depositID string) error {
	if depositID == "" {
		return errs.Validation("deposit_id is required")
	}

	deposit, err := e.deposits.Get(ctx, depositID)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "deposit lookup failed", err)
	}
	if deposit == nil {
		return errs.NotFound("deposit")
	}

	deleted, err := e.deposits.DeletePending(ctx, depositID)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "deposit delete failed", err)
	}
	if !deleted {
		return errs.StateConflict("cannot delete processed deposit")
	}

	logger.Info(ctx, "Deposit removed", "deposit_id", depositID)
	return nil
}
