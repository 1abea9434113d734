// Package application 交易上下文的用例：市价成交定价与结算
package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	ledgerdomain "github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	pricingdomain "github.com/wyfcoding/cryptocustody/internal/pricing/domain"
	"github.com/wyfcoding/cryptocustody/internal/trading/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
	"github.com/wyfcoding/cryptocustody/pkg/metrics"
	"github.com/wyfcoding/cryptocustody/pkg/utils"
)

// 成交手续费率，固定 0.2%，以 USDT 计收
var feeRate = decimal.RequireFromString("0.002")

// 计价货币，全部成交以 USDT 结算
const quoteCurrency = "USDT"

// TradingService 交易服务
// 成交定价协议：每笔成交在进入事务前只读取一次价格，之后的全部计算
// （总额、手续费、双边腿）都基于该快照值，事务内不再触碰价格源。
type TradingService struct {
	tx        ledgerdomain.TxManager
	trades    domain.TradeRepository
	wallets   ledgerdomain.WalletRepository
	entries   ledgerdomain.LedgerRepository
	directory ledgerdomain.AccountDirectory
	oracle    pricingdomain.Oracle
	metrics   *metrics.Metrics
}

// NewTradingService 创建交易服务
func NewTradingService(
	tx ledgerdomain.TxManager,
	trades domain.TradeRepository,
	wallets ledgerdomain.WalletRepository,
	entries ledgerdomain.LedgerRepository,
	directory ledgerdomain.AccountDirectory,
	oracle pricingdomain.Oracle,
	m *metrics.Metrics,
) *TradingService {
	return &TradingService{
		tx:        tx,
		trades:    trades,
		wallets:   wallets,
		entries:   entries,
		directory: directory,
		oracle:    oracle,
		metrics:   m,
	}
}

// ExecuteTrade 市价成交
// BUY：支出 = 数量×单价 + 手续费（USDT 扣减），资产侧贷记数量；
// SELL：所得 = 数量×单价 - 手续费（USDT 贷记），资产侧扣减数量。
// 双边腿与成交记录在单个事务内提交，余额不足时整笔拒绝。
func (s *TradingService) ExecuteTrade(ctx context.Context, userID, symbol string, side domain.TradeSide, amount decimal.Decimal) (*domain.Trade, error) {
	if symbol == "" {
		return nil, errs.Validation("symbol is required")
	}
	if symbol == quoteCurrency {
		return nil, errs.Validation("cannot trade the quote currency")
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, errs.Validation("side must be BUY or SELL")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errs.Validation("amount must be positive")
	}

	account, err := s.directory.Get(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "account lookup failed", err)
	}
	if account == nil {
		return nil, errs.NotFound("account")
	}
	if account.Blocked() {
		return nil, errs.StateConflict("account is blocked")
	}

	// 价格只读一次，成交的全部派生数值基于这个快照
	price, err := s.oracle.CurrentPrice(ctx, symbol)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindDependency, "price lookup failed", err)
	}

	total := amount.Mul(price)
	fee := total.Mul(feeRate)

	trade := &domain.Trade{
		TradeID: fmt.Sprintf("TRD-%d", utils.GenID()),
		UserID:  userID,
		Symbol:  symbol,
		Side:    side,
		Amount:  amount,
		Price:   price,
		Total:   total,
		Fee:     fee,
	}

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		switch side {
		case domain.SideBuy:
			return s.settleBuy(txCtx, trade)
		default:
			return s.settleSell(txCtx, trade)
		}
	})
	if err != nil {
		logger.Error(ctx, "Trade execution failed",
			"user_id", userID,
			"symbol", symbol,
			"side", side,
			"amount", amount.String(),
			"error", err,
		)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TradesExecuted.Inc()
	}
	logger.Info(ctx, "Trade executed",
		"trade_id", trade.TradeID,
		"user_id", userID,
		"symbol", symbol,
		"side", side,
		"amount", amount.String(),
		"price", price.String(),
		"fee", fee.String(),
	)
	return trade, nil
}

// settleBuy 买入结算：USDT 侧扣减含费支出，资产侧贷记数量
func (s *TradingService) settleBuy(ctx context.Context, trade *domain.Trade) error {
	spend := trade.Total.Add(trade.Fee)

	quote, err := s.wallets.Find(ctx, trade.UserID, quoteCurrency)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
	}
	if quote == nil {
		return errs.NotFound("wallet")
	}
	if quote.Balance.LessThan(spend) {
		return errs.InsufficientFunds("balance is less than cost plus fee")
	}

	if err := s.wallets.AdjustBalance(ctx, quote.ID, spend.Neg()); err != nil {
		return err
	}
	if err := s.entries.Append(ctx, &ledgerdomain.LedgerEntry{
		EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
		UserID:    trade.UserID,
		Type:      ledgerdomain.EntryTradeBuy,
		Currency:  quoteCurrency,
		Amount:    spend.Neg(),
		Reference: trade.TradeID,
	}); err != nil {
		return errs.Wrap(errs.KindDependency, "ledger append failed", err)
	}

	asset, err := s.wallets.FindOrCreate(ctx, trade.UserID, trade.Symbol)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
	}
	if err := s.wallets.AdjustBalance(ctx, asset.ID, trade.Amount); err != nil {
		return err
	}
	if err := s.entries.Append(ctx, &ledgerdomain.LedgerEntry{
		EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
		UserID:    trade.UserID,
		Type:      ledgerdomain.EntryTradeBuy,
		Currency:  trade.Symbol,
		Amount:    trade.Amount,
		Reference: trade.TradeID,
	}); err != nil {
		return errs.Wrap(errs.KindDependency, "ledger append failed", err)
	}

	if err := s.trades.Create(ctx, trade); err != nil {
		return errs.Wrap(errs.KindDependency, "trade record failed", err)
	}
	return nil
}

// settleSell 卖出结算：资产侧扣减数量，USDT 侧贷记扣费后所得
func (s *TradingService) settleSell(ctx context.Context, trade *domain.Trade) error {
	receive := trade.Total.Sub(trade.Fee)

	asset, err := s.wallets.Find(ctx, trade.UserID, trade.Symbol)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
	}
	if asset == nil {
		return errs.NotFound("wallet")
	}
	if asset.Balance.LessThan(trade.Amount) {
		return errs.InsufficientFunds("balance is less than sell amount")
	}

	if err := s.wallets.AdjustBalance(ctx, asset.ID, trade.Amount.Neg()); err != nil {
		return err
	}
	if err := s.entries.Append(ctx, &ledgerdomain.LedgerEntry{
		EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
		UserID:    trade.UserID,
		Type:      ledgerdomain.EntryTradeSell,
		Currency:  trade.Symbol,
		Amount:    trade.Amount.Neg(),
		Reference: trade.TradeID,
	}); err != nil {
		return errs.Wrap(errs.KindDependency, "ledger append failed", err)
	}

	quote, err := s.wallets.FindOrCreate(ctx, trade.UserID, quoteCurrency)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "wallet lookup failed", err)
	}
	if err := s.wallets.AdjustBalance(ctx, quote.ID, receive); err != nil {
		return err
	}
	if err := s.entries.Append(ctx, &ledgerdomain.LedgerEntry{
		EntryID:   fmt.Sprintf("LED-%d", utils.GenID()),
		UserID:    trade.UserID,
		Type:      ledgerdomain.EntryTradeSell,
		Currency:  quoteCurrency,
		Amount:    receive,
		Reference: trade.TradeID,
	}); err != nil {
		return errs.Wrap(errs.KindDependency, "ledger append failed", err)
	}

	if err := s.trades.Create(ctx, trade); err != nil {
		return errs.Wrap(errs.KindDependency, "trade record failed", err)
	}
	return nil
}

// TradeHistory 按时间倒序获取用户成交记录
func (s *TradingService) TradeHistory(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	trades, err := s.trades.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "trade lookup failed", err)
	}
	return trades, nil
}

// Prices 获取全部资产的当前报价
func (s *TradingService) Prices(ctx context.Context) ([]pricingdomain.Quote, error) {
	quotes, err := s.oracle.Snapshot(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "price snapshot failed", err)
	}
	return quotes, nil
}
