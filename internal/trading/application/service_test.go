package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	ledgerdomain "github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	pricingdomain "github.com/wyfcoding/cryptocustody/internal/pricing/domain"
	"github.com/wyfcoding/cryptocustody/internal/trading/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockTradeRepo struct{ mock.Mock }

func (m *mockTradeRepo) Create(ctx context.Context, trade *domain.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *mockTradeRepo) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Trade), args.Error(1)
}

type mockWalletRepo struct{ mock.Mock }

func (m *mockWalletRepo) FindByOwner(ctx context.Context, userID string) ([]*ledgerdomain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledgerdomain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) Find(ctx context.Context, userID, currency string) (*ledgerdomain.Wallet, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) FindByAddress(ctx context.Context, address string) (*ledgerdomain.Wallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) FindOrCreate(ctx context.Context, userID, currency string) (*ledgerdomain.Wallet, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) AdjustBalance(ctx context.Context, walletID uint, delta decimal.Decimal) error {
	args := m.Called(ctx, walletID, delta)
	return args.Error(0)
}

type mockLedgerRepo struct{ mock.Mock }

func (m *mockLedgerRepo) Append(ctx context.Context, entry *ledgerdomain.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockLedgerRepo) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*ledgerdomain.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledgerdomain.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepo) SumByOwnerCurrency(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Get(ctx context.Context, userID string) (*ledgerdomain.AccountInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.AccountInfo), args.Error(1)
}

func (m *mockDirectory) FindByReferralCode(ctx context.Context, code string) (*ledgerdomain.AccountInfo, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerdomain.AccountInfo), args.Error(1)
}

type mockOracle struct{ mock.Mock }

func (m *mockOracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockOracle) Snapshot(ctx context.Context) ([]pricingdomain.Quote, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pricingdomain.Quote), args.Error(1)
}

type tradingMocks struct {
	trades    *mockTradeRepo
	wallets   *mockWalletRepo
	entries   *mockLedgerRepo
	directory *mockDirectory
	oracle    *mockOracle
}

func newTestService() (*TradingService, *tradingMocks) {
	m := &tradingMocks{
		trades:    new(mockTradeRepo),
		wallets:   new(mockWalletRepo),
		entries:   new(mockLedgerRepo),
		directory: new(mockDirectory),
		oracle:    new(mockOracle),
	}
	svc := NewTradingService(passthroughTx{}, m.trades, m.wallets, m.entries, m.directory, m.oracle, nil)
	return svc, m
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEq(s string) interface{} {
	want := dec(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func activeAccount(userID string) *ledgerdomain.AccountInfo {
	return &ledgerdomain.AccountInfo{
		UserID: userID,
		Role:   ledgerdomain.RoleUser,
		Status: ledgerdomain.StatusActive,
	}
}

func TestExecuteTrade_BuyDebitsCostPlusFee(t *testing.T) {
	svc, m := newTestService()

	quote := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "USDT", Balance: dec("1000")}
	quote.ID = 1
	asset := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("0")}
	asset.ID = 2

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.oracle.On("CurrentPrice", mock.Anything, "BTC").Return(dec("45000"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "USDT").Return(quote, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "BTC").Return(asset, nil)
	// 0.01 × 45000 = 450，手续费 0.9，总支出 450.9
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("-450.9")).Return(nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(2), decEq("0.01")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *ledgerdomain.LedgerEntry) bool {
		return e.Type == ledgerdomain.EntryTradeBuy && e.Currency == "USDT" && e.Amount.Equal(dec("-450.9"))
	})).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *ledgerdomain.LedgerEntry) bool {
		return e.Type == ledgerdomain.EntryTradeBuy && e.Currency == "BTC" && e.Amount.Equal(dec("0.01"))
	})).Return(nil)
	m.trades.On("Create", mock.Anything, mock.MatchedBy(func(tr *domain.Trade) bool {
		return tr.Total.Equal(dec("450")) && tr.Fee.Equal(dec("0.9")) && tr.Price.Equal(dec("45000"))
	})).Return(nil)

	trade, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.SideBuy, dec("0.01"))
	assert.NoError(t, err)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.True(t, trade.Total.Equal(dec("450")))
	assert.True(t, trade.Fee.Equal(dec("0.9")))
	m.wallets.AssertExpectations(t)
	m.trades.AssertExpectations(t)
}

func TestExecuteTrade_SellCreditsValueMinusFee(t *testing.T) {
	svc, m := newTestService()

	asset := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("1")}
	asset.ID = 2
	quote := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "USDT", Balance: dec("0")}
	quote.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.oracle.On("CurrentPrice", mock.Anything, "BTC").Return(dec("45000"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(asset, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "USDT").Return(quote, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(2), decEq("-0.01")).Return(nil)
	// 0.01 × 45000 = 450，手续费 0.9，实得 449.1
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("449.1")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *ledgerdomain.LedgerEntry) bool {
		return e.Type == ledgerdomain.EntryTradeSell && e.Currency == "BTC" && e.Amount.Equal(dec("-0.01"))
	})).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *ledgerdomain.LedgerEntry) bool {
		return e.Type == ledgerdomain.EntryTradeSell && e.Currency == "USDT" && e.Amount.Equal(dec("449.1"))
	})).Return(nil)
	m.trades.On("Create", mock.Anything, mock.MatchedBy(func(tr *domain.Trade) bool {
		return tr.Total.Equal(dec("450")) && tr.Fee.Equal(dec("0.9"))
	})).Return(nil)

	trade, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.SideSell, dec("0.01"))
	assert.NoError(t, err)
	assert.Equal(t, domain.SideSell, trade.Side)
	m.wallets.AssertExpectations(t)
}

func TestExecuteTrade_BuyInsufficientFunds(t *testing.T) {
	svc, m := newTestService()

	quote := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "USDT", Balance: dec("100")}
	quote.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.oracle.On("CurrentPrice", mock.Anything, "BTC").Return(dec("45000"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "USDT").Return(quote, nil)

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.SideBuy, dec("0.01"))
	assert.True(t, errs.IsKind(err, errs.KindInsufficientFunds))
	m.wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
	m.trades.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestExecuteTrade_SellInsufficientAsset(t *testing.T) {
	svc, m := newTestService()

	asset := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("0.001")}
	asset.ID = 2

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.oracle.On("CurrentPrice", mock.Anything, "BTC").Return(dec("45000"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(asset, nil)

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.SideSell, dec("0.01"))
	assert.True(t, errs.IsKind(err, errs.KindInsufficientFunds))
}

func TestExecuteTrade_RejectsQuoteCurrency(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "USDT", domain.SideBuy, dec("1"))
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestExecuteTrade_RejectsUnknownSide(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.TradeSide("HOLD"), dec("1"))
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestExecuteTrade_RejectsBlockedAccount(t *testing.T) {
	svc, m := newTestService()

	blocked := activeAccount("USR-1")
	blocked.Status = ledgerdomain.StatusBlocked
	m.directory.On("Get", mock.Anything, "USR-1").Return(blocked, nil)

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.SideBuy, dec("0.01"))
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
	m.oracle.AssertNotCalled(t, "CurrentPrice", mock.Anything, mock.Anything)
}

func TestExecuteTrade_UnknownAsset(t *testing.T) {
	svc, m := newTestService()

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.oracle.On("CurrentPrice", mock.Anything, "DOGE").Return(decimal.Zero, errs.NotFound("asset price"))

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "DOGE", domain.SideBuy, dec("1"))
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

// 价格只读取一次：整笔成交的派生数值必须全部来自同一个快照
func TestExecuteTrade_ReadsPriceExactlyOnce(t *testing.T) {
	svc, m := newTestService()

	quote := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "USDT", Balance: dec("1000")}
	quote.ID = 1
	asset := &ledgerdomain.Wallet{UserID: "USR-1", Currency: "BTC"}
	asset.ID = 2

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.oracle.On("CurrentPrice", mock.Anything, "BTC").Return(dec("45000"), nil).Once()
	m.wallets.On("Find", mock.Anything, "USR-1", "USDT").Return(quote, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "BTC").Return(asset, nil)
	m.wallets.On("AdjustBalance", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.entries.On("Append", mock.Anything, mock.Anything).Return(nil)
	m.trades.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.ExecuteTrade(context.Background(), "USR-1", "BTC", domain.SideBuy, dec("0.01"))
	assert.NoError(t, err)
	m.oracle.AssertNumberOfCalls(t, "CurrentPrice", 1)
}
