package application

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/wyfcoding/cryptocustody/internal/ledger/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
)

// passthroughTx 直接在当前 ctx 上执行 fn，模拟单事务语义
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockWalletRepo struct{ mock.Mock }

func (m *mockWalletRepo) FindByOwner(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) Find(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) FindByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) FindOrCreate(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	args := m.Called(ctx, userID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) AdjustBalance(ctx context.Context, walletID uint, delta decimal.Decimal) error {
	args := m.Called(ctx, walletID, delta)
	return args.Error(0)
}

type mockLedgerRepo struct{ mock.Mock }

func (m *mockLedgerRepo) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockLedgerRepo) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepo) SumByOwnerCurrency(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockDepositRepo struct{ mock.Mock }

func (m *mockDepositRepo) Create(ctx context.Context, deposit *domain.Deposit) error {
	args := m.Called(ctx, deposit)
	return args.Error(0)
}

func (m *mockDepositRepo) Get(ctx context.Context, depositID string) (*domain.Deposit, error) {
	args := m.Called(ctx, depositID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Deposit), args.Error(1)
}

func (m *mockDepositRepo) FindByTxID(ctx context.Context, txid string) (*domain.Deposit, error) {
	args := m.Called(ctx, txid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Deposit), args.Error(1)
}

func (m *mockDepositRepo) ListPending(ctx context.Context) ([]*domain.Deposit, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Deposit), args.Error(1)
}

func (m *mockDepositRepo) ListPendingByOwner(ctx context.Context, userID string) ([]*domain.Deposit, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Deposit), args.Error(1)
}

func (m *mockDepositRepo) Transition(ctx context.Context, depositID string, expected, next domain.DepositStatus) (bool, error) {
	args := m.Called(ctx, depositID, expected, next)
	return args.Bool(0), args.Error(1)
}

func (m *mockDepositRepo) DeletePending(ctx context.Context, depositID string) (bool, error) {
	args := m.Called(ctx, depositID)
	return args.Bool(0), args.Error(1)
}

type mockWithdrawalRepo struct{ mock.Mock }

func (m *mockWithdrawalRepo) Create(ctx context.Context, withdrawal *domain.Withdrawal) error {
	args := m.Called(ctx, withdrawal)
	return args.Error(0)
}

func (m *mockWithdrawalRepo) ListPendingByOwner(ctx context.Context, userID string) ([]*domain.Withdrawal, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Withdrawal), args.Error(1)
}

type mockCommissionRepo struct{ mock.Mock }

func (m *mockCommissionRepo) Create(ctx context.Context, commission *domain.ReferralCommission) error {
	args := m.Called(ctx, commission)
	return args.Error(0)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Get(ctx context.Context, userID string) (*domain.AccountInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccountInfo), args.Error(1)
}

func (m *mockDirectory) FindByReferralCode(ctx context.Context, code string) (*domain.AccountInfo, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccountInfo), args.Error(1)
}

type engineMocks struct {
	wallets     *mockWalletRepo
	entries     *mockLedgerRepo
	deposits    *mockDepositRepo
	withdrawals *mockWithdrawalRepo
	commissions *mockCommissionRepo
	directory   *mockDirectory
}

func newTestEngine() (*Engine, *engineMocks) {
	return newTestEngineWithPublisher(nil)
}

func newTestEngineWithPublisher(publisher EventPublisher) (*Engine, *engineMocks) {
	m := &engineMocks{
		wallets:     new(mockWalletRepo),
		entries:     new(mockLedgerRepo),
		deposits:    new(mockDepositRepo),
		withdrawals: new(mockWithdrawalRepo),
		commissions: new(mockCommissionRepo),
		directory:   new(mockDirectory),
	}
	engine := NewEngine(passthroughTx{}, m.wallets, m.entries, m.deposits, m.withdrawals, m.commissions, m.directory, publisher, nil)
	return engine, m
}

// recordingPublisher 按序收集发布的事件
type recordingPublisher struct {
	events []LedgerEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event LedgerEvent) {
	p.events = append(p.events, event)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// decEq 按数值比较 decimal 参数
func decEq(s string) interface{} {
	want := dec(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func activeAccount(userID string) *domain.AccountInfo {
	return &domain.AccountInfo{
		UserID:       userID,
		Role:         domain.RoleUser,
		Status:       domain.StatusActive,
		ReferralCode: "CODE-" + userID,
	}
}

func TestRequestDeposit_Success(t *testing.T) {
	engine, m := newTestEngine()
	ctx := context.Background()

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.deposits.On("FindByTxID", mock.Anything, "0xabc").Return(nil, nil)
	m.deposits.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Deposit) bool {
		return d.UserID == "USR-1" && d.Status == domain.DepositPending && d.TxID == "0xabc"
	})).Return(nil)

	deposit, err := engine.RequestDeposit(ctx, "USR-1", "USDT", dec("100"), "0xabc")
	assert.NoError(t, err)
	assert.Equal(t, domain.DepositPending, deposit.Status)
	assert.Equal(t, "USDT", deposit.Currency)
	m.deposits.AssertExpectations(t)
}

func TestRequestDeposit_DuplicateTxID(t *testing.T) {
	engine, m := newTestEngine()
	ctx := context.Background()

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.deposits.On("FindByTxID", mock.Anything, "0xabc").Return(&domain.Deposit{TxID: "0xabc"}, nil)

	_, err := engine.RequestDeposit(ctx, "USR-1", "USDT", dec("100"), "0xabc")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
	m.deposits.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.RequestDeposit(context.Background(), "USR-1", "USDT", dec("0"), "0xabc")
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = engine.RequestDeposit(context.Background(), "USR-1", "USDT", dec("-5"), "0xdef")
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestRequestDeposit_BlockedAccount(t *testing.T) {
	engine, m := newTestEngine()

	blocked := activeAccount("USR-1")
	blocked.Status = domain.StatusBlocked
	m.directory.On("Get", mock.Anything, "USR-1").Return(blocked, nil)

	_, err := engine.RequestDeposit(context.Background(), "USR-1", "USDT", dec("100"), "0xabc")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
}

func TestApproveDeposit_SettlesWalletAndLedger(t *testing.T) {
	engine, m := newTestEngine()
	ctx := context.Background()

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-1",
		Amount:    dec("100"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	wallet := &domain.Wallet{UserID: "USR-1", Currency: "USDT", Balance: decimal.Zero}
	wallet.ID = 7

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(true, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "USDT").Return(wallet, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(7), decEq("100")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.LedgerEntry) bool {
		return e.Type == domain.EntryDeposit && e.Amount.Equal(dec("100")) && e.Reference == "DEP-1"
	})).Return(nil)
	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)

	settled, err := engine.ApproveDeposit(ctx, "DEP-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.DepositActive, settled.Status)
	m.wallets.AssertExpectations(t)
	m.entries.AssertExpectations(t)
	m.commissions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestApproveDeposit_AlreadyProcessed(t *testing.T) {
	engine, m := newTestEngine()

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(&domain.Deposit{
		DepositID: "DEP-1",
		Status:    domain.DepositActive,
	}, nil)

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
	m.wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveDeposit_ConcurrentSettlementLosesRace(t *testing.T) {
	engine, m := newTestEngine()

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-1",
		Amount:    dec("100"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(false, nil)

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
	m.wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
	m.entries.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestApproveDeposit_PaysReferralCommission(t *testing.T) {
	engine, m := newTestEngine()

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-2",
		Amount:    dec("200"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	depositorWallet := &domain.Wallet{UserID: "USR-2", Currency: "USDT"}
	depositorWallet.ID = 2
	referrerWallet := &domain.Wallet{UserID: "USR-1", Currency: "USDT"}
	referrerWallet.ID = 1

	depositor := activeAccount("USR-2")
	depositor.ReferredBy = "CODE-USR-1"
	referrer := activeAccount("USR-1")

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(true, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-2", "USDT").Return(depositorWallet, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "USDT").Return(referrerWallet, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(2), decEq("200")).Return(nil)
	// 佣金 = 200 × 5% = 10
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("10")).Return(nil)
	m.directory.On("Get", mock.Anything, "USR-2").Return(depositor, nil)
	m.directory.On("FindByReferralCode", mock.Anything, "CODE-USR-1").Return(referrer, nil)
	m.commissions.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.ReferralCommission) bool {
		return c.ReferrerID == "USR-1" && c.UserID == "USR-2" && c.Amount.Equal(dec("10")) && c.Source == "DEPOSIT"
	})).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.LedgerEntry) bool {
		return e.Type == domain.EntryDeposit && e.UserID == "USR-2"
	})).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.LedgerEntry) bool {
		return e.Type == domain.EntryCommission && e.UserID == "USR-1" && e.Amount.Equal(dec("10"))
	})).Return(nil)

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.NoError(t, err)
	m.commissions.AssertExpectations(t)
	m.wallets.AssertExpectations(t)
}

// 佣金级联成功后，充值事件与佣金事件都要发布
func TestApproveDeposit_PublishesCommissionEvent(t *testing.T) {
	pub := &recordingPublisher{}
	engine, m := newTestEngineWithPublisher(pub)

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-2",
		Amount:    dec("200"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	depositorWallet := &domain.Wallet{UserID: "USR-2", Currency: "USDT"}
	depositorWallet.ID = 2
	referrerWallet := &domain.Wallet{UserID: "USR-1", Currency: "USDT"}
	referrerWallet.ID = 1

	depositor := activeAccount("USR-2")
	depositor.ReferredBy = "CODE-USR-1"
	referrer := activeAccount("USR-1")

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(true, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-2", "USDT").Return(depositorWallet, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "USDT").Return(referrerWallet, nil)
	m.wallets.On("AdjustBalance", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.directory.On("Get", mock.Anything, "USR-2").Return(depositor, nil)
	m.directory.On("FindByReferralCode", mock.Anything, "CODE-USR-1").Return(referrer, nil)
	m.commissions.On("Create", mock.Anything, mock.Anything).Return(nil)
	m.entries.On("Append", mock.Anything, mock.Anything).Return(nil)

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.NoError(t, err)

	assert.Len(t, pub.events, 2)
	assert.Equal(t, EventDepositApproved, pub.events[0].Type)
	commissionEvent := pub.events[1]
	assert.Equal(t, EventCommissionPaid, commissionEvent.Type)
	assert.Equal(t, "USR-1", commissionEvent.UserID)
	assert.Equal(t, "USDT", commissionEvent.Currency)
	assert.True(t, commissionEvent.Amount.Equal(dec("10")))
	assert.Equal(t, "DEP-1", commissionEvent.Reference)
}

// 无推荐人时只发布充值事件
func TestApproveDeposit_NoCommissionEventWithoutReferrer(t *testing.T) {
	pub := &recordingPublisher{}
	engine, m := newTestEngineWithPublisher(pub)

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-1",
		Amount:    dec("100"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	wallet := &domain.Wallet{UserID: "USR-1", Currency: "USDT"}
	wallet.ID = 7

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(true, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "USDT").Return(wallet, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(7), decEq("100")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.Anything).Return(nil)
	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.NoError(t, err)

	assert.Len(t, pub.events, 1)
	assert.Equal(t, EventDepositApproved, pub.events[0].Type)
}

func TestApproveDeposit_SkipsInvalidReferralCode(t *testing.T) {
	engine, m := newTestEngine()

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-2",
		Amount:    dec("100"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	wallet := &domain.Wallet{UserID: "USR-2", Currency: "USDT"}
	wallet.ID = 2

	depositor := activeAccount("USR-2")
	depositor.ReferredBy = "GONE"

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(true, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-2", "USDT").Return(wallet, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(2), decEq("100")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.Anything).Return(nil)
	m.directory.On("Get", mock.Anything, "USR-2").Return(depositor, nil)
	m.directory.On("FindByReferralCode", mock.Anything, "GONE").Return(nil, nil)

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.NoError(t, err)
	m.commissions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestApproveDeposit_FailsWhenLedgerAppendFails(t *testing.T) {
	engine, m := newTestEngine()

	deposit := &domain.Deposit{
		DepositID: "DEP-1",
		UserID:    "USR-1",
		Amount:    dec("100"),
		Currency:  "USDT",
		Status:    domain.DepositPending,
	}
	wallet := &domain.Wallet{UserID: "USR-1", Currency: "USDT"}
	wallet.ID = 7

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(deposit, nil)
	m.deposits.On("Transition", mock.Anything, "DEP-1", domain.DepositPending, domain.DepositActive).Return(true, nil)
	m.wallets.On("FindOrCreate", mock.Anything, "USR-1", "USDT").Return(wallet, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(7), decEq("100")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := engine.ApproveDeposit(context.Background(), "DEP-1")
	assert.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDependency))
}

func TestTransfer_InternalSettlesBothLegs(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("2"), Address: "addr-1"}
	sender.ID = 1
	receiver := &domain.Wallet{UserID: "USR-2", Currency: "BTC", Balance: dec("0"), Address: "addr-2"}
	receiver.ID = 2

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)
	m.wallets.On("FindByAddress", mock.Anything, "addr-2").Return(receiver, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("-0.5")).Return(nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(2), decEq("0.5")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.LedgerEntry) bool {
		return e.UserID == "USR-1" && e.Type == domain.EntryWithdrawal && e.Amount.Equal(dec("-0.5"))
	})).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.LedgerEntry) bool {
		return e.UserID == "USR-2" && e.Type == domain.EntryDeposit && e.Amount.Equal(dec("0.5"))
	})).Return(nil)

	result, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("0.5"), "addr-2")
	assert.NoError(t, err)
	assert.Equal(t, RouteInternal, result.Route)
	assert.Nil(t, result.Withdrawal)
	m.wallets.AssertExpectations(t)
	m.entries.AssertExpectations(t)
	m.withdrawals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTransfer_ExternalRecordsPendingWithdrawal(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("2"), Address: "addr-1"}
	sender.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)
	m.wallets.On("FindByAddress", mock.Anything, "bc1-external").Return(nil, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("-1")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.LedgerEntry) bool {
		return e.Type == domain.EntryWithdrawal && e.Amount.Equal(dec("-1"))
	})).Return(nil)
	m.withdrawals.On("Create", mock.Anything, mock.MatchedBy(func(w *domain.Withdrawal) bool {
		return w.UserID == "USR-1" && w.Status == domain.WithdrawalPending && w.Address == "bc1-external"
	})).Return(nil)

	result, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("1"), "bc1-external")
	assert.NoError(t, err)
	assert.Equal(t, RouteExternal, result.Route)
	assert.NotNil(t, result.Withdrawal)
	m.withdrawals.AssertExpectations(t)
}

func TestTransfer_RejectsSelfTransfer(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("2"), Address: "addr-1"}
	sender.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)

	_, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("1"), "addr-1")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
	m.wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("0.1"), Address: "addr-1"}
	sender.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)

	_, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("1"), "addr-2")
	assert.True(t, errs.IsKind(err, errs.KindInsufficientFunds))
	m.wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
	m.entries.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

// 守卫更新在并发下拒绝扣减时，错误必须保持余额不足分类并映射到 422
func TestTransfer_GuardedDebitRejectionKeepsKind(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("2"), Address: "addr-1"}
	sender.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)
	m.wallets.On("FindByAddress", mock.Anything, "bc1-external").Return(nil, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("-1")).
		Return(errs.InsufficientFunds("balance adjustment rejected for wallet 1"))

	_, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("1"), "bc1-external")
	assert.True(t, errs.IsKind(err, errs.KindInsufficientFunds))
	assert.Equal(t, http.StatusUnprocessableEntity, errs.HTTPStatus(err))
	m.entries.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	m.withdrawals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// 余额恰好等于划转金额时必须放行
func TestTransfer_ExactBalanceSucceeds(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("1"), Address: "addr-1"}
	sender.ID = 1

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)
	m.wallets.On("FindByAddress", mock.Anything, "bc1-external").Return(nil, nil)
	m.wallets.On("AdjustBalance", mock.Anything, uint(1), decEq("-1")).Return(nil)
	m.entries.On("Append", mock.Anything, mock.Anything).Return(nil)
	m.withdrawals.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("1"), "bc1-external")
	assert.NoError(t, err)
	assert.Equal(t, RouteExternal, result.Route)
}

func TestTransfer_CurrencyMismatch(t *testing.T) {
	engine, m := newTestEngine()

	sender := &domain.Wallet{UserID: "USR-1", Currency: "BTC", Balance: dec("2"), Address: "addr-1"}
	sender.ID = 1
	receiver := &domain.Wallet{UserID: "USR-2", Currency: "ETH", Balance: dec("0"), Address: "addr-2"}
	receiver.ID = 2

	m.directory.On("Get", mock.Anything, "USR-1").Return(activeAccount("USR-1"), nil)
	m.wallets.On("Find", mock.Anything, "USR-1", "BTC").Return(sender, nil)
	m.wallets.On("FindByAddress", mock.Anything, "addr-2").Return(receiver, nil)

	_, err := engine.Transfer(context.Background(), "USR-1", "BTC", dec("1"), "addr-2")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
	m.wallets.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteDeposit_RejectsProcessed(t *testing.T) {
	engine, m := newTestEngine()

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(&domain.Deposit{
		DepositID: "DEP-1",
		Status:    domain.DepositActive,
	}, nil)
	m.deposits.On("DeletePending", mock.Anything, "DEP-1").Return(false, nil)

	err := engine.DeleteDeposit(context.Background(), "DEP-1")
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
}

func TestDeleteDeposit_RemovesPending(t *testing.T) {
	engine, m := newTestEngine()

	m.deposits.On("Get", mock.Anything, "DEP-1").Return(&domain.Deposit{
		DepositID: "DEP-1",
		Status:    domain.DepositPending,
	}, nil)
	m.deposits.On("DeletePending", mock.Anything, "DEP-1").Return(true, nil)

	err := engine.DeleteDeposit(context.Background(), "DEP-1")
	assert.NoError(t, err)
}

func TestDeleteDeposit_NotFound(t *testing.T) {
	engine, m := newTestEngine()

	m.deposits.On("Get", mock.Anything, "DEP-404").Return(nil, nil)

	err := engine.DeleteDeposit(context.Background(), "DEP-404")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}
