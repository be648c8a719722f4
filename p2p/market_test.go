package p2p

import (
	"context"
	"math"
	"testing"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/DomeLiquid/pawnshop/store/memory"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdt = core.Asset{AssetId: "4d8c508b-91c5-375b-92b0-ee702ed2dac5", Symbol: "USDT"}
	btc  = core.Asset{AssetId: "c6d0c728-2624-429b-8e0d-d9d19b6592fa", Symbol: "BTC"}
	eth  = core.Asset{AssetId: "43d61dcd-e413-450d-80b8-101d5e903357", Symbol: "ETH"}

	btcUsdt = core.TradingPair{Collateral: btc, Borrow: usdt}
)

func units(v uint64) core.Amount {
	return core.NewAmount(v * core.PRECISION)
}

type fixture struct {
	market  *Market
	ledger  *memory.Ledger
	oracle  *memory.Oracle
	chain   *core.ChainClock
	borrows *memory.BorrowStore
	events  *memory.EventRecorder
	params  core.MarketParams

	maker  uuid.UUID
	lender uuid.UUID
}

func newFixture(t *testing.T, variant core.Variant) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Add(1_700_000_000 * time.Second)

	f := &fixture{
		ledger:  memory.NewLedger(),
		oracle:  memory.NewOracle(),
		chain:   core.NewChainClock(mock, 1),
		borrows: memory.NewBorrowStore(),
		events:  memory.NewEventRecorder(),
		params:  core.DefaultMarketParams("p2p-test", variant, btcUsdt),
		maker:   uuid.Must(uuid.NewV4()),
		lender:  uuid.Must(uuid.NewV4()),
	}
	f.oracle.SetPrice("USDT", core.PRECISION)
	f.oracle.SetPrice("BTC", core.PRECISION)

	market, err := New(f.params, f.ledger, f.oracle, f.chain, f.borrows, WithEventSink(f.events))
	require.NoError(t, err)
	f.market = market

	require.NoError(t, f.ledger.Mint(btc.AssetId, f.maker, units(1_000)))
	require.NoError(t, f.ledger.Mint(usdt.AssetId, f.lender, units(10_000)))
	return f
}

func (f *fixture) balance(t *testing.T, asset core.Asset, account uuid.UUID) core.Amount {
	t.Helper()
	b, err := f.ledger.FreeBalance(context.Background(), asset.AssetId, account)
	require.NoError(t, err)
	return b
}

// defaultOptions borrows 400 USDT for 10 days at 0.2% a day, 8 USDT of interest.
func defaultOptions() core.BorrowOptions {
	return core.BorrowOptions{Amount: units(400), Terms: 10, InterestRate: 200_000}
}

func (f *fixture) listBorrow(t *testing.T, opts core.BorrowOptions) *core.Borrow {
	t.Helper()
	borrow, err := f.market.CreateBorrow(context.Background(), f.maker, units(1_000), btcUsdt, opts)
	require.NoError(t, err)
	return borrow
}

func (f *fixture) match(t *testing.T, opts core.BorrowOptions) (*core.Borrow, *core.MatchedLoan) {
	t.Helper()
	borrow := f.listBorrow(t, opts)
	loan, err := f.market.CreateLoan(context.Background(), f.lender, borrow.Id)
	require.NoError(t, err)
	return borrow, loan
}

func TestCreateBorrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)

	borrow := f.listBorrow(t, defaultOptions())
	assert.Equal(t, core.BorrowStatusAlive, borrow.Status)
	assert.Equal(t, core.JustCollateral, borrow.LiquidationType)
	assert.Nil(t, borrow.DeadAfter)
	assert.Equal(t, units(1_000), f.ledger.TotalLocked(btc.AssetId, f.maker))
	assert.True(t, f.balance(t, btc, f.maker).IsZero())

	alive, err := f.market.AliveBorrowOf(ctx, f.maker)
	require.NoError(t, err)
	assert.Equal(t, borrow.Id, alive.Id)

	require.NoError(t, f.ledger.Mint(btc.AssetId, f.maker, units(1_000)))
	_, err = f.market.CreateBorrow(ctx, f.maker, units(1_000), btcUsdt, defaultOptions())
	assert.ErrorIs(t, err, core.ErrBorrowAlreadyAlive)
	assert.Len(t, f.events.OfType(core.EventBorrowListed), 1)
}

func TestCreateBorrowValidation(t *testing.T) {
	tests := []struct {
		name       string
		collateral core.Amount
		pair       core.TradingPair
		opts       func(o *core.BorrowOptions)
		setup      func(f *fixture)
		wantErr    error
	}{
		{
			name:       "ltv at safe ltv",
			collateral: units(1_000),
			opts:       func(o *core.BorrowOptions) { o.Amount = units(500) },
			wantErr:    core.ErrOverLTVLimit,
		},
		{
			name:       "zero collateral",
			collateral: core.ZeroAmount,
			wantErr:    core.ErrInvalidAmount,
		},
		{
			name:       "zero amount",
			collateral: units(1_000),
			opts:       func(o *core.BorrowOptions) { o.Amount = core.ZeroAmount },
			wantErr:    core.ErrInvalidAmount,
		},
		{
			name:       "terms too short",
			collateral: units(1_000),
			opts:       func(o *core.BorrowOptions) { o.Terms = 0 },
			wantErr:    core.ErrTermsTooShort,
		},
		{
			name:       "rate too low",
			collateral: units(1_000),
			opts:       func(o *core.BorrowOptions) { o.InterestRate = 0 },
			wantErr:    core.ErrInterestRateTooLow,
		},
		{
			name:       "pair not allowed",
			collateral: units(1_000),
			pair:       core.TradingPair{Collateral: eth, Borrow: usdt},
			wantErr:    core.ErrTradingPairNotAllowed,
		},
		{
			name:       "unknown liquidation type",
			collateral: units(1_000),
			opts:       func(o *core.BorrowOptions) { o.LiquidationType = 9 },
			wantErr:    core.ErrUnknownLiquidationType,
		},
		{
			name:       "price missing",
			collateral: units(1_000),
			setup:      func(f *fixture) { f.oracle.ClearPrice("BTC") },
			wantErr:    core.ErrTradingPairPriceMissing,
		},
		{
			name:       "collateral not held",
			collateral: units(1_001),
			opts:       func(o *core.BorrowOptions) { o.Amount = units(1) },
			wantErr:    core.ErrInsufficientBalance,
		},
		{
			name:       "paused",
			collateral: units(1_000),
			setup:      func(f *fixture) { f.market.Pause() },
			wantErr:    core.ErrPaused,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.P2P)
			if tt.setup != nil {
				tt.setup(f)
			}
			opts := defaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			pair := btcUsdt
			if tt.pair.Collateral.Valid() {
				pair = tt.pair
			}
			_, err := f.market.CreateBorrow(context.Background(), f.maker, tt.collateral, pair, opts)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = f.market.AliveBorrowOf(context.Background(), f.maker)
			assert.ErrorIs(t, err, core.ErrBorrowNotFound)
			assert.True(t, f.ledger.TotalLocked(btc.AssetId, f.maker).IsZero())
		})
	}
}

func TestCreateBorrowWarranty(t *testing.T) {
	f := newFixture(t, core.LsBiding)
	f.chain.SetBlockNumber(100)
	opts := defaultOptions()
	opts.Warranty = 20
	opts.LiquidationType = core.SellCollateral

	borrow := f.listBorrow(t, opts)
	require.NotNil(t, borrow.DeadAfter)
	assert.Equal(t, uint64(120), *borrow.DeadAfter)
	assert.Equal(t, core.SellCollateral, borrow.LiquidationType)
	assert.False(t, borrow.IsExpired(120))
	assert.True(t, borrow.IsExpired(121))
}

func TestCreateBorrowRejectsWrappingBlocks(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*core.BorrowOptions)
	}{
		{"terms", func(o *core.BorrowOptions) { o.Terms = math.MaxUint64/14_400 + 1 }},
		{"warranty", func(o *core.BorrowOptions) { o.Warranty = math.MaxUint64 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.P2P)
			opts := defaultOptions()
			tt.modify(&opts)

			_, err := f.market.CreateBorrow(context.Background(), f.maker, units(1_000), btcUsdt, opts)
			assert.ErrorIs(t, err, core.ErrArithmeticOverflow)
			_, err = f.market.AliveBorrowOf(context.Background(), f.maker)
			assert.ErrorIs(t, err, core.ErrBorrowNotFound)
			assert.True(t, f.ledger.TotalLocked(btc.AssetId, f.maker).IsZero())
		})
	}
}

func TestCreateLoanRejectsWrappingDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	borrow := f.listBorrow(t, defaultOptions())

	f.chain.SetBlockNumber(math.MaxUint64 - 5)
	_, err := f.market.CreateLoan(ctx, f.lender, borrow.Id)
	assert.ErrorIs(t, err, core.ErrArithmeticOverflow)

	stored, err := f.market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusAlive, stored.Status)
	assert.Equal(t, units(10_000), f.balance(t, usdt, f.lender))
	assert.Equal(t, units(1_000), f.ledger.TotalLocked(btc.AssetId, f.maker))
	assert.Empty(t, f.events.OfType(core.EventLoanMatched))
}

func TestCancelBorrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	borrow := f.listBorrow(t, defaultOptions())

	err := f.market.CancelBorrow(ctx, f.lender, borrow.Id)
	assert.ErrorIs(t, err, core.ErrNotOwner)

	require.NoError(t, f.market.CancelBorrow(ctx, f.maker, borrow.Id))
	assert.Equal(t, units(1_000), f.balance(t, btc, f.maker))
	assert.True(t, f.ledger.TotalLocked(btc.AssetId, f.maker).IsZero())

	stored, err := f.market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusCanceled, stored.Status)

	err = f.market.CancelBorrow(ctx, f.maker, borrow.Id)
	assert.ErrorIs(t, err, core.ErrBorrowNotAlive)
	assert.Len(t, f.events.OfType(core.EventBorrowUnlisted), 1)

	// the maker may list again
	f.listBorrow(t, defaultOptions())
}

func TestAddCollateralToAliveBorrow(t *testing.T) {
	tests := []struct {
		variant core.Variant
		wantErr error
	}{
		{variant: core.P2P},
		{variant: core.LsBiding, wantErr: core.ErrBorrowNotTaken},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tt.variant)
			require.NoError(t, f.ledger.Mint(btc.AssetId, f.maker, units(100)))
			borrow := f.listBorrow(t, defaultOptions())

			updated, err := f.market.AddCollateral(ctx, f.maker, borrow.Id, units(100))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, units(1_000), f.ledger.TotalLocked(btc.AssetId, f.maker))
				assert.Equal(t, units(100), f.balance(t, btc, f.maker))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, units(1_100), updated.CollateralBalance)
			assert.Equal(t, units(1_100), f.ledger.TotalLocked(btc.AssetId, f.maker))
			assert.True(t, f.balance(t, btc, f.maker).IsZero())

			// the taker receives the larger reservation
			loan, err := f.market.CreateLoan(ctx, f.lender, borrow.Id)
			require.NoError(t, err)
			assert.Equal(t, units(1_100), loan.CollateralBalance)
		})
	}
}

func TestAddCollateralToTakenBorrow(t *testing.T) {
	for _, variant := range []core.Variant{core.P2P, core.LsBiding} {
		t.Run(variant.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, variant)
			borrow, loan := f.match(t, defaultOptions())
			require.NoError(t, f.ledger.Mint(btc.AssetId, f.maker, units(50)))

			_, err := f.market.AddCollateral(ctx, f.maker, borrow.Id, units(51))
			assert.ErrorIs(t, err, core.ErrInsufficientBalance)

			updated, err := f.market.AddCollateral(ctx, f.maker, borrow.Id, units(50))
			require.NoError(t, err)
			assert.Equal(t, units(1_050), updated.CollateralBalance)
			assert.Equal(t, units(1_050), f.balance(t, btc, f.params.PoolAccount))

			stored, err := f.market.MatchedLoan(ctx, loan.Id)
			require.NoError(t, err)
			assert.Equal(t, units(1_050), stored.CollateralBalance)
			assert.Len(t, f.events.OfType(core.EventCollateralAdded), 1)
		})
	}
}

func TestCreateLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	borrow := f.listBorrow(t, defaultOptions())

	poor := uuid.Must(uuid.NewV4())
	_, err := f.market.CreateLoan(ctx, poor, borrow.Id)
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	loan, err := f.market.CreateLoan(ctx, f.lender, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, borrow.Id, loan.BorrowId)
	assert.Equal(t, f.maker, loan.Borrower)
	assert.Equal(t, f.lender, loan.Lender)
	assert.Equal(t, uint64(1+10*core.BLOCKS_PER_DAY), loan.Due)
	assert.Equal(t, core.MatchedLoanStatusWell, loan.Status)

	need, err := loan.NeedToPay()
	require.NoError(t, err)
	assert.Equal(t, units(408), need)

	assert.Equal(t, units(400), f.balance(t, usdt, f.maker))
	assert.Equal(t, units(9_600), f.balance(t, usdt, f.lender))
	assert.Equal(t, units(1_000), f.balance(t, btc, f.params.PoolAccount))
	assert.True(t, f.ledger.TotalLocked(btc.AssetId, f.maker).IsZero())

	stored, err := f.market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusTaken, stored.Status)
	assert.Equal(t, loan.Id, stored.LoanId)

	_, err = f.market.CreateLoan(ctx, f.lender, borrow.Id)
	assert.ErrorIs(t, err, core.ErrBorrowNotAlive)
	assert.Len(t, f.events.OfType(core.EventLoanMatched), 1)
}

func TestCreateLoanKillsExpiredBorrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	opts := defaultOptions()
	opts.Warranty = 10
	borrow := f.listBorrow(t, opts)

	f.chain.SetBlockNumber(12)
	_, err := f.market.CreateLoan(ctx, f.lender, borrow.Id)
	assert.ErrorIs(t, err, core.ErrBorrowExpired)

	stored, err := f.market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusDead, stored.Status)
	assert.Equal(t, units(1_000), f.balance(t, btc, f.maker))
	assert.Equal(t, units(10_000), f.balance(t, usdt, f.lender))
	assert.Len(t, f.events.OfType(core.EventBorrowDied), 1)
}

func TestCreateLoanRevalidatesLtv(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	borrow := f.listBorrow(t, defaultOptions())

	// 400 / (1000 * 0.8) is exactly the safe ltv
	f.oracle.SetPrice("BTC", 80_000_000)
	_, err := f.market.CreateLoan(ctx, f.lender, borrow.Id)
	assert.ErrorIs(t, err, core.ErrOverLTVLimit)

	stored, err := f.market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusAlive, stored.Status)
	assert.Equal(t, units(1_000), f.ledger.TotalLocked(btc.AssetId, f.maker))
}

// flakyLedger fails the transfer numbered failAt, counted from when it is armed.
type flakyLedger struct {
	*memory.Ledger
	armed  bool
	calls  int
	failAt int
}

func (l *flakyLedger) Transfer(ctx context.Context, asset string, from, to uuid.UUID, amount core.Amount) error {
	if l.armed {
		l.calls++
		if l.calls == l.failAt {
			return errors.New("ledger unavailable")
		}
	}
	return l.Ledger.Transfer(ctx, asset, from, to, amount)
}

func TestCreateLoanRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	ledger := &flakyLedger{Ledger: f.ledger, failAt: 2}
	market, err := New(f.params, ledger, f.oracle, f.chain, f.borrows)
	require.NoError(t, err)

	borrow, err := market.CreateBorrow(ctx, f.maker, units(1_000), btcUsdt, defaultOptions())
	require.NoError(t, err)

	ledger.armed = true
	_, err = market.CreateLoan(ctx, f.lender, borrow.Id)
	require.Error(t, err)
	assert.False(t, core.IsFatal(err))

	stored, err := market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusAlive, stored.Status)
	locked, ok, err := f.ledger.LockedBalance(ctx, btc.AssetId, f.maker, stored.LockId)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, units(1_000), locked)

	assert.True(t, f.balance(t, btc, f.params.PoolAccount).IsZero())
	assert.Equal(t, units(10_000), f.balance(t, usdt, f.lender))
	assert.True(t, f.balance(t, usdt, f.maker).IsZero())

	// the restored reservation can still be taken
	ledger.armed = false
	_, err = market.CreateLoan(ctx, f.lender, borrow.Id)
	require.NoError(t, err)
}

func TestRepayLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	borrow, loan := f.match(t, defaultOptions())

	_, err := f.market.RepayLoan(ctx, f.lender, borrow.Id)
	assert.ErrorIs(t, err, core.ErrNotOwner)
	// the maker holds the principal but not the interest
	_, err = f.market.RepayLoan(ctx, f.maker, borrow.Id)
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	require.NoError(t, f.ledger.Mint(usdt.AssetId, f.maker, units(8)))
	repaid, err := f.market.RepayLoan(ctx, f.maker, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.MatchedLoanStatusCompleted, repaid.Status)

	assert.Equal(t, units(10_008), f.balance(t, usdt, f.lender))
	assert.True(t, f.balance(t, usdt, f.maker).IsZero())
	assert.Equal(t, units(1_000), f.balance(t, btc, f.maker))
	assert.True(t, f.balance(t, btc, f.params.PoolAccount).IsZero())

	stored, err := f.market.Borrow(ctx, borrow.Id)
	require.NoError(t, err)
	assert.Equal(t, core.BorrowStatusCompleted, stored.Status)

	_, err = f.market.RepayLoan(ctx, f.maker, borrow.Id)
	assert.ErrorIs(t, err, core.ErrBorrowNotTaken)
	assert.Len(t, f.events.OfType(core.EventMatchedLoanRepaid), 1)
	assert.Equal(t, loan.Id, f.events.OfType(core.EventMatchedLoanRepaid)[0].LoanId)
}

func TestRepayLoanAtLiquidationLtv(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.P2P)
	borrow, loan := f.match(t, defaultOptions())
	require.NoError(t, f.ledger.Mint(usdt.AssetId, f.maker, units(8)))

	// 400 / (1000 * 0.5)
	f.oracle.SetPrice("BTC", 50_000_000)
	_, err := f.market.RepayLoan(ctx, f.maker, borrow.Id)
	assert.ErrorIs(t, err, core.ErrShouldBeLiquidated)

	stored, err := f.market.MatchedLoan(ctx, loan.Id)
	require.NoError(t, err)
	assert.Equal(t, core.MatchedLoanStatusToBeLiquidated, stored.Status)
	assert.Len(t, f.events.OfType(core.EventLoanToBeLiquidated), 1)

	// flagged loans are no longer repayable
	f.oracle.SetPrice("BTC", core.PRECISION)
	_, err = f.market.RepayLoan(ctx, f.maker, borrow.Id)
	assert.ErrorIs(t, err, core.ErrLoanStatusMismatch)
	assert.Equal(t, units(408), f.balance(t, usdt, f.maker))
}
