package sqlstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/DomeLiquid/pawnshop/pawnshop"
	"github.com/DomeLiquid/pawnshop/store/memory"
	"github.com/DomeLiquid/pawnshop/store/sqlstore"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.Must(uuid.NewV4()))
	db, err := sqlstore.Open(sqlstore.DriverSqlite, dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, sqlstore.Migrate(db))
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := sqlstore.Open("mysql", "")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestLoanStore(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	store := sqlstore.NewLoanStore(db, "btc-usdt")
	owner := uuid.Must(uuid.NewV4())

	totals, err := store.GetLoanTotals(ctx)
	require.NoError(t, err)
	assert.True(t, totals.TotalLoan.IsZero())

	var ids []uint64
	for i := 0; i < 3; i++ {
		id, err := store.NextLoanId(ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	loan := &core.Loan{
		Id:                         1,
		Owner:                      owner,
		CollateralBalanceOriginal:  core.MustAmount("100000000000000000000000000000"),
		CollateralBalanceAvailable: core.NewAmount(158),
		LoanBalanceTotal:           core.NewAmount(400),
		Status:                     core.LoanStatusWell,
		CreatedAt:                  1_700_000_000,
		UpdatedAt:                  1_700_000_000,
	}
	totals = &core.LoanTotals{TotalLoan: core.NewAmount(400), TotalCollateral: core.NewAmount(1_000), LastBonusTime: 1_700_000_000}
	require.NoError(t, store.CreateLoan(ctx, loan, totals))
	assert.Error(t, store.CreateLoan(ctx, loan, totals))

	stored, err := store.GetLoan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loan, stored)

	loan.Status = core.LoanStatusWarning
	require.NoError(t, store.UpdateLoan(ctx, loan, nil))
	stored, err = store.GetLoan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.LoanStatusWarning, stored.Status)

	gotTotals, err := store.GetLoanTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, gotTotals)

	missing := loan.Clone()
	missing.Id = 9
	assert.ErrorIs(t, store.UpdateLoan(ctx, missing, nil), core.ErrLoanNotFound)

	// a batch with an unknown loan leaves every row and the totals alone
	charged := loan.Clone()
	charged.LoanBalanceTotal = core.NewAmount(421)
	err = store.UpdateLoans(ctx, []*core.Loan{charged, missing}, &core.LoanTotals{TotalLoan: core.NewAmount(421)})
	assert.ErrorIs(t, err, core.ErrLoanNotFound)
	stored, err = store.GetLoan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.NewAmount(400), stored.LoanBalanceTotal)
	gotTotals, err = store.GetLoanTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, gotTotals)

	accrued := &core.LoanTotals{TotalLoan: core.NewAmount(421), TotalCollateral: core.NewAmount(1_000), LastBonusTime: 1_700_000_060}
	require.NoError(t, store.UpdateLoans(ctx, []*core.Loan{charged}, accrued))
	stored, err = store.GetLoan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.NewAmount(421), stored.LoanBalanceTotal)
	gotTotals, err = store.GetLoanTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, accrued, gotTotals)
	totals = accrued

	require.NoError(t, store.CreateLoan(ctx, &core.Loan{Id: 2, Owner: uuid.Must(uuid.NewV4()), Status: core.LoanStatusWell}, totals))
	require.NoError(t, store.CreateLoan(ctx, &core.Loan{Id: 3, Owner: owner, Status: core.LoanStatusWell}, totals))

	all, err := store.ListLoans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[2].Id)

	mine, err := store.ListLoansByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(1), mine[0].Id)
	assert.Equal(t, uint64(3), mine[1].Id)

	require.NoError(t, store.RemoveLoan(ctx, 1, &core.LoanTotals{}))
	_, err = store.GetLoan(ctx, 1)
	assert.ErrorIs(t, err, core.ErrLoanNotFound)
	assert.ErrorIs(t, store.RemoveLoan(ctx, 1, &core.LoanTotals{}), core.ErrLoanNotFound)

	// markets sharing a database stay apart
	other := sqlstore.NewLoanStore(db, "eth-usdt")
	id, err := other.NextLoanId(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	loans, err := other.ListLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestBorrowStore(t *testing.T) {
	ctx := context.Background()
	store := sqlstore.NewBorrowStore(setupDB(t), "p2p")
	owner := uuid.Must(uuid.NewV4())
	deadAfter := uint64(120)

	_, err := store.AliveBorrowOf(ctx, owner)
	assert.ErrorIs(t, err, core.ErrBorrowNotFound)

	borrow := &core.Borrow{
		Id:                1,
		Owner:             owner,
		CollateralAsset:   "btc",
		BorrowAsset:       "usdt",
		CollateralBalance: core.NewAmount(1_000),
		BorrowBalance:     core.NewAmount(400),
		Terms:             10,
		InterestRate:      200_000,
		DeadAfter:         &deadAfter,
		LockId:            7,
		LiquidationType:   core.SellCollateral,
		Status:            core.BorrowStatusAlive,
		CreatedBlock:      100,
	}
	require.NoError(t, store.SaveBorrow(ctx, borrow))
	// saving the same alive borrow again is an update
	require.NoError(t, store.SaveBorrow(ctx, borrow))

	second := borrow.Clone()
	second.Id = 2
	assert.ErrorIs(t, store.SaveBorrow(ctx, second), core.ErrBorrowAlreadyAlive)

	alive, err := store.AliveBorrowOf(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, borrow, alive)

	loan := &core.MatchedLoan{
		Id:                1,
		BorrowId:          1,
		Borrower:          owner,
		Lender:            uuid.Must(uuid.NewV4()),
		Due:               144_100,
		CollateralAsset:   "btc",
		LoanAsset:         "usdt",
		CollateralBalance: core.NewAmount(1_000),
		LoanBalance:       core.NewAmount(400),
		Terms:             10,
		InterestRate:      200_000,
		LiquidationType:   core.SellCollateral,
		Status:            core.MatchedLoanStatusWell,
		CreatedBlock:      110,
	}
	taken := borrow.Clone()
	taken.Status = core.BorrowStatusTaken
	taken.LoanId = 1
	require.NoError(t, store.SaveMatch(ctx, taken, loan))

	_, err = store.AliveBorrowOf(ctx, owner)
	assert.ErrorIs(t, err, core.ErrBorrowNotFound)
	require.NoError(t, store.SaveBorrow(ctx, second))

	stored, err := store.GetMatchedLoan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loan, stored)
	_, err = store.GetMatchedLoan(ctx, 2)
	assert.ErrorIs(t, err, core.ErrMatchedLoanNotFound)

	well, err := store.ListMatchedLoansByStatus(ctx, core.MatchedLoanStatusWell)
	require.NoError(t, err)
	assert.Len(t, well, 1)
	aliveBorrows, err := store.ListBorrowsByStatus(ctx, core.BorrowStatusAlive)
	require.NoError(t, err)
	require.Len(t, aliveBorrows, 1)
	assert.Equal(t, uint64(2), aliveBorrows[0].Id)
}

func TestShareStore(t *testing.T) {
	ctx := context.Background()
	store := sqlstore.NewShareStore(setupDB(t), "btc-usdt")
	account := uuid.Must(uuid.NewV4())

	pool, err := store.GetSharePool(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.NewSharePool(), pool)

	pool.TotalShares = core.NewAmount(100)
	pool.TotalDeposit = core.NewAmount(100)
	require.NoError(t, store.SaveShares(ctx, pool, account, core.NewAmount(100)))

	shares, err := store.GetShares(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, core.NewAmount(100), shares)
	stored, err := store.GetSharePool(ctx)
	require.NoError(t, err)
	assert.Equal(t, pool, stored)

	require.NoError(t, store.SaveShares(ctx, core.NewSharePool(), account, core.ZeroAmount))
	shares, err = store.GetShares(ctx, account)
	require.NoError(t, err)
	assert.True(t, shares.IsZero())
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	log := sqlstore.NewEventLog(setupDB(t), "btc-usdt", nil)
	account := uuid.Must(uuid.NewV4())

	for block := uint64(1); block <= 3; block++ {
		log.Emit(ctx, core.Event{Type: core.EventStaked, Block: block, Account: account, Amount: core.NewAmount(block)})
	}

	events, next, err := log.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.EventStaked, events[0].Type)
	assert.Equal(t, account, events[0].Account)
	assert.Equal(t, core.NewAmount(2), events[1].Amount)

	events, next, err = log.List(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(3), events[0].Block)

	events, _, err = log.List(ctx, next, 2)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPawnshopOnSqlStores(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	usdt := core.Asset{AssetId: "4d8c508b-91c5-375b-92b0-ee702ed2dac5", Symbol: "USDT"}
	btc := core.Asset{AssetId: "c6d0c728-2624-429b-8e0d-d9d19b6592fa", Symbol: "BTC"}
	params := core.DefaultParams("btc-usdt", usdt, btc)

	mock := clock.NewMock()
	mock.Add(1_700_000_000 * time.Second)
	ledger := memory.NewLedger()
	oracle := memory.NewOracle()
	oracle.SetPrice("USDT", core.PRECISION)
	oracle.SetPrice("BTC", core.PRECISION)
	events := sqlstore.NewEventLog(db, "btc-usdt", nil)

	market, err := pawnshop.New(params, ledger, oracle, core.NewChainClock(mock, 1),
		sqlstore.NewLoanStore(db, "btc-usdt"), sqlstore.NewShareStore(db, "btc-usdt"),
		pawnshop.WithEventSink(events))
	require.NoError(t, err)

	staker := uuid.Must(uuid.NewV4())
	borrower := uuid.Must(uuid.NewV4())
	require.NoError(t, ledger.Mint(usdt.AssetId, staker, core.NewAmount(10_000)))
	require.NoError(t, ledger.Mint(btc.AssetId, borrower, core.NewAmount(1_000)))

	_, err = market.Stake(ctx, staker, core.NewAmount(10_000))
	require.NoError(t, err)
	loan, err := market.ApplyForLoan(ctx, borrower, core.NewAmount(1_000), core.NewAmount(400))
	require.NoError(t, err)

	_, err = market.Sweep(ctx)
	require.NoError(t, err)
	mock.Add(365 * 24 * time.Hour)
	report, err := market.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.NewAmount(21), report.Interest)

	stored, err := market.Loan(ctx, loan.Id)
	require.NoError(t, err)
	assert.Equal(t, core.NewAmount(421), stored.LoanBalanceTotal)
	pool, err := market.SharePool(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.NewAmount(100_210_000), pool.ValueOfTokens)

	recorded, _, err := events.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	assert.Equal(t, core.EventLoanCreated, recorded[1].Type)
	assert.Equal(t, core.EventInterestAccrued, recorded[2].Type)
}
