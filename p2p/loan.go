package p2p

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// CreateLoan takes an alive borrow: the reserved collateral moves to the pool and the lender
// pays the principal to the maker. An expired borrow dies on the way and the call fails.
func (m *Market) CreateLoan(ctx context.Context, lender uuid.UUID, borrowId uint64) (*core.MatchedLoan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(true); err != nil {
		return nil, err
	}
	borrow, err := m.borrows.GetBorrow(ctx, borrowId)
	if err != nil {
		return nil, err
	}
	if borrow.Status != core.BorrowStatusAlive {
		return nil, errors.Wrapf(core.ErrBorrowNotAlive, "borrow %d is %s", borrowId, borrow.Status)
	}
	block := m.clock.BlockNumber()
	if borrow.IsExpired(block) {
		if err := m.killBorrow(ctx, borrow); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(core.ErrBorrowExpired, "borrow %d dead after block %d", borrowId, *borrow.DeadAfter)
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, borrow.BorrowAsset, lender, borrow.BorrowBalance); err != nil {
		return nil, err
	}
	locked, ok, err := m.ledger.LockedBalance(ctx, borrow.CollateralAsset, borrow.Owner, borrow.LockId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(core.ErrLockNotFound, "borrow %d lock %d", borrowId, borrow.LockId)
	}
	prices, err := m.pairPrices(ctx, borrow.CollateralAsset, borrow.BorrowAsset)
	if err != nil {
		return nil, err
	}
	below, ltv, err := core.LtvBelow(prices, borrow.BorrowBalance, locked, m.params.SafeLTV)
	if err != nil {
		return nil, err
	}
	if !below {
		return nil, errors.Wrapf(core.ErrOverLTVLimit, "ltv %d on reserved collateral %s, safe ltv %d", ltv, locked, m.params.SafeLTV)
	}
	id, err := m.borrows.NextMatchedLoanId(ctx)
	if err != nil {
		return nil, err
	}
	due, err := core.DueBlock(block, borrow.Terms, m.params.BlocksPerDay)
	if err != nil {
		return nil, err
	}
	loan := &core.MatchedLoan{
		Id:                id,
		BorrowId:          borrowId,
		Borrower:          borrow.Owner,
		Lender:            lender,
		Due:               due,
		CollateralAsset:   borrow.CollateralAsset,
		LoanAsset:         borrow.BorrowAsset,
		CollateralBalance: locked,
		LoanBalance:       borrow.BorrowBalance,
		Terms:             borrow.Terms,
		InterestRate:      borrow.InterestRate,
		LiquidationType:   borrow.LiquidationType,
		Status:            core.MatchedLoanStatusWell,
		CreatedBlock:      block,
	}

	if err := m.ledger.Unreserve(ctx, borrow.CollateralAsset, borrow.Owner, locked, borrow.LockId); err != nil {
		return nil, err
	}
	saga := m.newSaga()
	err = saga.Run(ctx,
		core.TransferLeg{Asset: borrow.CollateralAsset, From: borrow.Owner, To: m.params.PoolAccount, Amount: locked},
		core.TransferLeg{Asset: borrow.BorrowAsset, From: lender, To: borrow.Owner, Amount: borrow.BorrowBalance},
	)
	if err == nil {
		taken := borrow.Clone()
		taken.Status = core.BorrowStatusTaken
		taken.LoanId = id
		taken.CollateralBalance = locked
		if err = m.borrows.SaveMatch(ctx, taken, loan); err != nil {
			err = saga.Abort(ctx, err)
		}
	}
	if err != nil {
		if core.IsFatal(err) {
			return nil, err
		}
		return nil, m.restoreReservation(ctx, borrow, locked, err)
	}

	m.log.Info().Msgf("borrow %d taken by %s as loan %d, due block %d", borrowId, lender, id, loan.Due)
	m.emit(ctx, core.Event{
		Type:               core.EventLoanMatched,
		BorrowId:           borrowId,
		LoanId:             id,
		Account:            borrow.Owner,
		Counterparty:       lender,
		Amount:             loan.LoanBalance,
		CollateralOriginal: locked,
		Ltv:                ltv,
	})
	return loan, nil
}

// restoreReservation locks the collateral again after a failed match and returns cause.
func (m *Market) restoreReservation(ctx context.Context, borrow *core.Borrow, amount core.Amount, cause error) error {
	lockId, err := m.ledger.Reserve(ctx, borrow.CollateralAsset, borrow.Owner, amount)
	if err != nil {
		return errors.Wrapf(core.ErrCompensationFailed, "re-reserve borrow %d: %v (cause: %v)", borrow.Id, err, cause)
	}
	borrow.LockId = lockId
	if err := m.borrows.SaveBorrow(ctx, borrow); err != nil {
		return errors.Wrapf(core.ErrCompensationFailed, "save lock of borrow %d: %v (cause: %v)", borrow.Id, err, cause)
	}
	return cause
}

func (m *Market) killBorrow(ctx context.Context, borrow *core.Borrow) error {
	if err := m.releaseBorrow(ctx, borrow, core.BorrowStatusDead); err != nil {
		return err
	}
	m.log.Info().Msgf("borrow %d of %s died", borrow.Id, borrow.Owner)
	m.emit(ctx, core.Event{Type: core.EventBorrowDied, BorrowId: borrow.Id, Account: borrow.Owner, CollateralOriginal: borrow.CollateralBalance})
	return nil
}

// RepayLoan pays principal and term interest to the lender and returns the collateral. A loan that
// already prices at the liquidation bound is flagged instead and the call fails.
func (m *Market) RepayLoan(ctx context.Context, borrower uuid.UUID, borrowId uint64) (*core.MatchedLoan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return nil, err
	}
	borrow, err := m.ownedBorrow(ctx, borrower, borrowId)
	if err != nil {
		return nil, err
	}
	if borrow.Status != core.BorrowStatusTaken {
		return nil, errors.Wrapf(core.ErrBorrowNotTaken, "borrow %d is %s", borrowId, borrow.Status)
	}
	loan, err := m.borrows.GetMatchedLoan(ctx, borrow.LoanId)
	if err != nil {
		return nil, err
	}
	if loan.Status != core.MatchedLoanStatusWell {
		return nil, errors.Wrapf(core.ErrLoanStatusMismatch, "loan %d is %s", loan.Id, loan.Status)
	}
	prices, err := m.pairPrices(ctx, loan.CollateralAsset, loan.LoanAsset)
	if err != nil {
		return nil, err
	}
	ltv, err := prices.Ltv(loan.LoanBalance, loan.CollateralBalance)
	if err != nil {
		return nil, err
	}
	if ltv >= m.params.LiquidationLTV {
		if err := m.flagLoan(ctx, borrow, loan, core.MatchedLoanStatusToBeLiquidated, ltv); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(core.ErrShouldBeLiquidated, "loan %d ltv %d", loan.Id, ltv)
	}
	need, err := loan.NeedToPay()
	if err != nil {
		return nil, err
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, loan.LoanAsset, borrower, need); err != nil {
		return nil, err
	}

	saga := m.newSaga()
	if err := saga.Run(ctx,
		core.TransferLeg{Asset: loan.LoanAsset, From: borrower, To: loan.Lender, Amount: need},
		core.TransferLeg{Asset: loan.CollateralAsset, From: m.params.PoolAccount, To: borrower, Amount: loan.CollateralBalance},
	); err != nil {
		return nil, err
	}
	loan.Status = core.MatchedLoanStatusCompleted
	borrow.Status = core.BorrowStatusCompleted
	if err := m.borrows.SaveMatch(ctx, borrow, loan); err != nil {
		return nil, saga.Abort(ctx, err)
	}

	m.log.Info().Msgf("loan %d repaid by %s, paid %s", loan.Id, borrower, need)
	m.emit(ctx, core.Event{
		Type:               core.EventMatchedLoanRepaid,
		BorrowId:           borrowId,
		LoanId:             loan.Id,
		Account:            borrower,
		Counterparty:       loan.Lender,
		Amount:             need,
		LoanBalance:        loan.LoanBalance,
		CollateralOriginal: loan.CollateralBalance,
	})
	return loan, nil
}

// flagLoan moves a well loan to ToBeLiquidated or Overdue.
func (m *Market) flagLoan(ctx context.Context, borrow *core.Borrow, loan *core.MatchedLoan, status core.MatchedLoanStatus, ltv uint64) error {
	loan.Status = status
	if err := m.borrows.SaveMatch(ctx, borrow, loan); err != nil {
		return err
	}
	eventType := core.EventLoanToBeLiquidated
	if status == core.MatchedLoanStatusOverdue {
		eventType = core.EventLoanOverdue
	}
	m.log.Info().Msgf("loan %d %s at ltv %d", loan.Id, status, ltv)
	m.emit(ctx, core.Event{
		Type:               eventType,
		BorrowId:           borrow.Id,
		LoanId:             loan.Id,
		Account:            loan.Borrower,
		Counterparty:       loan.Lender,
		LoanBalance:        loan.LoanBalance,
		CollateralOriginal: loan.CollateralBalance,
		Ltv:                ltv,
	})
	return nil
}
