package p2p

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// CreateBorrow lists a borrow request. The collateral is reserved on the maker's account.
func (m *Market) CreateBorrow(ctx context.Context, maker uuid.UUID, collateral core.Amount, pair core.TradingPair, opts core.BorrowOptions) (*core.Borrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(true); err != nil {
		return nil, err
	}
	if _, err := m.borrows.AliveBorrowOf(ctx, maker); err == nil {
		return nil, errors.Wrapf(core.ErrBorrowAlreadyAlive, "%s", maker)
	} else if !errors.Is(err, core.ErrBorrowNotFound) {
		return nil, err
	}
	if _, err := m.params.FindTradingPair(pair.Collateral.AssetId, pair.Borrow.AssetId); err != nil {
		return nil, err
	}
	if collateral.IsZero() || opts.Amount.IsZero() {
		return nil, errors.Wrap(core.ErrInvalidAmount, "collateral and amount must be positive")
	}
	if opts.Terms < m.params.MinTerms {
		return nil, errors.Wrapf(core.ErrTermsTooShort, "terms %d, minimum %d", opts.Terms, m.params.MinTerms)
	}
	if opts.InterestRate < m.params.MinInterestRate {
		return nil, errors.Wrapf(core.ErrInterestRateTooLow, "rate %d, minimum %d", opts.InterestRate, m.params.MinInterestRate)
	}
	liquidationType := opts.LiquidationType
	if liquidationType == 0 {
		liquidationType = m.params.DefaultLiquidationType
	}
	if liquidationType != core.SellCollateral && liquidationType != core.JustCollateral {
		return nil, errors.Wrap(core.ErrUnknownLiquidationType, liquidationType.String())
	}
	prices, err := m.pairPrices(ctx, pair.Collateral.AssetId, pair.Borrow.AssetId)
	if err != nil {
		return nil, err
	}
	below, ltv, err := core.LtvBelow(prices, opts.Amount, collateral, m.params.SafeLTV)
	if err != nil {
		return nil, err
	}
	if !below {
		return nil, errors.Wrapf(core.ErrOverLTVLimit, "ltv %d, safe ltv %d", ltv, m.params.SafeLTV)
	}

	id, err := m.borrows.NextBorrowId(ctx)
	if err != nil {
		return nil, err
	}
	block := m.clock.BlockNumber()
	if _, err := core.DueBlock(block, opts.Terms, m.params.BlocksPerDay); err != nil {
		return nil, err
	}
	borrow := &core.Borrow{
		Id:                id,
		Owner:             maker,
		CollateralAsset:   pair.Collateral.AssetId,
		BorrowAsset:       pair.Borrow.AssetId,
		CollateralBalance: collateral,
		BorrowBalance:     opts.Amount,
		Terms:             opts.Terms,
		InterestRate:      opts.InterestRate,
		LiquidationType:   liquidationType,
		Status:            core.BorrowStatusAlive,
		CreatedBlock:      block,
	}
	if opts.Warranty > 0 {
		deadAfter, err := core.BlockAfter(block, opts.Warranty)
		if err != nil {
			return nil, err
		}
		borrow.DeadAfter = &deadAfter
	}

	lockId, err := m.ledger.Reserve(ctx, borrow.CollateralAsset, maker, collateral)
	if err != nil {
		return nil, err
	}
	borrow.LockId = lockId
	if err := m.borrows.SaveBorrow(ctx, borrow); err != nil {
		if uerr := m.ledger.Unreserve(ctx, borrow.CollateralAsset, maker, collateral, lockId); uerr != nil {
			return nil, errors.Wrapf(core.ErrCompensationFailed, "release lock %d: %v (cause: %v)", lockId, uerr, err)
		}
		return nil, err
	}

	m.log.Info().Msgf("borrow %d listed by %s, %s %s against %s %s", id, maker,
		opts.Amount, pair.Borrow.Symbol, collateral, pair.Collateral.Symbol)
	m.emit(ctx, core.Event{
		Type:               core.EventBorrowListed,
		BorrowId:           id,
		Account:            maker,
		Amount:             opts.Amount,
		CollateralOriginal: collateral,
		Ltv:                ltv,
	})
	return borrow, nil
}

func (m *Market) ownedBorrow(ctx context.Context, owner uuid.UUID, id uint64) (*core.Borrow, error) {
	borrow, err := m.borrows.GetBorrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if borrow.Owner != owner {
		return nil, errors.Wrapf(core.ErrNotOwner, "borrow %d", id)
	}
	return borrow, nil
}

// releaseBorrow ends an alive borrow with status and returns its reservation.
func (m *Market) releaseBorrow(ctx context.Context, borrow *core.Borrow, status core.BorrowStatus) error {
	locked, ok, err := m.ledger.LockedBalance(ctx, borrow.CollateralAsset, borrow.Owner, borrow.LockId)
	if err != nil {
		return err
	}
	if ok {
		if err := m.ledger.Unreserve(ctx, borrow.CollateralAsset, borrow.Owner, locked, borrow.LockId); err != nil {
			return err
		}
	}
	borrow.Status = status
	if err := m.borrows.SaveBorrow(ctx, borrow); err != nil {
		if !ok {
			return err
		}
		lockId, rerr := m.ledger.Reserve(ctx, borrow.CollateralAsset, borrow.Owner, locked)
		if rerr != nil {
			return errors.Wrapf(core.ErrCompensationFailed, "re-reserve borrow %d: %v (cause: %v)", borrow.Id, rerr, err)
		}
		borrow.LockId = lockId
		borrow.Status = core.BorrowStatusAlive
		return err
	}
	return nil
}

// CancelBorrow unlists an alive borrow and releases its collateral.
func (m *Market) CancelBorrow(ctx context.Context, owner uuid.UUID, borrowId uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return err
	}
	borrow, err := m.ownedBorrow(ctx, owner, borrowId)
	if err != nil {
		return err
	}
	if borrow.Status != core.BorrowStatusAlive {
		return errors.Wrapf(core.ErrBorrowNotAlive, "borrow %d is %s", borrowId, borrow.Status)
	}
	if err := m.releaseBorrow(ctx, borrow, core.BorrowStatusCanceled); err != nil {
		return err
	}
	m.emit(ctx, core.Event{Type: core.EventBorrowUnlisted, BorrowId: borrowId, Account: owner, CollateralOriginal: borrow.CollateralBalance})
	return nil
}

// AddCollateral tops up a borrow. A taken borrow sends the collateral to the pool. An alive borrow
// grows its reservation in the p2p variant and is refused in the ls-biding variant.
func (m *Market) AddCollateral(ctx context.Context, owner uuid.UUID, borrowId uint64, amount core.Amount) (*core.Borrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, errors.Wrap(core.ErrInvalidAmount, "collateral amount is zero")
	}
	borrow, err := m.ownedBorrow(ctx, owner, borrowId)
	if err != nil {
		return nil, err
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, borrow.CollateralAsset, owner, amount); err != nil {
		return nil, err
	}

	switch borrow.Status {
	case core.BorrowStatusAlive:
		if m.params.Variant != core.P2P {
			return nil, errors.Wrapf(core.ErrBorrowNotTaken, "borrow %d", borrowId)
		}
		if err := m.addReservedCollateral(ctx, borrow, amount); err != nil {
			return nil, err
		}
	case core.BorrowStatusTaken:
		if err := m.addPooledCollateral(ctx, borrow, amount); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrapf(core.ErrBorrowNotAlive, "borrow %d is %s", borrowId, borrow.Status)
	}

	m.emit(ctx, core.Event{
		Type:               core.EventCollateralAdded,
		BorrowId:           borrowId,
		LoanId:             borrow.LoanId,
		Account:            owner,
		Amount:             amount,
		CollateralOriginal: borrow.CollateralBalance,
	})
	return borrow, nil
}

func (m *Market) addReservedCollateral(ctx context.Context, borrow *core.Borrow, amount core.Amount) error {
	total, err := borrow.CollateralBalance.Add(amount)
	if err != nil {
		return err
	}
	if err := m.ledger.IncreaseReservedBalance(ctx, borrow.CollateralAsset, borrow.LockId, borrow.Owner, amount); err != nil {
		return err
	}
	previous := borrow.CollateralBalance
	borrow.CollateralBalance = total
	if err := m.borrows.SaveBorrow(ctx, borrow); err != nil {
		borrow.CollateralBalance = previous
		if uerr := m.ledger.Unreserve(ctx, borrow.CollateralAsset, borrow.Owner, amount, borrow.LockId); uerr != nil {
			return errors.Wrapf(core.ErrCompensationFailed, "shrink lock %d: %v (cause: %v)", borrow.LockId, uerr, err)
		}
		return err
	}
	return nil
}

func (m *Market) addPooledCollateral(ctx context.Context, borrow *core.Borrow, amount core.Amount) error {
	loan, err := m.borrows.GetMatchedLoan(ctx, borrow.LoanId)
	if err != nil {
		return err
	}
	if loan.Status != core.MatchedLoanStatusWell {
		return errors.Wrapf(core.ErrLoanStatusMismatch, "loan %d is %s", loan.Id, loan.Status)
	}
	if borrow.CollateralBalance, err = borrow.CollateralBalance.Add(amount); err != nil {
		return err
	}
	if loan.CollateralBalance, err = loan.CollateralBalance.Add(amount); err != nil {
		return err
	}

	saga := m.newSaga()
	if err := saga.Transfer(ctx, core.TransferLeg{Asset: borrow.CollateralAsset, From: borrow.Owner, To: m.params.PoolAccount, Amount: amount}); err != nil {
		return err
	}
	if err := m.borrows.SaveMatch(ctx, borrow, loan); err != nil {
		return saga.Abort(ctx, err)
	}
	return nil
}
