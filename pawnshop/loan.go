package pawnshop

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// backingCollateral is the collateral that carries loan at exactly the ltv limit, rounded up.
func backingCollateral(prices core.PricePair, loan core.Amount, limit uint64) (core.Amount, error) {
	value, err := loan.Mul(core.NewAmount(prices.Loan))
	if err != nil {
		return core.ZeroAmount, err
	}
	denominator, err := core.NewAmount(prices.Collateral).Mul(core.NewAmount(limit))
	if err != nil {
		return core.ZeroAmount, err
	}
	return value.MulDivCeil(core.PrecisionAmount, denominator)
}

// creditOf is the loan that collateral carries at the ltv limit, rounded down.
func creditOf(prices core.PricePair, collateral core.Amount, limit uint64) (core.Amount, error) {
	value, err := collateral.Mul(core.NewAmount(prices.Collateral))
	if err != nil {
		return core.ZeroAmount, err
	}
	denominator, err := core.NewAmount(prices.Loan).Mul(core.PrecisionAmount)
	if err != nil {
		return core.ZeroAmount, err
	}
	return value.MulDiv(core.NewAmount(limit), denominator)
}

// GetCollateralLoan resolves the pair a loan is opened with. A zero collateral asks for the
// minimum collateral of loan, a zero loan asks for the largest loan collateral carries.
// The resolved pair always prices strictly below limit.
func GetCollateralLoan(prices core.PricePair, collateral, loan core.Amount, limit uint64) (core.Amount, core.Amount, error) {
	switch {
	case collateral.IsZero() && loan.IsZero():
		return core.ZeroAmount, core.ZeroAmount, errors.Wrap(core.ErrInvalidAmount, "collateral and loan are both zero")

	case collateral.IsZero():
		c, err := backingCollateral(prices, loan, limit)
		if err != nil {
			return core.ZeroAmount, core.ZeroAmount, err
		}
		// floor rounding of the priced values can leave the pair on the limit
		step := core.NewAmount(1)
		if prices.Collateral < core.PRECISION {
			step = core.NewAmount(core.PRECISION/prices.Collateral + 1)
		}
		for i := 0; i < 4; i++ {
			below, _, err := core.LtvBelow(prices, loan, c, limit)
			if err != nil {
				return core.ZeroAmount, core.ZeroAmount, err
			}
			if below {
				return c, loan, nil
			}
			if c, err = c.Add(step); err != nil {
				return core.ZeroAmount, core.ZeroAmount, err
			}
		}
		return core.ZeroAmount, core.ZeroAmount, errors.Wrapf(core.ErrOverLTVLimit, "no collateral carries loan %s", loan)

	case loan.IsZero():
		l, err := creditOf(prices, collateral, limit)
		if err != nil {
			return core.ZeroAmount, core.ZeroAmount, err
		}
		below, _, err := core.LtvBelow(prices, l, collateral, limit)
		if err != nil {
			return core.ZeroAmount, core.ZeroAmount, err
		}
		if !below {
			l = l.SaturatingSub(core.NewAmount(1))
		}
		if l.IsZero() {
			return core.ZeroAmount, core.ZeroAmount, errors.Wrapf(core.ErrInvalidAmount, "collateral %s carries no loan", collateral)
		}
		return collateral, l, nil

	default:
		below, ltv, err := core.LtvBelow(prices, loan, collateral, limit)
		if err != nil {
			return core.ZeroAmount, core.ZeroAmount, err
		}
		if !below {
			return core.ZeroAmount, core.ZeroAmount, errors.Wrapf(core.ErrOverLTVLimit, "ltv %d, limit %d", ltv, limit)
		}
		return collateral, loan, nil
	}
}

func (m *Market) requireLiquidity(ctx context.Context, amount core.Amount) error {
	liquidity, err := m.ledger.FreeBalance(ctx, m.collection(), m.params.PoolAccount)
	if err != nil {
		return err
	}
	if liquidity.LessThan(amount) {
		return errors.Wrapf(core.ErrInsufficientLiquidity, "need %s, pool holds %s", amount, liquidity)
	}
	return nil
}

func (m *Market) requireUnderCap(totals *core.LoanTotals, amount core.Amount) error {
	if m.params.LoanCap.IsZero() {
		return nil
	}
	next, err := totals.TotalLoan.Add(amount)
	if err != nil {
		return err
	}
	if next.GreaterThan(m.params.LoanCap) {
		return errors.Wrapf(core.ErrLoanCapReached, "total loan %s, cap %s", next, m.params.LoanCap)
	}
	return nil
}

func (m *Market) ownedLoan(ctx context.Context, owner uuid.UUID, id uint64) (*core.Loan, error) {
	loan, err := m.loans.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.Owner != owner {
		return nil, errors.Wrapf(core.ErrNotOwner, "loan %d", id)
	}
	return loan, nil
}

// ApplyForLoan posts collateral and draws loan from the pool in one step.
func (m *Market) ApplyForLoan(ctx context.Context, borrower uuid.UUID, collateralAmount, loanAmount core.Amount) (*core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(true); err != nil {
		return nil, err
	}
	if err := m.requireLiquidity(ctx, loanAmount); err != nil {
		return nil, err
	}
	prices, err := m.prices(ctx)
	if err != nil {
		return nil, err
	}
	collateralAmount, loanAmount, err = GetCollateralLoan(prices, collateralAmount, loanAmount, m.params.LTVLimit)
	if err != nil {
		return nil, err
	}
	if collateralAmount.LessThan(m.params.MinimumCollateral) {
		return nil, errors.Wrapf(core.ErrBelowMinimumCollateral, "collateral %s, minimum %s", collateralAmount, m.params.MinimumCollateral)
	}
	// a computed loan may exceed what was checked up front
	if err := m.requireLiquidity(ctx, loanAmount); err != nil {
		return nil, err
	}
	totals, err := m.loans.GetLoanTotals(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.requireUnderCap(totals, loanAmount); err != nil {
		return nil, err
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, m.collateral(), borrower, collateralAmount); err != nil {
		return nil, err
	}

	backing, err := backingCollateral(prices, loanAmount, m.params.LTVLimit)
	if err != nil {
		return nil, err
	}
	id, err := m.loans.NextLoanId(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now().Unix()
	loan := &core.Loan{
		Id:                         id,
		Owner:                      borrower,
		CollateralBalanceOriginal:  collateralAmount,
		CollateralBalanceAvailable: collateralAmount.SaturatingSub(backing),
		LoanBalanceTotal:           loanAmount,
		Status:                     core.LoanStatusWell,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	next := totals.Clone()
	if next.TotalLoan, err = next.TotalLoan.Add(loanAmount); err != nil {
		return nil, err
	}
	if next.TotalCollateral, err = next.TotalCollateral.Add(collateralAmount); err != nil {
		return nil, err
	}

	saga := m.newSaga()
	if err := saga.Run(ctx,
		core.TransferLeg{Asset: m.collateral(), From: borrower, To: m.params.PawnshopAccount, Amount: collateralAmount},
		core.TransferLeg{Asset: m.collection(), From: m.params.PoolAccount, To: borrower, Amount: loanAmount},
	); err != nil {
		return nil, err
	}
	if err := m.loans.CreateLoan(ctx, loan, next); err != nil {
		return nil, saga.Abort(ctx, err)
	}

	m.log.Info().Msgf("loan %d created for %s, collateral %s, loan %s", id, borrower, collateralAmount, loanAmount)
	m.emit(ctx, core.Event{
		Type:                core.EventLoanCreated,
		LoanId:              id,
		Account:             borrower,
		Amount:              loanAmount,
		LoanBalance:         loan.LoanBalanceTotal,
		CollateralOriginal:  loan.CollateralBalanceOriginal,
		CollateralAvailable: loan.CollateralBalanceAvailable,
	})
	return loan, nil
}

// RepayForLoan pays the whole loan back and returns all posted collateral.
func (m *Market) RepayForLoan(ctx context.Context, borrower uuid.UUID, loanId uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return err
	}
	loan, err := m.ownedLoan(ctx, borrower, loanId)
	if err != nil {
		return err
	}
	if loan.IsLiquidating() {
		return errors.Wrapf(core.ErrLoanInLiquidation, "loan %d", loanId)
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, m.collection(), borrower, loan.LoanBalanceTotal); err != nil {
		return err
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, m.collateral(), m.params.PawnshopAccount, loan.CollateralBalanceOriginal); err != nil {
		return errors.Wrapf(err, "pawnshop collateral for loan %d", loanId)
	}
	totals, err := m.loans.GetLoanTotals(ctx)
	if err != nil {
		return err
	}
	next := totals.Clone()
	if next.TotalLoan, err = next.TotalLoan.Sub(loan.LoanBalanceTotal); err != nil {
		return err
	}
	if next.TotalCollateral, err = next.TotalCollateral.Sub(loan.CollateralBalanceOriginal); err != nil {
		return err
	}

	saga := m.newSaga()
	if err := saga.Run(ctx,
		core.TransferLeg{Asset: m.collection(), From: borrower, To: m.params.PoolAccount, Amount: loan.LoanBalanceTotal},
		core.TransferLeg{Asset: m.collateral(), From: m.params.PawnshopAccount, To: borrower, Amount: loan.CollateralBalanceOriginal},
	); err != nil {
		return err
	}
	if err := m.loans.RemoveLoan(ctx, loanId, next); err != nil {
		return saga.Abort(ctx, err)
	}

	m.log.Info().Msgf("loan %d repaid by %s, paid %s", loanId, borrower, loan.LoanBalanceTotal)
	m.emit(ctx, core.Event{
		Type:               core.EventLoanRepaid,
		LoanId:             loanId,
		Account:            borrower,
		Amount:             loan.LoanBalanceTotal,
		CollateralOriginal: loan.CollateralBalanceOriginal,
	})
	return nil
}

// AddLoanCollateral tops a loan up. Anyone may pay for it.
func (m *Market) AddLoanCollateral(ctx context.Context, loanId uint64, payer uuid.UUID, amount core.Amount) (*core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, errors.Wrap(core.ErrInvalidAmount, "collateral amount is zero")
	}
	loan, err := m.loans.GetLoan(ctx, loanId)
	if err != nil {
		return nil, err
	}
	if loan.IsLiquidating() {
		return nil, errors.Wrapf(core.ErrLoanInLiquidation, "loan %d", loanId)
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, m.collateral(), payer, amount); err != nil {
		return nil, err
	}
	totals, err := m.loans.GetLoanTotals(ctx)
	if err != nil {
		return nil, err
	}
	next := totals.Clone()
	if next.TotalCollateral, err = next.TotalCollateral.Add(amount); err != nil {
		return nil, err
	}
	if loan.CollateralBalanceOriginal, err = loan.CollateralBalanceOriginal.Add(amount); err != nil {
		return nil, err
	}
	if loan.CollateralBalanceAvailable, err = loan.CollateralBalanceAvailable.Add(amount); err != nil {
		return nil, err
	}
	loan.UpdatedAt = m.clock.Now().Unix()

	saga := m.newSaga()
	if err := saga.Transfer(ctx, core.TransferLeg{Asset: m.collateral(), From: payer, To: m.params.PawnshopAccount, Amount: amount}); err != nil {
		return nil, err
	}
	if err := m.loans.UpdateLoan(ctx, loan, next); err != nil {
		return nil, saga.Abort(ctx, err)
	}

	m.emit(ctx, core.Event{
		Type:                core.EventCollateralAdded,
		LoanId:              loanId,
		Account:             payer,
		Counterparty:        loan.Owner,
		Amount:              amount,
		CollateralOriginal:  loan.CollateralBalanceOriginal,
		CollateralAvailable: loan.CollateralBalanceAvailable,
	})
	return loan, nil
}

// DrawFromLoan borrows more against the unencumbered collateral of a loan.
func (m *Market) DrawFromLoan(ctx context.Context, borrower uuid.UUID, loanId uint64, amount core.Amount) (*core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(true); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, errors.Wrap(core.ErrInvalidAmount, "draw amount is zero")
	}
	loan, err := m.ownedLoan(ctx, borrower, loanId)
	if err != nil {
		return nil, err
	}
	if loan.IsLiquidating() {
		return nil, errors.Wrapf(core.ErrLoanInLiquidation, "loan %d", loanId)
	}
	if err := m.requireLiquidity(ctx, amount); err != nil {
		return nil, err
	}
	prices, err := m.prices(ctx)
	if err != nil {
		return nil, err
	}
	credit, err := creditOf(prices, loan.CollateralBalanceAvailable, m.params.LTVLimit)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(credit) {
		return nil, errors.Wrapf(core.ErrExceedsAvailableCredit, "draw %s, credit %s", amount, credit)
	}
	totals, err := m.loans.GetLoanTotals(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.requireUnderCap(totals, amount); err != nil {
		return nil, err
	}
	consumed, err := backingCollateral(prices, amount, m.params.LTVLimit)
	if err != nil {
		return nil, err
	}

	next := totals.Clone()
	if next.TotalLoan, err = next.TotalLoan.Add(amount); err != nil {
		return nil, err
	}
	if loan.LoanBalanceTotal, err = loan.LoanBalanceTotal.Add(amount); err != nil {
		return nil, err
	}
	loan.CollateralBalanceAvailable = loan.CollateralBalanceAvailable.SaturatingSub(consumed)
	loan.UpdatedAt = m.clock.Now().Unix()

	saga := m.newSaga()
	if err := saga.Transfer(ctx, core.TransferLeg{Asset: m.collection(), From: m.params.PoolAccount, To: borrower, Amount: amount}); err != nil {
		return nil, err
	}
	if err := m.loans.UpdateLoan(ctx, loan, next); err != nil {
		return nil, saga.Abort(ctx, err)
	}

	m.emit(ctx, core.Event{
		Type:                core.EventLoanDrawn,
		LoanId:              loanId,
		Account:             borrower,
		Amount:              amount,
		LoanBalance:         loan.LoanBalanceTotal,
		CollateralAvailable: loan.CollateralBalanceAvailable,
	})
	return loan, nil
}
