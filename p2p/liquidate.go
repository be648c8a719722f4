package p2p

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// Settlement records who received what when a matched loan was liquidated.
// Collateral amounts are in the collateral asset, Paid is in the loan asset.
type Settlement struct {
	LoanId          uint64               `json:"loanId"`
	LiquidationType core.LiquidationType `json:"liquidationType"`
	Liquidator      uuid.UUID            `json:"liquidator"`
	NeedToPay       core.Amount          `json:"needToPay"`
	// Insufficient is set when the collateral was worth less than the debt.
	Insufficient bool `json:"insufficient"`

	Paid            core.Amount `json:"paid"`
	Lender          core.Amount `json:"lender"`
	LiquidatorShare core.Amount `json:"liquidatorShare"`
	Platform        core.Amount `json:"platform"`
	Borrower        core.Amount `json:"borrower"`
}

// SplitCollateral divides collateral between lender, liquidator and platform. Floor remainders go to
// the last recipient so the parts always add up to collateral.
func SplitCollateral(collateral core.Amount, insufficient bool) (lender, liquidator, platform core.Amount, err error) {
	if !insufficient {
		if lender, err = collateral.MulRatio(core.LENDER_SHARE_SUFFICIENT); err != nil {
			return
		}
		liquidator, err = collateral.Sub(lender)
		return lender, liquidator, core.ZeroAmount, err
	}

	if lender, err = collateral.MulRatio(core.LENDER_SHARE_INSUFFICIENT); err != nil {
		return
	}
	if liquidator, err = collateral.MulRatio(core.LIQUIDATOR_SHARE); err != nil {
		return
	}
	var paid core.Amount
	if paid, err = lender.Add(liquidator); err != nil {
		return
	}
	platform, err = collateral.Sub(paid)
	return lender, liquidator, platform, err
}

// SeizeCollateral is the collateral a liquidator receives for paying need: its value plus bonus,
// capped at the whole collateral. The rest goes back to the borrower.
func SeizeCollateral(prices core.PricePair, need, collateral core.Amount, bonus uint64) (seized, rest core.Amount, err error) {
	withBonus, err := need.MulRatio(core.PRECISION + bonus)
	if err != nil {
		return core.ZeroAmount, core.ZeroAmount, err
	}
	seized, err = prices.LoanToCollateral(withBonus)
	if err != nil {
		return core.ZeroAmount, core.ZeroAmount, err
	}
	seized = core.MinAmount(seized, collateral)
	rest, err = collateral.Sub(seized)
	return seized, rest, err
}

func liquidatable(status core.MatchedLoanStatus) bool {
	switch status {
	case core.MatchedLoanStatusWell, core.MatchedLoanStatusToBeLiquidated, core.MatchedLoanStatusOverdue:
		return true
	}
	return false
}

// LiquidateLoan settles an overdue loan, or one that prices at or above the liquidation ltv.
func (m *Market) LiquidateLoan(ctx context.Context, liquidator uuid.UUID, loanId uint64) (*Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return nil, err
	}
	loan, err := m.borrows.GetMatchedLoan(ctx, loanId)
	if err != nil {
		return nil, err
	}
	if !liquidatable(loan.Status) {
		return nil, errors.Wrapf(core.ErrCannotLiquidate, "loan %d is %s", loanId, loan.Status)
	}
	borrow, err := m.borrows.GetBorrow(ctx, loan.BorrowId)
	if err != nil {
		return nil, err
	}
	prices, err := m.pairPrices(ctx, loan.CollateralAsset, loan.LoanAsset)
	if err != nil {
		return nil, err
	}
	ltv, err := prices.Ltv(loan.LoanBalance, loan.CollateralBalance)
	if err != nil {
		return nil, err
	}
	if loan.Status != core.MatchedLoanStatusOverdue && ltv < m.params.LiquidationLTV {
		return nil, errors.Wrapf(core.ErrCannotLiquidate, "loan %d ltv %d below %d", loanId, ltv, m.params.LiquidationLTV)
	}
	need, err := loan.NeedToPay()
	if err != nil {
		return nil, err
	}

	settlement := &Settlement{
		LoanId:          loanId,
		LiquidationType: loan.LiquidationType,
		Liquidator:      liquidator,
		NeedToPay:       need,
	}
	var legs []core.TransferLeg
	switch loan.LiquidationType {
	case core.JustCollateral:
		legs, err = m.justCollateralLegs(prices, loan, need, settlement)
	case core.SellCollateral:
		legs, err = m.sellCollateralLegs(ctx, prices, loan, need, settlement)
	default:
		err = errors.Wrap(core.ErrUnknownLiquidationType, loan.LiquidationType.String())
	}
	if err != nil {
		return nil, err
	}

	saga := m.newSaga()
	if err := saga.Run(ctx, legs...); err != nil {
		if core.IsFatal(err) {
			m.log.Error().Err(err).Msgf("liquidation of loan %d left the ledger inconsistent", loanId)
		}
		return nil, err
	}
	loan.Status = core.MatchedLoanStatusLiquidated
	borrow.Status = core.BorrowStatusLiquidated
	if err := m.borrows.SaveMatch(ctx, borrow, loan); err != nil {
		return nil, saga.Abort(ctx, err)
	}

	m.log.Info().Msgf("loan %d liquidated by %s with %s, ltv %d", loanId, liquidator, loan.LiquidationType, ltv)
	m.emit(ctx, core.Event{
		Type:               core.EventMatchedLoanLiquidated,
		BorrowId:           borrow.Id,
		LoanId:             loanId,
		Account:            loan.Borrower,
		Counterparty:       liquidator,
		Amount:             need,
		LoanBalance:        loan.LoanBalance,
		CollateralOriginal: loan.CollateralBalance,
		Ltv:                ltv,
	})
	return settlement, nil
}

func (m *Market) justCollateralLegs(prices core.PricePair, loan *core.MatchedLoan, need core.Amount, s *Settlement) ([]core.TransferLeg, error) {
	worth, err := prices.CollateralToLoan(loan.CollateralBalance)
	if err != nil {
		return nil, err
	}
	s.Insufficient = worth.LessThan(need)
	if s.Lender, s.LiquidatorShare, s.Platform, err = SplitCollateral(loan.CollateralBalance, s.Insufficient); err != nil {
		return nil, err
	}
	s.Borrower = core.ZeroAmount
	return []core.TransferLeg{
		{Asset: loan.CollateralAsset, From: m.params.PoolAccount, To: loan.Lender, Amount: s.Lender},
		{Asset: loan.CollateralAsset, From: m.params.PoolAccount, To: s.Liquidator, Amount: s.LiquidatorShare},
		{Asset: loan.CollateralAsset, From: m.params.PoolAccount, To: m.params.PlatformAccount, Amount: s.Platform},
	}, nil
}

func (m *Market) sellCollateralLegs(ctx context.Context, prices core.PricePair, loan *core.MatchedLoan, need core.Amount, s *Settlement) ([]core.TransferLeg, error) {
	if err := core.RequireFreeBalance(ctx, m.ledger, loan.LoanAsset, s.Liquidator, need); err != nil {
		return nil, err
	}
	seized, rest, err := SeizeCollateral(prices, need, loan.CollateralBalance, m.params.LiquidatorBonus)
	if err != nil {
		return nil, err
	}
	s.Paid = need
	s.LiquidatorShare = seized
	s.Borrower = rest
	return []core.TransferLeg{
		{Asset: loan.LoanAsset, From: s.Liquidator, To: loan.Lender, Amount: need},
		{Asset: loan.CollateralAsset, From: m.params.PoolAccount, To: s.Liquidator, Amount: seized},
		{Asset: loan.CollateralAsset, From: m.params.PoolAccount, To: loan.Borrower, Amount: rest},
	}, nil
}
