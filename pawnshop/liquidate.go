package pawnshop

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// LiquidationResult is the settlement of an auctioned loan.
type LiquidationResult struct {
	LoanId         uint64      `json:"loanId"`
	Owner          uuid.UUID   `json:"owner"`
	Liquidator     uuid.UUID   `json:"liquidator"`
	AuctionBalance core.Amount `json:"auctionBalance"`
	LoanBalance    core.Amount `json:"loanBalance"`
	Penalty        core.Amount `json:"penalty"`
	Refund         core.Amount `json:"refund"`
	Collateral     core.Amount `json:"collateral"`
}

// SplitAuction divides the proceeds above the loan into the penalty and the owner's refund.
func SplitAuction(auction, loan core.Amount, penaltyRate uint64) (penalty, refund core.Amount, err error) {
	leftover, err := auction.Sub(loan)
	if err != nil {
		return core.ZeroAmount, core.ZeroAmount, errors.Wrapf(core.ErrAuctionBelowLoan, "auction %s, loan %s", auction, loan)
	}
	if penalty, err = leftover.MulRatio(penaltyRate); err != nil {
		return core.ZeroAmount, core.ZeroAmount, err
	}
	refund, err = leftover.Sub(penalty)
	return penalty, refund, err
}

// MarkLoanLiquidated settles a loan in liquidation: the liquidator pays the auction proceeds and
// receives the posted collateral from the liquidation account.
func (m *Market) MarkLoanLiquidated(ctx context.Context, loanId uint64, liquidator uuid.UUID, auctionBalance core.Amount) (*LiquidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.params.OperationalState.AssertOperationalMode(false); err != nil {
		return nil, err
	}
	loan, err := m.loans.GetLoan(ctx, loanId)
	if err != nil {
		return nil, err
	}
	if !loan.IsLiquidating() {
		return nil, errors.Wrapf(core.ErrLoanNotInLiquidation, "loan %d is %s", loanId, loan.Status)
	}
	if err := core.RequireFreeBalance(ctx, m.ledger, m.collection(), liquidator, auctionBalance); err != nil {
		return nil, err
	}
	penalty, refund, err := SplitAuction(auctionBalance, loan.LoanBalanceTotal, m.params.PenaltyRate)
	if err != nil {
		return nil, err
	}
	totals, err := m.loans.GetLoanTotals(ctx)
	if err != nil {
		return nil, err
	}
	next := totals.Clone()
	if next.TotalLoan, err = next.TotalLoan.Sub(loan.LoanBalanceTotal); err != nil {
		return nil, err
	}
	if next.TotalCollateral, err = next.TotalCollateral.Sub(loan.CollateralBalanceOriginal); err != nil {
		return nil, err
	}

	saga := m.newSaga()
	if err := saga.Run(ctx,
		core.TransferLeg{Asset: m.collection(), From: liquidator, To: m.params.PoolAccount, Amount: loan.LoanBalanceTotal},
		core.TransferLeg{Asset: m.collection(), From: liquidator, To: m.params.ProfitPoolAccount, Amount: penalty},
		core.TransferLeg{Asset: m.collection(), From: liquidator, To: loan.Owner, Amount: refund},
		core.TransferLeg{Asset: m.collateral(), From: m.params.LiquidationAccount, To: liquidator, Amount: loan.CollateralBalanceOriginal},
	); err != nil {
		if core.IsFatal(err) {
			m.log.Error().Err(err).Msgf("liquidation of loan %d left the ledger inconsistent", loanId)
		}
		return nil, err
	}
	if err := m.loans.RemoveLoan(ctx, loanId, next); err != nil {
		return nil, saga.Abort(ctx, err)
	}

	result := &LiquidationResult{
		LoanId:         loanId,
		Owner:          loan.Owner,
		Liquidator:     liquidator,
		AuctionBalance: auctionBalance,
		LoanBalance:    loan.LoanBalanceTotal,
		Penalty:        penalty,
		Refund:         refund,
		Collateral:     loan.CollateralBalanceOriginal,
	}
	m.log.Info().Msgf("loan %d liquidated by %s, auction %s, loan %s, penalty %s, refund %s",
		loanId, liquidator, auctionBalance, loan.LoanBalanceTotal, penalty, refund)
	m.emit(ctx, core.Event{
		Type:                core.EventLoanLiquidated,
		LoanId:              loanId,
		Account:             loan.Owner,
		Counterparty:        liquidator,
		Amount:              penalty,
		LoanBalance:         loan.LoanBalanceTotal,
		CollateralOriginal:  loan.CollateralBalanceOriginal,
		CollateralAvailable: loan.CollateralBalanceAvailable,
		AuctionBalance:      auctionBalance,
	})
	return result, nil
}
