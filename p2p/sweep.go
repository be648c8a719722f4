package p2p

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/pkg/errors"
)

type SweepReport struct {
	Block   uint64   `json:"block"`
	Skipped bool     `json:"skipped"`
	Expired []uint64 `json:"expired,omitempty"`
	// ToBeLiquidated and Overdue hold matched loan ids.
	ToBeLiquidated []uint64 `json:"toBeLiquidated,omitempty"`
	Overdue        []uint64 `json:"overdue,omitempty"`
}

// Sweep runs once per block. Expired borrows die every EXPIRY_SWEEP_INTERVAL blocks and matched
// loans are checked every HEALTH_SWEEP_INTERVAL blocks.
func (m *Market) Sweep(ctx context.Context) (*SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	block := m.clock.BlockNumber()
	report := &SweepReport{Block: block}
	if m.params.OperationalState == core.OperationalStatePaused {
		report.Skipped = true
		return report, nil
	}
	if block%core.EXPIRY_SWEEP_INTERVAL == 0 {
		if err := m.expireBorrows(ctx, block, report); err != nil {
			return report, err
		}
	}
	if block%core.HEALTH_SWEEP_INTERVAL == 0 {
		if err := m.checkLoans(ctx, block, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (m *Market) expireBorrows(ctx context.Context, block uint64, report *SweepReport) error {
	borrows, err := m.borrows.ListBorrowsByStatus(ctx, core.BorrowStatusAlive)
	if err != nil {
		return err
	}
	for _, borrow := range borrows {
		if !borrow.IsExpired(block) {
			continue
		}
		if err := m.killBorrow(ctx, borrow); err != nil {
			if core.IsFatal(err) {
				return err
			}
			m.log.Warn().Err(err).Msgf("borrow %d not expired", borrow.Id)
			continue
		}
		report.Expired = append(report.Expired, borrow.Id)
	}
	return nil
}

func (m *Market) checkLoans(ctx context.Context, block uint64, report *SweepReport) error {
	loans, err := m.borrows.ListMatchedLoansByStatus(ctx, core.MatchedLoanStatusWell)
	if err != nil {
		return err
	}
	for _, loan := range loans {
		prices, err := m.pairPrices(ctx, loan.CollateralAsset, loan.LoanAsset)
		if err != nil {
			m.log.Debug().Err(err).Msgf("loan %d health skipped", loan.Id)
			continue
		}
		ltv, err := prices.Ltv(loan.LoanBalance, loan.CollateralBalance)
		if err != nil {
			return errors.Wrapf(err, "health of loan %d", loan.Id)
		}

		var status core.MatchedLoanStatus
		switch {
		case ltv >= m.params.LiquidationLTV:
			status = core.MatchedLoanStatusToBeLiquidated
		case block > loan.Due:
			status = core.MatchedLoanStatusOverdue
		default:
			continue
		}
		borrow, err := m.borrows.GetBorrow(ctx, loan.BorrowId)
		if err != nil {
			return err
		}
		if err := m.flagLoan(ctx, borrow, loan, status, ltv); err != nil {
			return err
		}
		if status == core.MatchedLoanStatusOverdue {
			report.Overdue = append(report.Overdue, loan.Id)
		} else {
			report.ToBeLiquidated = append(report.ToBeLiquidated, loan.Id)
		}
	}
	return nil
}
