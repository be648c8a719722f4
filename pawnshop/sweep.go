package pawnshop

import (
	"context"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/pkg/errors"
)

type SweepReport struct {
	Block uint64 `json:"block"`
	// Skipped is set when the market is paused or the price pair is missing.
	Skipped     bool        `json:"skipped"`
	Warned      []uint64    `json:"warned,omitempty"`
	Liquidating []uint64    `json:"liquidating,omitempty"`
	Recovered   []uint64    `json:"recovered,omitempty"`
	Interest    core.Amount `json:"interest"`
	Rates       core.Rates  `json:"rates"`
}

// Sweep runs once per block: health of every loan, then interest accrual and the share price.
func (m *Market) Sweep(ctx context.Context) (*SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &SweepReport{Block: m.clock.BlockNumber()}
	if m.params.OperationalState == core.OperationalStatePaused {
		report.Skipped = true
		return report, nil
	}
	prices, err := m.prices(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msgf("block %d sweep skipped", report.Block)
		report.Skipped = true
		return report, nil
	}

	if err := m.checkHealth(ctx, prices, report); err != nil {
		return report, err
	}
	if err := m.accrueInterest(ctx, prices, report); err != nil {
		return report, err
	}
	return report, nil
}

func (m *Market) checkHealth(ctx context.Context, prices core.PricePair, report *SweepReport) error {
	loans, err := m.loans.ListLoans(ctx)
	if err != nil {
		return err
	}
	evaluator := core.NewHealthEvaluator(m.params.LiquidationThreshold, m.params.WarningThreshold)

	for _, loan := range loans {
		if loan.IsLiquidating() {
			continue
		}
		state, err := evaluator.CheckLoanHealth(loan.CollateralBalanceOriginal, loan.LoanBalanceTotal, prices)
		if err != nil {
			return errors.Wrapf(err, "health of loan %d", loan.Id)
		}

		switch {
		case state.Status == core.LoanStatusLiquidating:
			if err := m.flagLiquidating(ctx, loan, state); err != nil {
				if core.IsFatal(err) {
					return err
				}
				m.log.Warn().Err(err).Msgf("loan %d not flagged for liquidation", loan.Id)
				continue
			}
			report.Liquidating = append(report.Liquidating, loan.Id)

		case state.Status == core.LoanStatusWarning && loan.Status == core.LoanStatusWell:
			loan.Status = core.LoanStatusWarning
			if err := m.loans.UpdateLoan(ctx, loan, nil); err != nil {
				return err
			}
			report.Warned = append(report.Warned, loan.Id)
			m.emit(ctx, core.Event{
				Type:               core.EventLoanWarning,
				LoanId:             loan.Id,
				Account:            loan.Owner,
				LoanBalance:        loan.LoanBalanceTotal,
				CollateralOriginal: loan.CollateralBalanceOriginal,
				Ltv:                state.Ltv,
			})

		case state.Status == core.LoanStatusWell && loan.Status == core.LoanStatusWarning:
			loan.Status = core.LoanStatusWell
			if err := m.loans.UpdateLoan(ctx, loan, nil); err != nil {
				return err
			}
			report.Recovered = append(report.Recovered, loan.Id)
		}
	}
	return nil
}

// flagLiquidating moves the posted collateral to the liquidation account for auction.
func (m *Market) flagLiquidating(ctx context.Context, loan *core.Loan, state core.HealthState) error {
	saga := m.newSaga()
	if err := saga.Transfer(ctx, core.TransferLeg{
		Asset:  m.collateral(),
		From:   m.params.PawnshopAccount,
		To:     m.params.LiquidationAccount,
		Amount: loan.CollateralBalanceOriginal,
	}); err != nil {
		return err
	}
	loan.Status = core.LoanStatusLiquidating
	if err := m.loans.UpdateLoan(ctx, loan, nil); err != nil {
		return saga.Abort(ctx, err)
	}

	m.log.Info().Msgf("loan %d liquidating at ltv %d", loan.Id, state.Ltv)
	m.emit(ctx, core.Event{
		Type:               core.EventLoanLiquidating,
		LoanId:             loan.Id,
		Account:            loan.Owner,
		LoanBalance:        loan.LoanBalanceTotal,
		CollateralOriginal: loan.CollateralBalanceOriginal,
		Ltv:                state.Ltv,
	})
	return nil
}

func (m *Market) publishRates(ctx context.Context, totalLoan core.Amount, pool *core.SharePool) (core.Rates, error) {
	liquidity, err := m.ledger.FreeBalance(ctx, m.collection(), m.params.PoolAccount)
	if err != nil {
		return core.Rates{}, err
	}
	rates, err := core.CalcInterestRate(m.rateModel, totalLoan, liquidity)
	if err != nil {
		return core.Rates{}, err
	}
	if rates.SavingsRate, err = core.CalcSavingsRate(rates.BorrowRate, totalLoan, pool.TotalDeposit); err != nil {
		return core.Rates{}, err
	}
	m.rates = rates
	return rates, nil
}

// accrueInterest capitalizes the interest of the elapsed period onto every loan pro rata and
// compounds it into the share price. Capitalization issues no transfer: drawing the interest
// from the pool and paying it back cancel out.
func (m *Market) accrueInterest(ctx context.Context, prices core.PricePair, report *SweepReport) error {
	now := m.clock.Now().Unix()
	totals, err := m.loans.GetLoanTotals(ctx)
	if err != nil {
		return err
	}
	pool, err := m.shares.Pool(ctx)
	if err != nil {
		return err
	}
	rates, err := m.publishRates(ctx, totals.TotalLoan, pool)
	if err != nil {
		return err
	}
	report.Rates = rates

	if totals.LastBonusTime == 0 || now <= totals.LastBonusTime || pool.TotalDeposit.IsZero() || totals.TotalLoan.IsZero() {
		if now > totals.LastBonusTime {
			totals.LastBonusTime = now
			return m.loans.SaveLoanTotals(ctx, totals)
		}
		return nil
	}

	elapsed := uint64(now - totals.LastBonusTime)
	interest, err := core.CalcInterestPaymentForPeriod(rates.BorrowRate, elapsed, totals.TotalLoan)
	if err != nil {
		return err
	}
	if interest.IsZero() {
		// keep the period open until it yields something
		return nil
	}

	loans, err := m.loans.ListLoans(ctx)
	if err != nil {
		return err
	}
	snapshot := totals.TotalLoan
	running := totals.Clone()
	running.LastBonusTime = now
	distributed := core.ZeroAmount
	var charged, before []*core.Loan
	for _, loan := range loans {
		share, err := interest.MulDiv(loan.LoanBalanceTotal, snapshot)
		if err != nil {
			return err
		}
		if share.IsZero() {
			continue
		}
		original := loan.Clone()
		if err := m.capitalize(prices, loan, share); err != nil {
			return errors.Wrapf(err, "capitalize interest on loan %d", loan.Id)
		}
		if running.TotalLoan, err = running.TotalLoan.Add(share); err != nil {
			return err
		}
		if distributed, err = distributed.Add(share); err != nil {
			return err
		}
		loan.UpdatedAt = now
		charged = append(charged, loan)
		before = append(before, original)
	}
	if distributed.IsZero() {
		return nil
	}

	// loans and totals land together; the period stays open if the share price cannot follow
	if err := m.loans.UpdateLoans(ctx, charged, running); err != nil {
		return err
	}
	if pool, err = m.shares.Accrue(ctx, distributed, pool.TotalDeposit); err != nil {
		if rerr := m.loans.UpdateLoans(ctx, before, totals); rerr != nil {
			return errors.Wrapf(core.ErrCompensationFailed, "restore %d loans: %v (cause: %v)", len(before), rerr, err)
		}
		return err
	}
	if report.Rates, err = m.publishRates(ctx, running.TotalLoan, pool); err != nil {
		return err
	}
	report.Interest = distributed

	m.log.Debug().Msgf("block %d accrued %s over %ds at %d, share value %s",
		report.Block, distributed, elapsed, rates.BorrowRate, pool.ValueOfTokens)
	m.emit(ctx, core.Event{Type: core.EventInterestAccrued, Amount: distributed, LoanBalance: running.TotalLoan})
	return nil
}

// capitalize adds interest to the loan and encumbers the collateral that backs it, floored at zero.
func (m *Market) capitalize(prices core.PricePair, loan *core.Loan, interest core.Amount) error {
	total, err := loan.LoanBalanceTotal.Add(interest)
	if err != nil {
		return err
	}
	backing, err := backingCollateral(prices, interest, m.params.LTVLimit)
	if err != nil {
		return err
	}
	loan.LoanBalanceTotal = total
	loan.CollateralBalanceAvailable = loan.CollateralBalanceAvailable.SaturatingSub(backing)
	return nil
}
