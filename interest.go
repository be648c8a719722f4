package core

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// InterestRateModel maps utilization (scaled by PRECISION) to an annual borrow rate (scaled by PRECISION).
	InterestRateModel interface {
		BorrowRate(utilization uint64) (uint64, error)
	}

	// PiecewiseCurve is the default utilization curve: two linear segments joined at 0.4 and
	// a sixth-degree polynomial from 0.8 on.
	PiecewiseCurve struct{}

	Rates struct {
		Utilization uint64 `json:"utilization"`
		BorrowRate  uint64 `json:"borrowRate"`
		SavingsRate uint64 `json:"savingsRate"`
	}
)

// The middle and top segments are shifted to meet at the kinks. The unshifted forms were
// (2u + 1) / 10 above 0.4 and (30u^6 + 10u^3 + 6) / 100 above 0.8, which jump at both kinks.
const (
	LOW_UTILIZATION_KINK  = 40_000_000
	HIGH_UTILIZATION_KINK = 80_000_000
)

var (
	// 30u^6 + u^3*10^25 + 401568*10^43 on 1e8 scaled u yields a 1e50 scaled rate; 10^42 brings it to 1e8.
	curveCubeScale     = MustAmount("10000000000000000000000000")
	curveConstant      = MustAmount("4015680000000000000000000000000000000000000000000")
	curveNormalization = MustAmount("1000000000000000000000000000000000000000000")
	curveSixthCoeff    = NewAmount(30)
)

func (PiecewiseCurve) BorrowRate(utilization uint64) (uint64, error) {
	if utilization > PRECISION {
		return 0, errors.Wrapf(ErrInvalidAmount, "utilization %d above 1", utilization)
	}

	switch {
	case utilization < LOW_UTILIZATION_KINK:
		// (u + 0.5) / 10
		return (utilization + 50_000_000) / 10, nil
	case utilization < HIGH_UTILIZATION_KINK:
		// (2u + 0.1) / 10
		return (2*utilization + 10_000_000) / 10, nil
	default:
		return polynomialRate(utilization)
	}
}

// polynomialRate evaluates (30u^6 + 10u^3 + 4.01568) / 100.
func polynomialRate(utilization uint64) (uint64, error) {
	u := NewAmount(utilization)
	u3, err := u.Mul(u)
	if err != nil {
		return 0, err
	}
	if u3, err = u3.Mul(u); err != nil {
		return 0, err
	}
	u6, err := u3.Mul(u3)
	if err != nil {
		return 0, err
	}

	sixth, err := u6.Mul(curveSixthCoeff)
	if err != nil {
		return 0, err
	}
	cube, err := u3.Mul(curveCubeScale)
	if err != nil {
		return 0, err
	}
	sum, err := SumAmounts(sixth, cube, curveConstant)
	if err != nil {
		return 0, err
	}
	rate, err := sum.Div(curveNormalization)
	if err != nil {
		return 0, err
	}
	if !rate.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return rate.Uint64(), nil
}

// CalcUtilization returns totalLoan / (totalDeposit + totalLoan) scaled by PRECISION.
func CalcUtilization(totalLoan, totalDeposit Amount) (uint64, error) {
	if totalLoan.IsZero() {
		return 0, nil
	}
	denominator, err := totalDeposit.Add(totalLoan)
	if err != nil {
		return 0, err
	}
	u, err := totalLoan.MulDiv(PrecisionAmount, denominator)
	if err != nil {
		return 0, err
	}
	return u.Uint64(), nil
}

// CalcSavingsRate returns borrowRate * totalLoan / totalDeposit.
func CalcSavingsRate(borrowRate uint64, totalLoan, totalDeposit Amount) (uint64, error) {
	if totalDeposit.IsZero() {
		return 0, nil
	}
	rate, err := NewAmount(borrowRate).MulDiv(totalLoan, totalDeposit)
	if err != nil {
		return 0, err
	}
	if !rate.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return rate.Uint64(), nil
}

func CalcInterestRate(model InterestRateModel, totalLoan, totalDeposit Amount) (Rates, error) {
	utilization, err := CalcUtilization(totalLoan, totalDeposit)
	if err != nil {
		return Rates{}, err
	}
	borrowRate, err := model.BorrowRate(utilization)
	if err != nil {
		return Rates{}, err
	}
	savingsRate, err := CalcSavingsRate(borrowRate, totalLoan, totalDeposit)
	if err != nil {
		return Rates{}, err
	}
	return Rates{
		Utilization: utilization,
		BorrowRate:  borrowRate,
		SavingsRate: savingsRate,
	}, nil
}

func (r Rates) BorrowApr() decimal.Decimal {
	return RatioToDecimal(r.BorrowRate)
}

func (r Rates) SavingsApr() decimal.Decimal {
	return RatioToDecimal(r.SavingsRate)
}

func (r Rates) BorrowApy() decimal.Decimal {
	return AprToApy(r.BorrowApr())
}

func (r Rates) SavingsApy() decimal.Decimal {
	return AprToApy(r.SavingsApr())
}
