package core

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CalcValue prices an amount: amount * price / PRECISION.
func CalcValue(amount Amount, price uint64) (Amount, error) {
	if amount.IsZero() {
		return ZeroAmount, nil
	}
	return amount.MulDiv(NewAmount(price), PrecisionAmount)
}

// CalcAmount converts a value back into an amount of an asset priced at price.
func CalcAmount(value Amount, price uint64) (Amount, error) {
	if price == 0 {
		return ZeroAmount, errors.New("price is zero")
	}
	return value.MulDiv(PrecisionAmount, NewAmount(price))
}

// CalcLtv returns loanValue / collateralValue scaled by PRECISION.
// An empty collateral with an outstanding loan is reported as the maximum ratio.
func CalcLtv(loanValue, collateralValue Amount) (uint64, error) {
	if loanValue.IsZero() {
		return 0, nil
	}
	if collateralValue.IsZero() {
		return ^uint64(0), nil
	}
	ltv, err := loanValue.MulDiv(PrecisionAmount, collateralValue)
	if err != nil {
		return 0, err
	}
	if !ltv.IsUint64() {
		return ^uint64(0), nil
	}
	return ltv.Uint64(), nil
}

// CalcPairLtv prices both legs and returns their ratio.
func CalcPairLtv(loanAmount Amount, loanPrice uint64, collateralAmount Amount, collateralPrice uint64) (uint64, error) {
	loanValue, err := CalcValue(loanAmount, loanPrice)
	if err != nil {
		return 0, err
	}
	collateralValue, err := CalcValue(collateralAmount, collateralPrice)
	if err != nil {
		return 0, err
	}
	return CalcLtv(loanValue, collateralValue)
}

// CalcInterestPaymentForPeriod returns value * apr * seconds / SECONDS_PER_YEAR, apr scaled by PRECISION.
func CalcInterestPaymentForPeriod(apr uint64, timeDelta uint64, value Amount) (Amount, error) {
	if timeDelta == 0 || apr == 0 || value.IsZero() {
		return ZeroAmount, nil
	}
	scaled, err := value.Mul(NewAmount(apr))
	if err != nil {
		return ZeroAmount, err
	}
	scaled, err = scaled.Mul(NewAmount(timeDelta))
	if err != nil {
		return ZeroAmount, err
	}
	return scaled.Div(NewAmount(SECONDS_PER_YEAR * PRECISION))
}

// RatioToDecimal renders a PRECISION scaled ratio, e.g. 5_000_000 -> 0.05.
func RatioToDecimal(ratio uint64) decimal.Decimal {
	return decimal.NewFromUint64(ratio).Div(DECIMAL_PRECISION)
}

// RatioFromDecimal converts 0.05 into 5_000_000, truncating below 1e-8.
func RatioFromDecimal(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, errors.Wrapf(ErrInvalidConfig, "negative ratio %s", d)
	}
	scaled := d.Shift(AMOUNT_DECIMALS).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, errors.Wrapf(ErrArithmeticOverflow, "ratio %s", d)
	}
	return scaled.BigInt().Uint64(), nil
}

/*
const aprToApy = (apr: number, compoundingFrequency = HOURS_PER_YEAR) =>

	(1 + apr / compoundingFrequency) ** compoundingFrequency - 1;
*/
func AprToApy(apr decimal.Decimal) decimal.Decimal {
	hoursPerYear := decimal.NewFromInt(HOURS_PER_YEAR)
	if hoursPerYear.IsZero() {
		return decimal.Zero
	}
	return (ONE.Add(apr.Div(hoursPerYear))).Pow(hoursPerYear).Sub(ONE).Round(8)
}
