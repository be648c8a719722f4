package core

import (
	"context"

	"github.com/pkg/errors"
)

type (
	// PriceOracle returns the latest price of one whole unit, scaled by PRECISION.
	// ok is false when no fresh quote exists; a zero price is treated the same way.
	PriceOracle interface {
		CurrentPrice(ctx context.Context, symbol string) (price uint64, ok bool)
	}

	PricePair struct {
		Loan       uint64 `json:"loan"`
		Collateral uint64 `json:"collateral"`
	}
)

// FetchPricePair quotes both legs of a trading pair.
func FetchPricePair(ctx context.Context, oracle PriceOracle, loanAsset, collateralAsset Asset) (PricePair, error) {
	loanPrice, ok := oracle.CurrentPrice(ctx, loanAsset.Symbol)
	if !ok || loanPrice == 0 {
		return PricePair{}, errors.Wrapf(ErrTradingPairPriceMissing, "no price for %s", loanAsset.Symbol)
	}
	collateralPrice, ok := oracle.CurrentPrice(ctx, collateralAsset.Symbol)
	if !ok || collateralPrice == 0 {
		return PricePair{}, errors.Wrapf(ErrTradingPairPriceMissing, "no price for %s", collateralAsset.Symbol)
	}
	return PricePair{Loan: loanPrice, Collateral: collateralPrice}, nil
}

// Ltv prices a loan against its collateral.
func (p PricePair) Ltv(loanAmount, collateralAmount Amount) (uint64, error) {
	return CalcPairLtv(loanAmount, p.Loan, collateralAmount, p.Collateral)
}

// CollateralToLoan converts a collateral amount into loan asset units at market price.
func (p PricePair) CollateralToLoan(collateral Amount) (Amount, error) {
	value, err := CalcValue(collateral, p.Collateral)
	if err != nil {
		return ZeroAmount, err
	}
	return CalcAmount(value, p.Loan)
}

// LoanToCollateral converts a loan asset amount into collateral units at market price.
func (p PricePair) LoanToCollateral(loan Amount) (Amount, error) {
	value, err := CalcValue(loan, p.Loan)
	if err != nil {
		return ZeroAmount, err
	}
	return CalcAmount(value, p.Collateral)
}
