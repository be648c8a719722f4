package core

type (
	HealthState struct {
		Status LoanStatus `json:"status"`
		Ltv    uint64     `json:"ltv"`
	}

	// HealthEvaluator classifies a position by its loan-to-value ratio.
	HealthEvaluator struct {
		LiquidationThreshold uint64
		WarningThreshold     uint64
	}
)

func NewHealthEvaluator(liquidationThreshold, warningThreshold uint64) HealthEvaluator {
	return HealthEvaluator{LiquidationThreshold: liquidationThreshold, WarningThreshold: warningThreshold}
}

// CheckLoanHealth prices the loan against its collateral. Liquidation wins over warning
// when both thresholds are met.
func (h HealthEvaluator) CheckLoanHealth(collateral, loan Amount, prices PricePair) (HealthState, error) {
	ltv, err := prices.Ltv(loan, collateral)
	if err != nil {
		return HealthState{}, err
	}
	return HealthState{Status: h.Classify(ltv), Ltv: ltv}, nil
}

func (h HealthEvaluator) Classify(ltv uint64) LoanStatus {
	switch {
	case ltv >= h.LiquidationThreshold:
		return LoanStatusLiquidating
	case ltv >= h.WarningThreshold:
		return LoanStatusWarning
	default:
		return LoanStatusWell
	}
}

// CheckLoanHealth is the free-function form used by callers holding raw thresholds.
func CheckLoanHealth(collateral, loan Amount, prices PricePair, liquidationThreshold, warningThreshold uint64) (HealthState, error) {
	return NewHealthEvaluator(liquidationThreshold, warningThreshold).CheckLoanHealth(collateral, loan, prices)
}

// LtvBelow reports whether the position prices strictly below limit.
func LtvBelow(prices PricePair, loan, collateral Amount, limit uint64) (bool, uint64, error) {
	ltv, err := prices.Ltv(loan, collateral)
	if err != nil {
		return false, 0, err
	}
	return ltv < limit, ltv, nil
}
