package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLoanHealth(t *testing.T) {
	prices := PricePair{Loan: PRECISION, Collateral: 2 * PRECISION}

	tests := []struct {
		name       string
		collateral uint64
		loan       uint64
		want       LoanStatus
		wantLtv    uint64
	}{
		{"well", 100, 100, LoanStatusWell, 50_000_000},
		{"warning at threshold", 100, 150, LoanStatusWarning, 75_000_000},
		{"liquidating at threshold", 100, 180, LoanStatusLiquidating, 90_000_000},
		{"liquidating wins over warning", 100, 250, LoanStatusLiquidating, 125_000_000},
		{"no debt", 100, 0, LoanStatusWell, 0},
		{"no collateral", 0, 1, LoanStatusLiquidating, ^uint64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := CheckLoanHealth(NewAmount(tt.collateral), NewAmount(tt.loan), prices, 90_000_000, 75_000_000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Status)
			assert.Equal(t, tt.wantLtv, state.Ltv)
		})
	}
}

func TestLtvBelow(t *testing.T) {
	prices := PricePair{Loan: PRECISION, Collateral: PRECISION}

	ok, ltv, err := LtvBelow(prices, NewAmount(49_999_999), NewAmount(1_00000000), 50_000_000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, ltv, uint64(50_000_000))

	ok, _, err = LtvBelow(prices, NewAmount(50_000_000), NewAmount(1_00000000), 50_000_000)
	require.NoError(t, err)
	assert.False(t, ok, "equal to the limit is rejected")
}
