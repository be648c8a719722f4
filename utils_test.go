package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalcValue(t *testing.T) {
	tests := []struct {
		name     string
		amount   Amount
		price    uint64
		expected Amount
	}{
		{
			name:     "normal",
			amount:   NewAmount(100_00000000),
			price:    2_00000000,
			expected: NewAmount(200_00000000),
		},
		{
			name:     "zero",
			amount:   ZeroAmount,
			price:    2_00000000,
			expected: ZeroAmount,
		},
		{
			name:     "fractional price floors",
			amount:   NewAmount(3),
			price:    50_000_000,
			expected: NewAmount(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalcValue(tt.amount, tt.price)
			assert.NoError(t, err)
			assert.True(t, result.Equal(tt.expected), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestCalcAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    Amount
		price    uint64
		expected Amount
	}{
		{
			name:     "normal",
			value:    NewAmount(200_00000000),
			price:    2_00000000,
			expected: NewAmount(100_00000000),
		},
		{
			name:     "zero price",
			value:    NewAmount(200_00000000),
			price:    0,
			expected: ZeroAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalcAmount(tt.value, tt.price)
			if tt.price == 0 {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, result.Equal(tt.expected), "expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestCalcPairLtv(t *testing.T) {
	// 100 USDT against 1 BTC at 10000 USDT
	ltv, err := CalcPairLtv(NewAmount(100_00000000), 1_00000000, NewAmount(1_00000000), 10000_00000000)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), ltv)

	ltv, err = CalcPairLtv(NewAmount(1), 1_00000000, ZeroAmount, 1_00000000)
	assert.NoError(t, err)
	assert.Equal(t, ^uint64(0), ltv)

	ltv, err = CalcPairLtv(ZeroAmount, 1_00000000, NewAmount(1), 1_00000000)
	assert.NoError(t, err)
	assert.Zero(t, ltv)
}

func TestCalcInterestPaymentForPeriod(t *testing.T) {
	// 10% apr over a full year
	interest, err := CalcInterestPaymentForPeriod(10_000_000, SECONDS_PER_YEAR, NewAmount(1000_00000000))
	assert.NoError(t, err)
	assert.True(t, interest.Equal(NewAmount(100_00000000)), "expected 100, got %s", interest.Decimal())

	interest, err = CalcInterestPaymentForPeriod(10_000_000, 0, NewAmount(1000_00000000))
	assert.NoError(t, err)
	assert.True(t, interest.IsZero())
}

func TestRatioDecimalRoundTrip(t *testing.T) {
	r, err := RatioFromDecimal(decimal.RequireFromString("0.05"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), r)
	assert.True(t, RatioToDecimal(r).Equal(decimal.RequireFromString("0.05")))

	_, err = RatioFromDecimal(decimal.RequireFromString("-1"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAprToApy(t *testing.T) {
	assert.True(t, AprToApy(decimal.Zero).IsZero())
	apy := AprToApy(decimal.RequireFromString("0.1"))
	assert.True(t, apy.GreaterThan(decimal.RequireFromString("0.105")), "apy %s", apy)
	assert.True(t, apy.LessThan(decimal.RequireFromString("0.106")), "apy %s", apy)
}
