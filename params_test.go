package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testUsdt = Asset{AssetId: "4d8c508b-91c5-375b-92b0-ee702ed2dac5", Symbol: "USDT"}
	testBtc  = Asset{AssetId: "c6d0c728-2624-429b-8e0d-d9d19b6592fa", Symbol: "BTC"}
)

func TestAssertOperationalMode(t *testing.T) {
	tests := []struct {
		state      OperationalState
		increasing bool
		want       error
	}{
		{OperationalStateOperational, true, nil},
		{OperationalStateNone, true, nil},
		{OperationalStatePaused, false, ErrPaused},
		{OperationalStateReduceOnly, true, ErrReduceOnly},
		{OperationalStateReduceOnly, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.AssertOperationalMode(tt.increasing))
		})
	}
}

func TestSystemAccountIsStable(t *testing.T) {
	assert.Equal(t, SystemAccount("main", "pool"), SystemAccount("main", "pool"))
	assert.NotEqual(t, SystemAccount("main", "pool"), SystemAccount("main", "pawnshop"))
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams("main", testUsdt, testBtc)
	require.NoError(t, p.Validate())

	bad := p
	bad.WarningThreshold = bad.LiquidationThreshold
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = p
	bad.CollateralAsset = testUsdt
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = p
	bad.LTVLimit = PRECISION
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestMarketParams(t *testing.T) {
	p := DefaultMarketParams("p2p", P2P, TradingPair{Collateral: testBtc, Borrow: testUsdt})
	require.NoError(t, p.Validate())

	pair, err := p.FindTradingPair(testBtc.AssetId, testUsdt.AssetId)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", pair.String())

	_, err = p.FindTradingPair(testUsdt.AssetId, testBtc.AssetId)
	assert.ErrorIs(t, err, ErrTradingPairNotAllowed)

	bad := p
	bad.SafeLTV = bad.LiquidationLTV
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
