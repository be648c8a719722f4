package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSinkCountsByType(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	sink := m.Sink("btc-usdt")
	sink.Emit(ctx, core.Event{Type: core.EventLoanCreated})
	sink.Emit(ctx, core.Event{Type: core.EventLoanCreated})
	sink.Emit(ctx, core.Event{Type: core.EventStaked})
	m.Sink("p2p").Emit(ctx, core.Event{Type: core.EventLoanMatched})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("btc-usdt", "LoanCreated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("btc-usdt", "Staked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("p2p", "LoanMatched")))
}

func TestObserveSweep(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveSweep("btc-usdt", time.Millisecond, false, nil)
	m.ObserveSweep("btc-usdt", time.Millisecond, true, nil)
	m.ObserveSweep("btc-usdt", time.Millisecond, false, errors.New("boom"))
	m.ObserveSweep("btc-usdt", time.Millisecond, false, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweeps.WithLabelValues("btc-usdt", SweepOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweeps.WithLabelValues("btc-usdt", SweepSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweeps.WithLabelValues("btc-usdt", SweepFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sweepDuration))
}

func TestGauges(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetRates("btc-usdt", core.Rates{Utilization: 4_000_000, BorrowRate: 5_400_000, SavingsRate: 216_000})
	assert.InDelta(t, 0.04, testutil.ToFloat64(m.rates.WithLabelValues("btc-usdt", "utilization")), 1e-12)
	assert.InDelta(t, 0.054, testutil.ToFloat64(m.rates.WithLabelValues("btc-usdt", "borrow")), 1e-12)
	assert.InDelta(t, 0.00216, testutil.ToFloat64(m.rates.WithLabelValues("btc-usdt", "savings")), 1e-12)

	pool := core.NewSharePool()
	pool.ValueOfTokens = core.NewAmount(100_210_000)
	m.SetShareValue("btc-usdt", pool)
	assert.InDelta(t, 1.0021, testutil.ToFloat64(m.shareValue.WithLabelValues("btc-usdt")), 1e-12)

	m.SetBlockHeight(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.blockHeight))
}

func TestDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)
	_, err = New(registry)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry)
	require.NoError(t, err)
	m.SetBlockHeight(7)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "pawnshop_block_height 7")
}
