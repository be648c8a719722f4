// Package metrics exports market activity to prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "pawnshop"

	marketLabel  = "market"
	typeLabel    = "type"
	outcomeLabel = "outcome"
	rateLabel    = "rate"
)

const (
	SweepOK      = "ok"
	SweepSkipped = "skipped"
	SweepFailed  = "failed"
)

type (
	Metrics struct {
		events        *prometheus.CounterVec
		sweeps        *prometheus.CounterVec
		sweepDuration *prometheus.HistogramVec
		rates         *prometheus.GaugeVec
		shareValue    *prometheus.GaugeVec
		blockHeight   prometheus.Gauge
	}

	eventSink struct {
		metrics *Metrics
		market  string
	}
)

func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Market events emitted, by market and event type",
		}, []string{marketLabel, typeLabel}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Per-block sweeps, by market and outcome",
		}, []string{marketLabel, outcomeLabel}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Per-block sweep duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{marketLabel}),
		rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_ratio",
			Help:      "Utilization and annual borrow and savings rates of a pooled market",
		}, []string{marketLabel, rateLabel}),
		shareValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "share_value",
			Help:      "Price of one deposit share in the collection asset",
		}, []string{marketLabel}),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Last block swept",
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.sweeps, m.sweepDuration, m.rates, m.shareValue, m.blockHeight} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Sink counts the events of one market.
func (m *Metrics) Sink(market string) core.EventSink {
	return &eventSink{metrics: m, market: market}
}

func (s *eventSink) Emit(_ context.Context, event core.Event) {
	s.metrics.events.WithLabelValues(s.market, event.Type.String()).Inc()
}

func (m *Metrics) ObserveSweep(market string, elapsed time.Duration, skipped bool, err error) {
	outcome := SweepOK
	switch {
	case err != nil:
		outcome = SweepFailed
	case skipped:
		outcome = SweepSkipped
	}
	m.sweeps.WithLabelValues(market, outcome).Inc()
	m.sweepDuration.WithLabelValues(market).Observe(elapsed.Seconds())
}

func (m *Metrics) SetRates(market string, rates core.Rates) {
	utilization, _ := core.RatioToDecimal(rates.Utilization).Float64()
	borrow, _ := rates.BorrowApr().Float64()
	savings, _ := rates.SavingsApr().Float64()
	m.rates.WithLabelValues(market, "utilization").Set(utilization)
	m.rates.WithLabelValues(market, "borrow").Set(borrow)
	m.rates.WithLabelValues(market, "savings").Set(savings)
}

func (m *Metrics) SetShareValue(market string, pool *core.SharePool) {
	value, _ := pool.ValueOfTokens.Decimal().Float64()
	m.shareValue.WithLabelValues(market).Set(value)
}

func (m *Metrics) SetBlockHeight(height uint64) {
	m.blockHeight.Set(float64(height))
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
