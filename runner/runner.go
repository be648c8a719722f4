// Package runner produces blocks on a timer and sweeps every market once per block.
package runner

import (
	"context"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/DomeLiquid/pawnshop/metrics"
	"github.com/DomeLiquid/pawnshop/p2p"
	"github.com/DomeLiquid/pawnshop/pawnshop"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	Runner struct {
		clk      clock.Clock
		chain    *core.ChainClock
		interval time.Duration
		log      core.Log
		metrics  *metrics.Metrics
		oracle   Refresher

		pawnshops []namedPawnshop
		markets   []namedMarket
	}

	// Refresher pulls fresh prices before the markets are swept.
	Refresher interface {
		Refresh(ctx context.Context) error
	}

	namedPawnshop struct {
		name   string
		market *pawnshop.Market
	}

	namedMarket struct {
		name   string
		market *p2p.Market
	}

	Option func(*Runner)
)

func WithLogger(log core.Log) Option {
	return func(r *Runner) {
		r.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithOracle(oracle Refresher) Option {
	return func(r *Runner) {
		r.oracle = oracle
	}
}

func WithPawnshop(name string, market *pawnshop.Market) Option {
	return func(r *Runner) {
		r.pawnshops = append(r.pawnshops, namedPawnshop{name: name, market: market})
	}
}

func WithMarket(name string, market *p2p.Market) Option {
	return func(r *Runner) {
		r.markets = append(r.markets, namedMarket{name: name, market: market})
	}
}

// New returns a runner that advances chain every interval of clk.
func New(clk clock.Clock, chain *core.ChainClock, interval time.Duration, opts ...Option) (*Runner, error) {
	if interval <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "block interval %s", interval)
	}
	r := &Runner{
		clk:      clk,
		chain:    chain,
		interval: interval,
		log:      core.NopLog(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run blocks until ctx is cancelled. Sweep errors are logged and the next block still runs.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clk.Ticker(r.interval)
	defer ticker.Stop()

	r.log.Info().Msgf("runner started at block %d, %d pawnshops, %d markets",
		r.chain.BlockNumber(), len(r.pawnshops), len(r.markets))
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msgf("runner stopped at block %d", r.chain.BlockNumber())
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error().Err(err).Msgf("block %d", r.chain.BlockNumber())
		}
	}
}

// Tick produces one block and sweeps every market at the new height. Every market is swept
// even when an earlier one fails; the first error is returned.
func (r *Runner) Tick(ctx context.Context) error {
	height := r.chain.Advance()
	if r.metrics != nil {
		r.metrics.SetBlockHeight(height)
	}

	if r.oracle != nil {
		// stale quotes age out inside the oracle; the sweeps still run
		if err := r.oracle.Refresh(ctx); err != nil {
			r.log.Warn().Err(err).Msgf("block %d price refresh", height)
		}
	}

	var first error
	for _, p := range r.pawnshops {
		if err := r.sweepPawnshop(ctx, p); err != nil && first == nil {
			first = errors.Wrap(err, p.name)
		}
	}
	for _, m := range r.markets {
		if err := r.sweepMarket(ctx, m); err != nil && first == nil {
			first = errors.Wrap(err, m.name)
		}
	}
	return first
}

func (r *Runner) sweepPawnshop(ctx context.Context, p namedPawnshop) error {
	start := r.clk.Now()
	report, err := p.market.Sweep(ctx)
	if r.metrics != nil {
		r.metrics.ObserveSweep(p.name, r.clk.Now().Sub(start), report != nil && report.Skipped, err)
	}
	if err != nil {
		return err
	}
	if report.Skipped {
		return nil
	}
	if len(report.Liquidating) > 0 || len(report.Warned) > 0 {
		r.log.Info().Msgf("%s block %d: %d warned, %d liquidating, %d recovered",
			p.name, report.Block, len(report.Warned), len(report.Liquidating), len(report.Recovered))
	}
	if r.metrics == nil {
		return nil
	}
	r.metrics.SetRates(p.name, report.Rates)
	pool, err := p.market.SharePool(ctx)
	if err != nil {
		return err
	}
	r.metrics.SetShareValue(p.name, pool)
	return nil
}

func (r *Runner) sweepMarket(ctx context.Context, m namedMarket) error {
	start := r.clk.Now()
	report, err := m.market.Sweep(ctx)
	if r.metrics != nil {
		r.metrics.ObserveSweep(m.name, r.clk.Now().Sub(start), report != nil && report.Skipped, err)
	}
	if err != nil {
		return err
	}
	if n := len(report.Expired) + len(report.ToBeLiquidated) + len(report.Overdue); n > 0 {
		r.log.Info().Msgf("%s block %d: %d expired, %d to be liquidated, %d overdue",
			m.name, report.Block, len(report.Expired), len(report.ToBeLiquidated), len(report.Overdue))
	}
	return nil
}
