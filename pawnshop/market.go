package pawnshop

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
)

type (
	Option func(m *Market)

	// Market is the pooled deposit-loan market: stakers fund a pool, borrowers draw from it
	// against collateral held by the pawnshop account.
	Market struct {
		mu sync.RWMutex

		params    core.Params
		ledger    core.Ledger
		oracle    core.PriceOracle
		clock     core.BlockClock
		loans     core.LoanStore
		shares    *core.ShareAccrualEngine
		rateModel core.InterestRateModel
		events    core.EventSink
		log       core.Log

		rates core.Rates
	}
)

func WithLogger(log core.Log) Option {
	return func(m *Market) {
		m.log = log
	}
}

func WithEventSink(sink core.EventSink) Option {
	return func(m *Market) {
		m.events = sink
	}
}

func WithRateModel(model core.InterestRateModel) Option {
	return func(m *Market) {
		m.rateModel = model
	}
}

func New(params core.Params, ledger core.Ledger, oracle core.PriceOracle, clock core.BlockClock, loans core.LoanStore, shares core.ShareStore, opts ...Option) (*Market, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Market{
		params:    params,
		ledger:    ledger,
		oracle:    oracle,
		clock:     clock,
		loans:     loans,
		rateModel: core.PiecewiseCurve{},
		events:    core.NopSink(),
		log:       core.NopLog(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.shares = core.NewShareAccrualEngine(shares, ledger, params.CollectionAsset.AssetId, params.PoolAccount, m.log)
	return m, nil
}

func (m *Market) Params() core.Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// SetParams replaces the configuration. Admin only, never paused.
func (m *Market) SetParams(params core.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	m.log.Info().Msgf("pawnshop params updated, ltv limit %d, warning %d, liquidation %d",
		params.LTVLimit, params.WarningThreshold, params.LiquidationThreshold)
	return nil
}

func (m *Market) SetOperationalState(state core.OperationalState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.OperationalState = state
	m.log.Info().Msgf("pawnshop operational state %s", state)
}

func (m *Market) Pause() {
	m.SetOperationalState(core.OperationalStatePaused)
}

func (m *Market) Unpause() {
	m.SetOperationalState(core.OperationalStateOperational)
}

// CurrentRates returns the rates published by the last accrual.
func (m *Market) CurrentRates() core.Rates {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rates
}

func (m *Market) Loan(ctx context.Context, id uint64) (*core.Loan, error) {
	return m.loans.GetLoan(ctx, id)
}

func (m *Market) LoansOf(ctx context.Context, account uuid.UUID) ([]*core.Loan, error) {
	return m.loans.ListLoansByOwner(ctx, account)
}

func (m *Market) Totals(ctx context.Context) (*core.LoanTotals, error) {
	return m.loans.GetLoanTotals(ctx)
}

func (m *Market) SharePool(ctx context.Context) (*core.SharePool, error) {
	return m.shares.Pool(ctx)
}

func (m *Market) SharesOf(ctx context.Context, account uuid.UUID) (core.Amount, error) {
	return m.shares.SharesOf(ctx, account)
}

func (m *Market) RedeemableOf(ctx context.Context, account uuid.UUID) (core.Amount, error) {
	return m.shares.RedeemableOf(ctx, account)
}

func (m *Market) prices(ctx context.Context) (core.PricePair, error) {
	return core.FetchPricePair(ctx, m.oracle, m.params.CollectionAsset, m.params.CollateralAsset)
}

func (m *Market) emit(ctx context.Context, event core.Event) {
	event.Block = m.clock.BlockNumber()
	m.events.Emit(ctx, event)
}

func (m *Market) newSaga() *core.Saga {
	return core.NewSaga(m.ledger, m.log)
}

func (m *Market) collection() string {
	return m.params.CollectionAsset.AssetId
}

func (m *Market) collateral() string {
	return m.params.CollateralAsset.AssetId
}
