package p2p

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/gofrs/uuid"
)

type (
	Option func(m *Market)

	// Market matches makers, who list collateralised borrow requests, with lenders who take them.
	// The Variant only changes how collateral is added to a borrow that has not been taken yet.
	Market struct {
		mu sync.RWMutex

		params  core.MarketParams
		ledger  core.Ledger
		oracle  core.PriceOracle
		clock   core.BlockClock
		borrows core.BorrowStore
		events  core.EventSink
		log     core.Log
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

func New(params core.MarketParams, ledger core.Ledger, oracle core.PriceOracle, clock core.BlockClock, borrows core.BorrowStore, opts ...Option) (*Market, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Market{
		params:  params,
		ledger:  ledger,
		oracle:  oracle,
		clock:   clock,
		borrows: borrows,
		events:  core.NopSink(),
		log:     core.NopLog(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Market) Params() core.MarketParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

func (m *Market) SetParams(params core.MarketParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	m.log.Info().Msgf("%s market params updated, safe ltv %d, liquidation ltv %d",
		params.Variant, params.SafeLTV, params.LiquidationLTV)
	return nil
}

func (m *Market) SetOperationalState(state core.OperationalState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.OperationalState = state
	m.log.Info().Msgf("%s market operational state %s", m.params.Variant, state)
}

func (m *Market) Pause() {
	m.SetOperationalState(core.OperationalStatePaused)
}

func (m *Market) Unpause() {
	m.SetOperationalState(core.OperationalStateOperational)
}

func (m *Market) Borrow(ctx context.Context, id uint64) (*core.Borrow, error) {
	return m.borrows.GetBorrow(ctx, id)
}

func (m *Market) MatchedLoan(ctx context.Context, id uint64) (*core.MatchedLoan, error) {
	return m.borrows.GetMatchedLoan(ctx, id)
}

func (m *Market) AliveBorrowOf(ctx context.Context, account uuid.UUID) (*core.Borrow, error) {
	return m.borrows.AliveBorrowOf(ctx, account)
}

// pairPrices quotes a pair by asset ids, which must be an allowed trading pair.
func (m *Market) pairPrices(ctx context.Context, collateralAsset, borrowAsset string) (core.PricePair, error) {
	pair, err := m.params.FindTradingPair(collateralAsset, borrowAsset)
	if err != nil {
		return core.PricePair{}, err
	}
	return core.FetchPricePair(ctx, m.oracle, pair.Borrow, pair.Collateral)
}

func (m *Market) emit(ctx context.Context, event core.Event) {
	event.Block = m.clock.BlockNumber()
	m.events.Emit(ctx, event)
}

func (m *Market) newSaga() *core.Saga {
	return core.NewSaga(m.ledger, m.log)
}
