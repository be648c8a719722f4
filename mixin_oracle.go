package core

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// PriceQuoter returns the USD price of one whole unit of an asset.
	PriceQuoter interface {
		QuotePrice(ctx context.Context, assetId string) (decimal.Decimal, error)
	}

	// MixinQuoter reads prices from the Mixin network asset endpoint.
	MixinQuoter struct{}

	mixinQuote struct {
		price     uint64
		updatedAt time.Time
	}

	// MixinOracle caches the quotes of a fixed asset set. Refresh pulls new quotes; a quote older
	// than maxAge is reported as missing.
	MixinOracle struct {
		quoter PriceQuoter
		clk    clock.Clock
		maxAge time.Duration
		assets []Asset
		log    Log

		mu     sync.RWMutex
		quotes map[string]mixinQuote
	}
)

var _ PriceOracle = (*MixinOracle)(nil)

func (MixinQuoter) QuotePrice(ctx context.Context, assetId string) (decimal.Decimal, error) {
	asset, err := mixin.ReadNetworkAsset(ctx, assetId)
	if err != nil {
		return decimal.Zero, err
	}
	return asset.PriceUSD, nil
}

func NewMixinOracle(quoter PriceQuoter, clk clock.Clock, maxAge time.Duration, log Log, assets ...Asset) *MixinOracle {
	if log == nil {
		log = NopLog()
	}
	return &MixinOracle{
		quoter: quoter,
		clk:    clk,
		maxAge: maxAge,
		assets: assets,
		log:    log,
		quotes: make(map[string]mixinQuote),
	}
}

// Refresh quotes every asset. A failed quote keeps the previous one, which then ages out.
func (o *MixinOracle) Refresh(ctx context.Context) error {
	var first error
	for _, asset := range o.assets {
		price, err := o.quote(ctx, asset)
		if err != nil {
			o.log.Warn().Err(err).Msgf("quote %s", asset.Symbol)
			if first == nil {
				first = err
			}
			continue
		}
		o.mu.Lock()
		o.quotes[asset.Symbol] = mixinQuote{price: price, updatedAt: o.clk.Now()}
		o.mu.Unlock()
	}
	return first
}

func (o *MixinOracle) quote(ctx context.Context, asset Asset) (uint64, error) {
	usd, err := o.quoter.QuotePrice(ctx, asset.AssetId)
	if err != nil {
		return 0, errors.Wrapf(err, "asset %s", asset.AssetId)
	}
	if !usd.IsPositive() {
		return 0, errors.Wrapf(ErrTradingPairPriceMissing, "%s quoted at %s", asset.Symbol, usd)
	}
	return RatioFromDecimal(usd)
}

func (o *MixinOracle) CurrentPrice(_ context.Context, symbol string) (uint64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.quotes[symbol]
	if !ok || q.price == 0 {
		return 0, false
	}
	if o.maxAge > 0 && o.clk.Now().Sub(q.updatedAt) > o.maxAge {
		return 0, false
	}
	return q.price, true
}
