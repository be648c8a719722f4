package memory

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
)

// Oracle serves prices set by hand.
type Oracle struct {
	mu     sync.RWMutex
	prices map[string]uint64
}

var _ core.PriceOracle = (*Oracle)(nil)

func NewOracle() *Oracle {
	return &Oracle{prices: make(map[string]uint64)}
}

func (o *Oracle) SetPrice(symbol string, price uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = price
}

// ClearPrice removes the quote so CurrentPrice reports it as missing.
func (o *Oracle) ClearPrice(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.prices, symbol)
}

func (o *Oracle) CurrentPrice(_ context.Context, symbol string) (uint64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[symbol]
	if !ok || price == 0 {
		return 0, false
	}
	return price, true
}
