package trading

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mkwiatkowski/tradebot/internal/bus"
)

// PriceTracker implements ReferencePriceSource by remembering the latest
// 1h-candle close per symbol seen on the bus. Grounded on the teacher's
// subscribe-in-a-goroutine shape used by internal/strategy's tasks
// (bus.Candles1h.Subscribe/Unsubscribe around a context-driven receive
// loop), here reduced to a single background reader with no strategy
// decisioning attached.
type PriceTracker struct {
	b *bus.Bus

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewPriceTracker returns a tracker that has not yet observed any candles.
// Run must be started before ReferencePrice returns non-zero values.
func NewPriceTracker(b *bus.Bus) *PriceTracker {
	return &PriceTracker{
		b:      b,
		prices: make(map[string]decimal.Decimal),
	}
}

// Run consumes the 1h candle topic until ctx is done, recording each
// candle's close as the latest reference price for its symbol.
func (p *PriceTracker) Run(ctx context.Context) error {
	sub := p.b.Candles1h.Subscribe(ctx)
	defer p.b.Candles1h.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.mu.Lock()
			p.prices[event.Symbol] = decimal.NewFromFloat(event.Candle.Close)
			p.mu.Unlock()
		}
	}
}

// ReferencePrice returns the latest recorded close for symbol, or zero if
// none has been observed yet. A zero reference price makes
// risk.Guard.CheckSlippage log and skip the check rather than fail closed.
func (p *PriceTracker) ReferencePrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices[symbol], nil
}
