package blowfin

import (
	"strconv"
	"time"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// publishBook aggregates a books5 depth level into a single bid/ask depth
// reading and publishes it on the OrderBook topic.
func (w *WSClient) publishBook(level bookLevel5) {
	var bidDepth, askDepth float64
	for _, b := range level.Bids {
		if len(b) < 2 {
			continue
		}
		size, err := strconv.ParseFloat(b[1], 64)
		if err == nil {
			bidDepth += size
		}
	}
	for _, a := range level.Asks {
		if len(a) < 2 {
			continue
		}
		size, err := strconv.ParseFloat(a[1], 64)
		if err == nil {
			askDepth += size
		}
	}

	w.bus.OrderBook.Publish(bus.OrderBookEvent{
		Snapshot: domain.OrderBookSnapshot{
			Symbol:    w.symbol,
			Timestamp: time.Now(),
			BidDepth:  bidDepth,
			AskDepth:  askDepth,
		},
	})
}
