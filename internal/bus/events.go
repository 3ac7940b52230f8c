package bus

import "github.com/mkwiatkowski/tradebot/internal/domain"

// CandleEvent is one published candle on the candles_1h or candles_4h
// topic.
type CandleEvent struct {
	Symbol string
	Candle domain.Candle
}

// OrderBookEvent is one published snapshot on the order_book topic.
type OrderBookEvent struct {
	Snapshot domain.OrderBookSnapshot
}
