package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market orders from limit-like orders that carry
// a price.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TradeIntent is built by a strategy and consumed once by the Trading
// Engine. Size must be > 0; Price is required iff Type is limit-like.
type TradeIntent struct {
	Exchange string
	UserID   int64
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Price    decimal.Decimal // ignored for market orders
	Size     decimal.Decimal
	Reason   string
}

// Validate enforces the invariants spec.md §3 lists for TradeIntent.
func (t TradeIntent) Validate() error {
	if t.Size.Sign() <= 0 {
		return fmt.Errorf("%w: size must be > 0, got %v", ErrInvalidIntent, t.Size)
	}
	if t.Type == OrderTypeLimit && t.Price.Sign() <= 0 {
		return fmt.Errorf("%w: limit order requires a positive price", ErrInvalidIntent)
	}
	return nil
}

// OrderResult is the Trading Engine's normalized response to a placed
// order. Success=false is a normal outcome (exchange rejection), never an
// error.
type OrderResult struct {
	Success bool
	OrderID string
	Symbol  string
	Side    OrderSide
	Type    OrderType
	Price   decimal.Decimal
	Size    decimal.Decimal
	Message string
	RawData []byte
}
