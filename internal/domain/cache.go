package domain

import (
	"context"
	"time"
)

// RiskCache is the shared-cache seam for the Risk Guard: a per-user rolling
// PnL list and a per-user trip flag, both with server-side TTLs.
type RiskCache interface {
	AppendPnL(ctx context.Context, userID int64, entry RollingPnLEntry, ttl time.Duration) error
	ListPnL(ctx context.Context, userID int64) ([]RollingPnLEntry, error)
	SetTripped(ctx context.Context, userID int64, tripped bool) error
	IsTripped(ctx context.Context, userID int64) (bool, error)
}

// PositionFlagCache is the single-writer-per-user position flag the
// trend-follow strategy uses to remember whether it currently holds a
// position for a given user.
type PositionFlagCache interface {
	SetInPosition(ctx context.Context, userID int64, inPosition bool) error
	GetInPosition(ctx context.Context, userID int64) (bool, error)
}

// FollowerCache is the read-through/write-through cache in front of
// FollowerStore, keyed by leader user id.
type FollowerCache interface {
	Get(ctx context.Context, leaderUserID int64) ([]int64, bool, error)
	Set(ctx context.Context, leaderUserID int64, followers []int64, ttl time.Duration) error
	Invalidate(ctx context.Context, leaderUserID int64) error
}

// CandleCache is a warm cache of recently-seen candles per (symbol,
// interval), used by strategies to survive a process restart without
// waiting to rebuild history from the live feed.
type CandleCache interface {
	SetCandles(ctx context.Context, symbol, interval string, candles []Candle, ttl time.Duration) error
	GetCandles(ctx context.Context, symbol, interval string) ([]Candle, error)
}
