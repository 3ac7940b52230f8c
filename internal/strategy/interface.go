// Package strategy implements the Strategy Runtime: the mean-reversion,
// trend-following, and VCSR strategies, each run as one task per enabled
// domain.StrategyRow by the Scheduler.
//
// Grounded on the teacher's internal/strategy package (Strategy interface
// shape, Registry, per-strategy Params convention) and
// original_source/services/strategies/{mean_reversion,trend_follow,vcsr}.rs
// for the trading math itself.
package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// Strategy is one running strategy task. Run blocks, consuming candles
// from its subscribed Bus topic and emitting orders through the Trading
// Engine, until ctx is cancelled — the Scheduler cancels ctx to stop a
// task whose row becomes disabled or removed.
type Strategy interface {
	Run(ctx context.Context) error
}

// TradingEngine is the narrow seam strategies use to submit orders.
// Implemented in production by *internal/copytrading.ReplicatingEngine
// wrapping *internal/trading.Engine.
type TradingEngine interface {
	PlaceOrder(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error)
}

// RiskChecker is the narrow seam strategies that pre-gate on drawdown use.
// Only trend-follow calls it (before its trade_exec call); mean-reversion
// and VCSR do not consult it, and their orders are gated only by the
// Trading Engine's trip-flag check. Implemented by *internal/risk.Guard in
// production.
type RiskChecker interface {
	CheckDrawdown(ctx context.Context, userID int64, now time.Time) (tripped bool, sum float64, err error)
}

// Deps bundles everything a Factory needs to build one strategy task.
type Deps struct {
	Row       domain.StrategyRow
	Bus       *bus.Bus
	Engine    TradingEngine
	Risk      RiskChecker
	Positions domain.PositionFlagCache
	Candles   domain.CandleCache
	Logger    *slog.Logger
}

// Factory builds a Strategy from Deps. Registered under the row's Kind so
// the Scheduler can dispatch on it.
type Factory func(deps Deps) (Strategy, error)
