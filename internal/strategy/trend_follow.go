package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/domain"
)

const (
	defaultTrendFollowFast     = 20
	defaultTrendFollowSlow     = 100
	defaultTrendFollowDonchian = 55
	defaultTrendFollowQty      = 0.01

	// positionFlagTTL is how long the "in position" flag survives once set
	// by an entry, matching original_source's 3600*24*30 seconds.
	positionFlagTTL = 30 * 24 * time.Hour

	// dailyBufferSlack caps the daily buffer at slow+dailyBufferSlack,
	// matching original_source's cfg.slow+10.
	dailyBufferSlack = 10
)

// TrendFollow aggregates 1h candles into daily bars and trades Donchian
// breakouts filtered by a fast/slow SMA crossover, remembering whether it
// currently holds a position in a per-user cache flag.
//
// Grounded on original_source/services/strategies/trend_follow.rs's
// loop_core/evaluate_core: the daily-candle aggregation (first 1h candle of
// a UTC day opens the bar, the bar finalizes on the 1h candle whose hour is
// 0), the Donchian high/low computed over the most recent `donchian` daily
// bars INCLUDING the bar that just closed, and — preserved deliberately,
// see DESIGN.md — the risk check gating only the trade_exec call and not
// the position-flag update, so the flag tracks the signal even on a
// risk-blocked trade.
type TrendFollow struct {
	row       domain.StrategyRow
	params    domain.TrendFollowParams
	bus       *bus.Bus
	engine    TradingEngine
	risk      RiskChecker
	positions domain.PositionFlagCache
	daily     *RollingCandles
	logger    *slog.Logger
}

// NewTrendFollow builds a TrendFollow task from deps. Register it in the
// strategy Registry under domain.StrategyKindTrendFollow.
func NewTrendFollow(deps Deps) (Strategy, error) {
	var params domain.TrendFollowParams
	if len(deps.Row.Params) > 0 {
		if err := json.Unmarshal(deps.Row.Params, &params); err != nil {
			return nil, fmt.Errorf("trend_follow: parsing params: %w", err)
		}
	}
	if params.Symbol == "" {
		params.Symbol = deps.Row.Symbol
	}
	if params.Fast <= 0 {
		params.Fast = defaultTrendFollowFast
	}
	if params.Slow <= 0 {
		params.Slow = defaultTrendFollowSlow
	}
	if params.Donchian <= 0 {
		params.Donchian = defaultTrendFollowDonchian
	}
	if params.Qty <= 0 {
		params.Qty = defaultTrendFollowQty
	}
	if deps.Risk == nil {
		return nil, fmt.Errorf("trend_follow: risk checker dependency is required")
	}
	if deps.Positions == nil {
		return nil, fmt.Errorf("trend_follow: position flag cache dependency is required")
	}

	return &TrendFollow{
		row:       deps.Row,
		params:    params,
		bus:       deps.Bus,
		engine:    deps.Engine,
		risk:      deps.Risk,
		positions: deps.Positions,
		daily:     NewRollingCandles(params.Slow + dailyBufferSlack),
		logger:    deps.Logger.With(slog.String("strategy", "trend_follow"), slog.Int64("strategy_id", deps.Row.ID)),
	}, nil
}

// Run subscribes to the 1h candle topic, aggregates into daily bars, and
// evaluates on every UTC-day rollover for this task's symbol until ctx is
// cancelled.
func (s *TrendFollow) Run(ctx context.Context) error {
	sub := s.bus.Candles1h.Subscribe(ctx)
	defer s.bus.Candles1h.Unsubscribe(sub)

	s.logger.InfoContext(ctx, "trend_follow started", slog.String("symbol", s.params.Symbol))
	defer s.logger.InfoContext(ctx, "trend_follow stopped")

	var agg DailyAggregator

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.C():
			if !ok {
				return nil
			}
			if event.Symbol != s.params.Symbol {
				continue
			}
			finished, rolled := agg.Add(event.Candle)
			if !rolled {
				continue
			}
			s.daily.Push(finished)
			if err := s.evaluate(ctx, time.Now()); err != nil {
				s.logger.ErrorContext(ctx, "trend_follow: evaluation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// evaluate is the decision core, mirroring evaluate_core: it requires a
// daily buffer of at least Slow bars, computes fast/slow SMA and an
// inclusive-of-current-bar Donchian channel, and applies the entry/exit
// rules against the persisted position flag. Exit is evaluated before
// entry, matching original_source's match-arm order (an exit condition
// takes precedence even when an entry condition also happens to hold).
func (s *TrendFollow) evaluate(ctx context.Context, now time.Time) error {
	if s.daily.Len() < s.params.Slow {
		return nil
	}

	fastSMA, ok := s.daily.SMA(s.params.Fast)
	if !ok {
		return nil
	}
	slowSMA, ok := s.daily.SMA(s.params.Slow)
	if !ok {
		return nil
	}
	donHigh, donLow, ok := s.daily.HighLow(s.params.Donchian)
	if !ok {
		return nil
	}
	latest, ok := s.daily.Last()
	if !ok {
		return nil
	}
	price := latest.Close

	inPosition, err := s.positions.GetInPosition(ctx, s.row.UserID)
	if err != nil {
		return fmt.Errorf("trend_follow: reading position flag: %w", err)
	}

	exit := price <= donLow
	entry := fastSMA > slowSMA && price >= donHigh

	switch {
	case inPosition && exit:
		return s.exit(ctx, now, price, fastSMA, slowSMA, donLow)
	case !inPosition && entry:
		return s.enter(ctx, now, price, fastSMA, slowSMA, donHigh)
	}
	return nil
}

func (s *TrendFollow) enter(ctx context.Context, now time.Time, price, fastSMA, slowSMA, donHigh float64) error {
	if tripped, _, err := s.risk.CheckDrawdown(ctx, s.row.UserID, now); err != nil {
		s.logger.WarnContext(ctx, "trend_follow: drawdown check failed, skipping entry trade", slog.String("error", err.Error()))
	} else if !tripped {
		intent := domain.TradeIntent{
			Exchange: s.row.Exchange,
			UserID:   s.row.UserID,
			Symbol:   s.params.Symbol,
			Side:     domain.OrderSideBuy,
			Type:     domain.OrderTypeMarket,
			Size:     decimal.NewFromFloat(s.params.Qty),
			Reason:   fmt.Sprintf("trend_follow: entry price=%.4f fast=%.4f slow=%.4f don_high=%.4f", price, fastSMA, slowSMA, donHigh),
		}
		if _, err := s.engine.PlaceOrder(ctx, intent); err != nil {
			s.logger.ErrorContext(ctx, "trend_follow: entry order failed", slog.String("error", err.Error()))
		}
	} else {
		s.logger.WarnContext(ctx, "trend_follow: drawdown tripped, entry trade skipped")
	}

	// The position flag tracks the signal regardless of whether the trade
	// itself was risk-blocked, mirroring evaluate_core.
	return s.positions.SetInPosition(ctx, s.row.UserID, true)
}

func (s *TrendFollow) exit(ctx context.Context, now time.Time, price, fastSMA, slowSMA, donLow float64) error {
	if tripped, _, err := s.risk.CheckDrawdown(ctx, s.row.UserID, now); err != nil {
		s.logger.WarnContext(ctx, "trend_follow: drawdown check failed, skipping exit trade", slog.String("error", err.Error()))
	} else if !tripped {
		intent := domain.TradeIntent{
			Exchange: s.row.Exchange,
			UserID:   s.row.UserID,
			Symbol:   s.params.Symbol,
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeMarket,
			Size:     decimal.NewFromFloat(s.params.Qty),
			Reason:   fmt.Sprintf("trend_follow: exit price=%.4f fast=%.4f slow=%.4f don_low=%.4f", price, fastSMA, slowSMA, donLow),
		}
		if _, err := s.engine.PlaceOrder(ctx, intent); err != nil {
			s.logger.ErrorContext(ctx, "trend_follow: exit order failed", slog.String("error", err.Error()))
		}
	} else {
		s.logger.WarnContext(ctx, "trend_follow: drawdown tripped, exit trade skipped")
	}

	return s.positions.SetInPosition(ctx, s.row.UserID, false)
}
