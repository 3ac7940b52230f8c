package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/domain"
)

const (
	defaultMeanReversionPeriod = 20
	defaultMeanReversionSigma  = 2.0
	defaultMeanReversionQty    = 0.01
)

// MeanReversion buys when the latest close is below a Bollinger lower band
// and sells when it is above the upper band, where the band is built from
// the population standard deviation of the trailing Period closes.
//
// Grounded on the teacher's internal/strategy/mean_reversion.go (struct
// shape, per-strategy logger convention) and
// original_source/services/strategies/mean_reversion.rs's bollinger()/
// decide() (population stddev, not sample; strict greater/less-than band
// comparison, no equality case).
type MeanReversion struct {
	row    domain.StrategyRow
	params domain.MeanReversionParams
	bus    *bus.Bus
	engine TradingEngine
	hist   *RollingCandles
	logger *slog.Logger
}

// NewMeanReversion builds a MeanReversion task from deps. Register it in
// the strategy Registry under domain.StrategyKindMeanReversion.
func NewMeanReversion(deps Deps) (Strategy, error) {
	var params domain.MeanReversionParams
	if len(deps.Row.Params) > 0 {
		if err := json.Unmarshal(deps.Row.Params, &params); err != nil {
			return nil, fmt.Errorf("mean_reversion: parsing params: %w", err)
		}
	}
	if params.Symbol == "" {
		params.Symbol = deps.Row.Symbol
	}
	if params.Period <= 0 {
		params.Period = defaultMeanReversionPeriod
	}
	if params.Sigma <= 0 {
		params.Sigma = defaultMeanReversionSigma
	}
	if params.Qty <= 0 {
		params.Qty = defaultMeanReversionQty
	}

	return &MeanReversion{
		row:    deps.Row,
		params: params,
		bus:    deps.Bus,
		engine: deps.Engine,
		hist:   NewRollingCandles(params.Period),
		logger: deps.Logger.With(slog.String("strategy", "mean_reversion"), slog.Int64("strategy_id", deps.Row.ID)),
	}, nil
}

// Run subscribes to the 4h candle topic and evaluates on every bar for this
// task's symbol until ctx is cancelled.
func (s *MeanReversion) Run(ctx context.Context) error {
	sub := s.bus.Candles4h.Subscribe(ctx)
	defer s.bus.Candles4h.Unsubscribe(sub)

	s.logger.InfoContext(ctx, "mean_reversion started", slog.String("symbol", s.params.Symbol))
	defer s.logger.InfoContext(ctx, "mean_reversion stopped")

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
			s.hist.Push(event.Candle)
			if err := s.evaluate(ctx, event.Candle); err != nil {
				s.logger.ErrorContext(ctx, "mean_reversion: evaluation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// evaluate is the decision core: Buy if price < lowerBand, Sell if price >
// upperBand, else Hold. No action is taken on equality with a band edge.
func (s *MeanReversion) evaluate(ctx context.Context, latest domain.Candle) error {
	mean, stddev, ok := s.hist.CloseMeanStdDev(s.params.Period)
	if !ok {
		return nil // not enough history yet
	}

	upper := mean + s.params.Sigma*stddev
	lower := mean - s.params.Sigma*stddev

	var side domain.OrderSide
	switch {
	case latest.Close < lower:
		side = domain.OrderSideBuy
	case latest.Close > upper:
		side = domain.OrderSideSell
	default:
		return nil
	}

	intent := domain.TradeIntent{
		Exchange: s.row.Exchange,
		UserID:   s.row.UserID,
		Symbol:   s.params.Symbol,
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Size:     decimal.NewFromFloat(s.params.Qty),
		Reason:   fmt.Sprintf("mean_reversion: close=%.4f mean=%.4f stddev=%.4f sigma=%.2f", latest.Close, mean, stddev, s.params.Sigma),
	}

	_, err := s.engine.PlaceOrder(ctx, intent)
	return err
}
