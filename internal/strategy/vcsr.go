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
	defaultVCSRVolMAPeriod   = 20
	defaultVCSRVolMAMult     = 2.5
	defaultVCSRVolZScore     = 2.0
	defaultVCSRVolPercentile = 0.95

	defaultVCSRHVNLookbackDays    = 180
	defaultVCSRHVNTopValueAreaPct = 0.70

	defaultVCSRATRMult      = 1.25
	defaultVCSRRiskPerTrade = 0.01
	defaultVCSRRRRatio      = 2.0
	defaultVCSREquity       = 10_000.0

	defaultVCSRVWAPWindow = 390

	// vcsrHistCapacity must cover the longest lookback any gate reads: the
	// VWAP window is typically the largest.
	vcsrHistCapacity = 512
)

// VCSR (Volume-Climax Support Reversal) buys into demand zones on a
// volume-climax reversal bar, gated by an optional session filter, VWAP
// band, and order-book imbalance check, sizing the entry off the Average
// True Range.
//
// Grounded on spec.md §4.3.3 (the six-gate signal contract and the
// ATR-based sizing formula are specified there in full); original_source's
// vcsr.rs supplies the VcsrConfig field names and defaults used for
// domain.VCSRParams but stops at declaring traits — generate_signal's body
// is this repository's own, built directly from the spec text since no
// reference implementation exists to ground it on.
type VCSR struct {
	row    domain.StrategyRow
	params domain.VCSRParams
	bus    *bus.Bus
	engine TradingEngine
	logger *slog.Logger

	hist  *RollingCandles
	daily []domain.Candle
	zones []domain.DemandZone

	dailyAgg DailyAggregator

	lastBook domain.OrderBookSnapshot
	haveBook bool
}

// NewVCSR builds a VCSR task from deps. Register it in the strategy
// Registry under domain.StrategyKindVCSR.
func NewVCSR(deps Deps) (Strategy, error) {
	var params domain.VCSRParams
	if len(deps.Row.Params) > 0 {
		if err := json.Unmarshal(deps.Row.Params, &params); err != nil {
			return nil, fmt.Errorf("vcsr: parsing params: %w", err)
		}
	}
	if params.Symbol == "" {
		params.Symbol = deps.Row.Symbol
	}
	if params.VolMAPeriod <= 0 {
		params.VolMAPeriod = defaultVCSRVolMAPeriod
	}
	if params.VolMAMult <= 0 {
		params.VolMAMult = defaultVCSRVolMAMult
	}
	if params.VolZScore <= 0 {
		params.VolZScore = defaultVCSRVolZScore
	}
	if params.VolPercentile <= 0 {
		params.VolPercentile = defaultVCSRVolPercentile
	}
	if params.HVNLookbackDays <= 0 {
		params.HVNLookbackDays = defaultVCSRHVNLookbackDays
	}
	if params.HVNTopValueAreaPct <= 0 {
		params.HVNTopValueAreaPct = defaultVCSRHVNTopValueAreaPct
	}
	if params.ATRMult <= 0 {
		params.ATRMult = defaultVCSRATRMult
	}
	if params.RiskPerTrade <= 0 {
		params.RiskPerTrade = defaultVCSRRiskPerTrade
	}
	if params.RRRatio <= 0 {
		params.RRRatio = defaultVCSRRRRatio
	}
	if params.Equity <= 0 {
		params.Equity = defaultVCSREquity
	}
	if params.VWAPWindow <= 0 {
		params.VWAPWindow = defaultVCSRVWAPWindow
	}
	return &VCSR{
		row:    deps.Row,
		params: params,
		bus:    deps.Bus,
		engine: deps.Engine,
		hist:   NewRollingCandles(vcsrHistCapacity),
		daily:  make([]domain.Candle, 0, params.HVNLookbackDays),
		logger: deps.Logger.With(slog.String("strategy", "vcsr"), slog.Int64("strategy_id", deps.Row.ID)),
	}, nil
}

// Run subscribes to the 4h candle topic (its trading timeframe and its
// volume-profile source, via daily aggregation) and the order book topic
// (for the optional book-imbalance gate) until ctx is cancelled.
func (s *VCSR) Run(ctx context.Context) error {
	candleSub := s.bus.Candles4h.Subscribe(ctx)
	defer s.bus.Candles4h.Unsubscribe(candleSub)
	bookSub := s.bus.OrderBook.Subscribe(ctx)
	defer s.bus.OrderBook.Unsubscribe(bookSub)

	s.logger.InfoContext(ctx, "vcsr started", slog.String("symbol", s.params.Symbol))
	defer s.logger.InfoContext(ctx, "vcsr stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-bookSub.C():
			if !ok {
				return nil
			}
			if event.Snapshot.Symbol == s.params.Symbol {
				s.lastBook = event.Snapshot
				s.haveBook = true
			}
		case event, ok := <-candleSub.C():
			if !ok {
				return nil
			}
			if event.Symbol != s.params.Symbol {
				continue
			}
			s.hist.Push(event.Candle)

			if finished, rolled := s.dailyAgg.Add(event.Candle); rolled {
				s.daily = append(s.daily, finished)
				if len(s.daily) > s.params.HVNLookbackDays {
					s.daily = s.daily[len(s.daily)-s.params.HVNLookbackDays:]
				}
				s.zones = computeDemandZones(s.daily, s.params.HVNTopValueAreaPct)
			}

			if err := s.evaluate(ctx); err != nil {
				s.logger.ErrorContext(ctx, "vcsr: evaluation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// evaluate applies the six gates of spec.md §4.3.3 in order, short-
// circuiting on the first gate that fails; a failed gate is not logged.
func (s *VCSR) evaluate(ctx context.Context) error {
	snapshot := s.hist.Snapshot()
	if len(snapshot) < 2 {
		return nil
	}
	latest := snapshot[len(snapshot)-1]
	prev := snapshot[len(snapshot)-2]

	zone, hit := intersectsZone(latest.Low, latest.High, s.zones)
	if !hit {
		return nil
	}

	if len(s.params.SessionFilter) > 0 && !inSession(latest.Timestamp.UTC().Hour(), s.params.SessionFilter) {
		return nil
	}

	if s.params.VWAPSigma != nil {
		mean, stddev, ok := vwapMeanStd(snapshot, s.params.VWAPWindow)
		if !ok || !(latest.Close < mean-(*s.params.VWAPSigma)*stddev) {
			return nil
		}
	}

	if !volumeSpike(snapshot, s.params.VolMAPeriod, s.params.VolMAMult, s.params.VolZScore, s.params.VolPercentile) {
		return nil
	}

	if !isReversalCandle(prev, latest) {
		return nil
	}

	if s.params.OBBidAskRatio != nil {
		if !s.haveBook || s.lastBook.AskDepth <= 0 || s.lastBook.BidDepth/s.lastBook.AskDepth < *s.params.OBBidAskRatio {
			return nil
		}
	}

	atr, ok := averageTrueRange(snapshot)
	if !ok {
		return nil
	}

	zoneWidth := zone.PriceHigh - zone.PriceLow
	stop := latest.Close - s.params.ATRMult*atr
	if zoneStop := zone.Mid - zoneWidth; zoneStop < stop {
		stop = zoneStop
	}
	risk := latest.Close - stop
	if risk <= 0 {
		return nil
	}
	size := s.params.Equity * s.params.RiskPerTrade / risk
	target := latest.Close + s.params.RRRatio*risk

	intent := domain.TradeIntent{
		Exchange: s.row.Exchange,
		UserID:   s.row.UserID,
		Symbol:   s.params.Symbol,
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeMarket,
		Size:     decimal.NewFromFloat(size),
		Reason:   fmt.Sprintf("vcsr: entry=%.4f stop=%.4f target=%.4f zone_mid=%.4f atr=%.4f", latest.Close, stop, target, zone.Mid, atr),
	}

	_, err := s.engine.PlaceOrder(ctx, intent)
	return err
}
