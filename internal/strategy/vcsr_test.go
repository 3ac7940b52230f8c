package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// vcsrPassingSnapshot builds 15 4h candles where every VCSR gate passes:
// the latest bar is a hammer sitting inside a preset demand zone, its
// volume is a 2.5x spike over a flat-volume lookback, and the ATR-based
// stop leaves positive risk.
func vcsrPassingSnapshot() []domain.Candle {
	out := make([]domain.Candle, 0, 15)
	for i := 0; i < 14; i++ {
		out = append(out, domain.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10})
	}
	out = append(out, domain.Candle{Open: 100, High: 100.5, Low: 97, Close: 100.3, Volume: 25})
	return out
}

func newTestVCSR(engine *fakeEngine) *VCSR {
	return &VCSR{
		row:    domain.StrategyRow{ID: 1, UserID: 1, Exchange: "blowfin", Symbol: "BTCUSDT"},
		params: domain.VCSRParams{
			Symbol:             "BTCUSDT",
			VolMAPeriod:        14,
			VolMAMult:          2.0,
			VolZScore:          2.0,
			VolPercentile:      0.95,
			HVNTopValueAreaPct: 0.70,
			ATRMult:            1.0,
			RiskPerTrade:       0.01,
			RRRatio:            2.0,
			Equity:             10_000,
		},
		engine: engine,
		hist:   NewRollingCandles(vcsrHistCapacity),
		zones:  []domain.DemandZone{{PriceLow: 99.8, PriceHigh: 100.2, Mid: 100}},
		logger: silentLogger(),
	}
}

func TestVCSR_AllGatesPassEmitsBuy(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	for _, c := range vcsrPassingSnapshot() {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))

	require.Len(t, engine.calls, 1)
	assert.Equal(t, domain.OrderSideBuy, engine.calls[0].Side)
	assert.True(t, engine.calls[0].Size.IsPositive())
}

func TestVCSR_NoZoneIntersectionBlocksSignal(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	v.zones = []domain.DemandZone{{PriceLow: 500, PriceHigh: 510, Mid: 505}}
	for _, c := range vcsrPassingSnapshot() {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	assert.Empty(t, engine.calls)
}

func TestVCSR_SessionFilterMismatchBlocksSignal(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	v.params.SessionFilter = []domain.VCSRSessionFilter{domain.VCSRSessionNY}
	// Candles carry the zero time.Time by default (UTC hour 0), which the
	// NY session filter (12:00-14:00) rejects.
	for _, c := range vcsrPassingSnapshot() {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	assert.Empty(t, engine.calls)
}

func TestVCSR_VWAPGateBlocksSignalWhenPriceNotBelowBand(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	sigma := 2.0
	v.params.VWAPSigma = &sigma
	v.params.VWAPWindow = 5
	for _, c := range vcsrPassingSnapshot() {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	assert.Empty(t, engine.calls)
}

func TestVCSR_VolumeSpikeGateBlocksSignalWhenVolumeFlat(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	candles := vcsrPassingSnapshot()
	candles[len(candles)-1].Volume = 10
	for _, c := range candles {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	assert.Empty(t, engine.calls)
}

func TestVCSR_ReversalGateBlocksSignalWithoutHammerOrEngulfingOrDeltaFlip(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	candles := vcsrPassingSnapshot()
	// Replace the hammer with a plain bearish bar: no lower-wick dominance,
	// no engulfing, no delta data.
	candles[len(candles)-1] = domain.Candle{Open: 100.3, High: 100.5, Low: 100, Close: 100.1, Volume: 25}
	for _, c := range candles {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	assert.Empty(t, engine.calls)
}

func TestVCSR_BookImbalanceGateBlocksSignalWithoutSufficientBidDepth(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	ratio := 1.5
	v.params.OBBidAskRatio = &ratio
	v.haveBook = true
	v.lastBook = domain.OrderBookSnapshot{BidDepth: 10, AskDepth: 100}
	for _, c := range vcsrPassingSnapshot() {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	assert.Empty(t, engine.calls)
}

func TestVCSR_BookImbalanceGatePassesWithSufficientBidDepth(t *testing.T) {
	engine := &fakeEngine{}
	v := newTestVCSR(engine)
	ratio := 1.5
	v.params.OBBidAskRatio = &ratio
	v.haveBook = true
	v.lastBook = domain.OrderBookSnapshot{BidDepth: 200, AskDepth: 100}
	for _, c := range vcsrPassingSnapshot() {
		v.hist.Push(c)
	}

	require.NoError(t, v.evaluate(context.Background()))
	require.Len(t, engine.calls, 1)
}

func TestComputeDemandZones_AccumulatesUntilValueArea(t *testing.T) {
	daily := []domain.Candle{
		{High: 101, Low: 99, Close: 100, Volume: 1000},
		{High: 111, Low: 109, Close: 110, Volume: 10},
		{High: 121, Low: 119, Close: 120, Volume: 10},
	}
	zones := computeDemandZones(daily, 0.5)
	require.NotEmpty(t, zones)
	assert.InDelta(t, 100, zones[0].Mid, 2)
}

func TestInSession(t *testing.T) {
	asia := []domain.VCSRSessionFilter{domain.VCSRSessionAsia}
	assert.True(t, inSession(23, asia))
	assert.True(t, inSession(0, asia))
	assert.True(t, inSession(1, asia))
	assert.False(t, inSession(12, asia))

	ny := []domain.VCSRSessionFilter{domain.VCSRSessionNY}
	assert.True(t, inSession(12, ny))
	assert.True(t, inSession(13, ny))
	assert.False(t, inSession(14, ny))
}
