package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

func newTestMeanReversion(engine *fakeEngine) *MeanReversion {
	return &MeanReversion{
		row:    domain.StrategyRow{ID: 1, UserID: 1, Exchange: "blowfin", Symbol: "BTCUSDT"},
		params: domain.MeanReversionParams{Symbol: "BTCUSDT", Period: 20, Sigma: 2.0, Qty: 0.01},
		engine: engine,
		hist:   NewRollingCandles(20),
		logger: silentLogger(),
	}
}

func TestMeanReversion_BollingerBuy(t *testing.T) {
	engine := &fakeEngine{}
	mr := newTestMeanReversion(engine)

	for i := 0; i < 19; i++ {
		mr.hist.Push(domain.Candle{Close: 10.0})
	}
	latest := domain.Candle{Close: 5.0}
	mr.hist.Push(latest)

	require.NoError(t, mr.evaluate(context.Background(), latest))

	require.Len(t, engine.calls, 1)
	assert.Equal(t, domain.OrderSideBuy, engine.calls[0].Side)
}

func TestMeanReversion_BollingerSell(t *testing.T) {
	engine := &fakeEngine{}
	mr := newTestMeanReversion(engine)

	for i := 0; i < 19; i++ {
		mr.hist.Push(domain.Candle{Close: 10.0})
	}
	latest := domain.Candle{Close: 20.0}
	mr.hist.Push(latest)

	require.NoError(t, mr.evaluate(context.Background(), latest))

	require.Len(t, engine.calls, 1)
	assert.Equal(t, domain.OrderSideSell, engine.calls[0].Side)
}

func TestMeanReversion_HoldOnFlatSeries(t *testing.T) {
	engine := &fakeEngine{}
	mr := newTestMeanReversion(engine)

	var latest domain.Candle
	for i := 0; i < 20; i++ {
		latest = domain.Candle{Close: 10.0}
		mr.hist.Push(latest)
	}

	require.NoError(t, mr.evaluate(context.Background(), latest))

	assert.Empty(t, engine.calls)
}

func TestMeanReversion_TooFewCandlesNoop(t *testing.T) {
	engine := &fakeEngine{}
	mr := newTestMeanReversion(engine)

	var latest domain.Candle
	for i := 0; i < 10; i++ {
		latest = domain.Candle{Close: 10.0}
		mr.hist.Push(latest)
	}

	require.NoError(t, mr.evaluate(context.Background(), latest))

	assert.Empty(t, engine.calls)
}
