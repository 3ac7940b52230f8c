package strategy

import (
	"math"
	"sync"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// RollingCandles keeps the last `capacity` candles for a single symbol and
// exposes the statistical helpers the strategies need. Adapted from the
// teacher's PriceTracker (internal/strategy/price_tracker.go), replacing
// its time-window trim with a fixed candle-count cap since Bollinger/
// Donchian windows here are defined in bar counts, not wall-clock time.
type RollingCandles struct {
	mu       sync.RWMutex
	candles  []domain.Candle
	capacity int
}

// NewRollingCandles returns a buffer that retains at most capacity candles.
func NewRollingCandles(capacity int) *RollingCandles {
	return &RollingCandles{capacity: capacity}
}

// Push appends c, evicting the oldest candle if the buffer is at capacity.
func (r *RollingCandles) Push(c domain.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candles = append(r.candles, c)
	if len(r.candles) > r.capacity {
		r.candles = r.candles[len(r.candles)-r.capacity:]
	}
}

// Len returns the number of candles currently buffered.
func (r *RollingCandles) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.candles)
}

// Snapshot returns a copy of the buffered candles, oldest first.
func (r *RollingCandles) Snapshot() []domain.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Candle, len(r.candles))
	copy(out, r.candles)
	return out
}

// Last returns the most recently pushed candle and whether one exists.
func (r *RollingCandles) Last() (domain.Candle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.candles) == 0 {
		return domain.Candle{}, false
	}
	return r.candles[len(r.candles)-1], true
}

// CloseMeanStdDev returns the arithmetic mean and population standard
// deviation of close prices over the last n candles (n <= buffered count).
// ok is false when fewer than n candles are buffered.
func (r *RollingCandles) CloseMeanStdDev(n int) (mean, stddev float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.candles) < n {
		return 0, 0, false
	}
	window := r.candles[len(r.candles)-n:]

	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	mean = sum / float64(n)

	var variance float64
	for _, c := range window {
		d := c.Close - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance), true
}

// HighLow returns the highest high and lowest low over the last n candles,
// including the most recent one — the Donchian channel is evaluated against
// the current bar along with its n-1 predecessors (spec §4.3.2/§8 scenario
// 3: a breakout bar that itself sets the extreme still triggers entry). ok
// is false when fewer than n candles are buffered.
func (r *RollingCandles) HighLow(n int) (high, low float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.candles) < n {
		return 0, 0, false
	}
	window := r.candles[len(r.candles)-n:]

	high = window[0].High
	low = window[0].Low
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low, true
}

// DailyAggregator folds a stream of intraday candles into daily bars,
// finalizing the in-progress bar when a candle whose UTC hour is 0
// arrives. Grounded on original_source/services/strategies/
// trend_follow.rs's loop_core aggregation rule; shared by trend-follow
// (1h→daily) and VCSR (4h→daily, for its volume-profile lookback).
type DailyAggregator struct {
	current *domain.Candle
}

// Add folds c into the in-progress daily bar and returns the finished bar
// when c's timestamp rolls the day over (ok is true exactly then).
func (a *DailyAggregator) Add(c domain.Candle) (finished domain.Candle, ok bool) {
	if a.current == nil {
		bar := c
		a.current = &bar
	} else {
		if c.High > a.current.High {
			a.current.High = c.High
		}
		if c.Low < a.current.Low {
			a.current.Low = c.Low
		}
		a.current.Close = c.Close
		a.current.Volume += c.Volume
	}

	if c.Timestamp.UTC().Hour() != 0 {
		return domain.Candle{}, false
	}
	finished = *a.current
	a.current = nil
	return finished, true
}

// SMA returns the simple moving average of close prices over the last n
// candles. ok is false when fewer than n candles are buffered.
func (r *RollingCandles) SMA(n int) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.candles) < n {
		return 0, false
	}
	window := r.candles[len(r.candles)-n:]
	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	return sum / float64(n), true
}
