package strategy

import (
	"math"
	"sort"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// hvnBucketCount is the number of equal-width price buckets the volume
// profile divides the lookback range into. spec.md describes the
// bucket-accumulate-until-value-area algorithm but not a bucket count; 50
// gives a reasonably fine profile without over-fragmenting a typical daily
// range.
const hvnBucketCount = 50

// demandZoneWidthPct is VCSR's fixed total zone width fraction (0.2% of the
// bucket midprice, i.e. 0.1% on each side, per spec.md §4.3.3 / Open
// Question (c)).
const demandZoneWidthPct = 0.002

// computeDemandZones buckets daily candles by price (using the typical
// price (H+L+C)/3, volume-weighted) into hvnBucketCount equal-width bins
// across the observed [low, high] range, sorts buckets by volume
// descending, and keeps buckets until their cumulative share of total
// volume reaches topValueAreaPct — each kept bucket becomes a demand zone
// of width demandZoneWidthPct around its midprice.
//
// Grounded on spec.md §4.3.3's "State" paragraph; original_source's
// vcsr.rs only declares the HVN config fields (hvn_lookback_days,
// hvn_top_value_area_pct) without an implementation, so the bucketing
// scheme itself is this repository's own, built the way a volume profile
// is conventionally computed.
func computeDemandZones(daily []domain.Candle, topValueAreaPct float64) []domain.DemandZone {
	if len(daily) == 0 || topValueAreaPct <= 0 {
		return nil
	}

	low, high := daily[0].Low, daily[0].High
	for _, c := range daily[1:] {
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}
	if high <= low {
		return nil
	}
	bucketWidth := (high - low) / float64(hvnBucketCount)
	if bucketWidth <= 0 {
		return nil
	}

	volumes := make([]float64, hvnBucketCount)
	var total float64
	for _, c := range daily {
		typical := (c.High + c.Low + c.Close) / 3
		idx := int((typical - low) / bucketWidth)
		if idx < 0 {
			idx = 0
		}
		if idx >= hvnBucketCount {
			idx = hvnBucketCount - 1
		}
		volumes[idx] += c.Volume
		total += c.Volume
	}
	if total <= 0 {
		return nil
	}

	type bucket struct {
		idx    int
		volume float64
	}
	buckets := make([]bucket, hvnBucketCount)
	for i, v := range volumes {
		buckets[i] = bucket{idx: i, volume: v}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].volume > buckets[j].volume })

	var zones []domain.DemandZone
	var accumulated float64
	for _, b := range buckets {
		if b.volume <= 0 {
			continue
		}
		accumulated += b.volume
		mid := low + bucketWidth*(float64(b.idx)+0.5)
		width := mid * demandZoneWidthPct
		zones = append(zones, domain.DemandZone{
			PriceLow:  mid - width/2,
			PriceHigh: mid + width/2,
			Mid:       mid,
		})
		if accumulated/total >= topValueAreaPct {
			break
		}
	}
	return zones
}

// intersectsZone reports whether [low, high] overlaps any demand zone.
func intersectsZone(low, high float64, zones []domain.DemandZone) (domain.DemandZone, bool) {
	for _, z := range zones {
		if z.PriceLow <= high && z.PriceHigh >= low {
			return z, true
		}
	}
	return domain.DemandZone{}, false
}

// inSession reports whether hour (UTC) falls in any of the allowed
// sessions: Asia 23:00-02:00, NY 12:00-14:00 (spec.md §4.3.3, rule 2).
func inSession(hour int, sessions []domain.VCSRSessionFilter) bool {
	for _, s := range sessions {
		switch s {
		case domain.VCSRSessionAsia:
			if hour >= 23 || hour < 2 {
				return true
			}
		case domain.VCSRSessionNY:
			if hour >= 12 && hour < 14 {
				return true
			}
		}
	}
	return false
}

// vwapMeanStd returns the volume-weighted average price and its
// volume-weighted standard deviation over the last window candles.
func vwapMeanStd(candles []domain.Candle, window int) (mean, stddev float64, ok bool) {
	if len(candles) < window || window <= 0 {
		return 0, 0, false
	}
	recent := candles[len(candles)-window:]

	var volSum, pvSum float64
	for _, c := range recent {
		volSum += c.Volume
		pvSum += c.Close * c.Volume
	}
	if volSum <= 0 {
		return 0, 0, false
	}
	mean = pvSum / volSum

	var variance float64
	for _, c := range recent {
		d := c.Close - mean
		variance += c.Volume * d * d
	}
	variance /= volSum
	return mean, math.Sqrt(variance), true
}

// volumeSpike reports whether the latest candle's volume qualifies as a
// spike against the preceding period candles by all three measures spec.md
// §4.3.3 rule 4 names: MA multiple, z-score, and percentile rank.
func volumeSpike(candles []domain.Candle, period int, maMult, zscore, percentile float64) bool {
	if len(candles) < period+1 {
		return false
	}
	window := candles[len(candles)-period-1 : len(candles)-1]
	latestVol := candles[len(candles)-1].Volume

	var sum float64
	for _, c := range window {
		sum += c.Volume
	}
	mean := sum / float64(len(window))
	if mean <= 0 {
		return false
	}
	if latestVol < maMult*mean {
		return false
	}

	var variance float64
	for _, c := range window {
		d := c.Volume - mean
		variance += d * d
	}
	variance /= float64(len(window))
	stddev := math.Sqrt(variance)
	if stddev > 0 {
		z := (latestVol - mean) / stddev
		if z < zscore {
			return false
		}
	}

	countLE := 0
	for _, c := range window {
		if c.Volume <= latestVol {
			countLE++
		}
	}
	rank := float64(countLE) / float64(len(window))
	return rank >= percentile
}

// isReversalCandle reports whether cur shows a hammer (lower wick more
// than twice the body), a bullish engulfing pattern against prev, or a
// delta-flip (prev aggressor volume negative, current positive) — spec.md
// §4.3.3 rule 5.
func isReversalCandle(prev, cur domain.Candle) bool {
	body := math.Abs(cur.Close - cur.Open)
	lowerWick := math.Min(cur.Open, cur.Close) - cur.Low
	if body > 0 && lowerWick > 2*body {
		return true
	}

	bullishEngulfing := cur.Close > cur.Open && prev.Close < prev.Open &&
		cur.Open <= prev.Close && cur.Close >= prev.Open
	if bullishEngulfing {
		return true
	}

	if prev.Delta != nil && cur.Delta != nil && *prev.Delta < 0 && *cur.Delta > 0 {
		return true
	}
	return false
}

// averageTrueRange returns the mean True Range over the last 14 candles
// (spec.md §4.3.3's sizing step).
func averageTrueRange(candles []domain.Candle) (float64, bool) {
	const n = 14
	if len(candles) < n+1 {
		return 0, false
	}
	window := candles[len(candles)-n-1:]

	var sum float64
	for i := 1; i < len(window); i++ {
		cur := window[i]
		prevClose := window[i-1].Close
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
		sum += tr
	}
	return sum / float64(n), true
}
