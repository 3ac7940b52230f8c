// Package risk implements the Risk Guard: a synchronous slippage check
// that runs inline with every order, and an async rolling-drawdown check
// that a 60-second guardian loop maintains per user.
//
// Grounded on the teacher's internal/service/risk_service.go (PreTradeCheck
// structure, side-aware slippage-bps formula, slog warning pattern) and
// original_source/services/risk.rs (MAX_SLIPPAGE_BPS/MAX_DD_PCT/
// LOOKBACK_SECS constants, check_slippage/record_fill/check_drawdown/
// spawn_guardian).
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

const (
	// MaxSlippageBps is the hard synchronous slippage limit: an order whose
	// execution price is worse than the reference price by more than this
	// many basis points is rejected before it reaches the exchange.
	MaxSlippageBps = 10.0

	// MaxDrawdownPct is compared directly against the raw USD sum of a
	// user's rolling PnL window, not against a percentage of account
	// equity. This mirrors original_source/services/risk.rs verbatim; the
	// ambiguity (dollars measured against a constant named "Pct") is
	// preserved rather than resolved, per spec.
	MaxDrawdownPct = 20.0

	// LookbackWindow is the rolling drawdown window.
	LookbackWindow = 24 * time.Hour

	// cacheTTL gives the rolling PnL list a 10-minute grace period past the
	// lookback window so a guardian tick that runs slightly late still
	// sees the full window.
	cacheTTL = LookbackWindow + 10*time.Minute

	// GuardianInterval is the sweep period for the background drawdown
	// check.
	GuardianInterval = 60 * time.Second
)

// Guard is the constructed Risk Guard handle. Build one per process and
// thread it into the Trading Engine and the Guardian loop.
type Guard struct {
	cache  domain.RiskCache
	logger *slog.Logger
}

// New returns a Guard backed by cache.
func New(cache domain.RiskCache, logger *slog.Logger) *Guard {
	return &Guard{cache: cache, logger: logger}
}

// CheckSlippage rejects intent if its price is adverse to referencePrice by
// more than MaxSlippageBps. A buy is adverse when it pays more than
// reference; a sell is adverse when it receives less. This check never
// touches the cache and runs synchronously on every order.
func (g *Guard) CheckSlippage(ctx context.Context, intent domain.TradeIntent, referencePrice decimal.Decimal) error {
	if referencePrice.IsZero() {
		g.logger.WarnContext(ctx, "risk: reference price unavailable, skipping slippage check",
			slog.String("symbol", intent.Symbol))
		return nil
	}

	var delta decimal.Decimal
	switch intent.Side {
	case domain.OrderSideBuy:
		delta = intent.Price.Sub(referencePrice)
	case domain.OrderSideSell:
		delta = referencePrice.Sub(intent.Price)
	}

	bps := delta.Div(referencePrice).Mul(decimal.NewFromInt(10_000))
	bpsFloat, _ := bps.Float64()
	if bpsFloat > MaxSlippageBps {
		g.logger.WarnContext(ctx, "risk: slippage exceeds limit",
			slog.String("symbol", intent.Symbol),
			slog.Float64("slippage_bps", bpsFloat),
			slog.Float64("max_slippage_bps", MaxSlippageBps),
		)
		return fmt.Errorf("%w: slippage %.1f bps exceeds max %.1f bps", domain.ErrRiskViolation, bpsFloat, MaxSlippageBps)
	}
	return nil
}

// RecordFill appends a realized-PnL sample to userID's rolling window.
func (g *Guard) RecordFill(ctx context.Context, userID int64, pnlUSD float64, at time.Time) error {
	entry := domain.RollingPnLEntry{Timestamp: at, PnLUSD: pnlUSD}
	return g.cache.AppendPnL(ctx, userID, entry, cacheTTL)
}

// CheckDrawdown sums userID's PnL entries within LookbackWindow of now and
// reports whether the loss exceeds MaxDrawdownPct. Entries older than the
// window are ignored; malformed entries (zero timestamp) are skipped.
func (g *Guard) CheckDrawdown(ctx context.Context, userID int64, now time.Time) (tripped bool, sum float64, err error) {
	entries, err := g.cache.ListPnL(ctx, userID)
	if err != nil {
		return false, 0, fmt.Errorf("risk: listing rolling pnl: %w", err)
	}

	cutoff := now.Add(-LookbackWindow)
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			continue
		}
		if e.Timestamp.Before(cutoff) {
			continue
		}
		sum += e.PnLUSD
	}

	if sum < 0 && -sum > MaxDrawdownPct {
		tripped = true
	}
	return tripped, sum, nil
}

// IsTripped reports the last Guardian-computed trip state for userID,
// without recomputing it. The Trading Engine consults this before every
// order; only the Guardian loop writes it.
func (g *Guard) IsTripped(ctx context.Context, userID int64) (bool, error) {
	return g.cache.IsTripped(ctx, userID)
}
