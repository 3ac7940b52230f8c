// Package copytrading implements the Copy Replicator: on a leader fill,
// fans the trade out to every active follower, gated per-follower by the
// Risk Guard's drawdown check.
//
// Grounded on spec.md §4.7 for the fan-out/gating/naive-sizing contract;
// original_source/services/copy_trading.rs declares only the CopyRelation
// persisted shape and the 300s follower-set TTL constant (its fan-out body
// was never written), so the replication logic itself follows the spec
// text directly, in the same read-through-cache/write-through-on-mutate
// idiom internal/credential and internal/risk already use for their own
// cached seams.
package copytrading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// followerSetTTL matches original_source's FOLLOWER_SET_TTL (300s) and
// spec.md §6's cache key space entry for copy:{leader_id}.
const followerSetTTL = 300 * time.Second

// TradingEngine is the narrow seam the Replicator uses to place each
// follower's replicated order. Implemented by *internal/trading.Engine.
type TradingEngine interface {
	PlaceOrder(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error)
}

// RiskChecker is the narrow seam the Replicator consults per follower
// before replicating. Implemented by *internal/risk.Guard.
type RiskChecker interface {
	CheckDrawdown(ctx context.Context, userID int64, now time.Time) (tripped bool, sum float64, err error)
}

// Replicator is the constructed Copy Replicator. Build one per process and
// call Replicate whenever the Trading Engine reports a leader fill.
type Replicator struct {
	cache  domain.FollowerCache
	store  domain.FollowerStore
	risk   RiskChecker
	engine TradingEngine
	logger *slog.Logger
}

// New returns a ready-to-use Replicator.
func New(cache domain.FollowerCache, store domain.FollowerStore, risk RiskChecker, engine TradingEngine, logger *slog.Logger) *Replicator {
	return &Replicator{
		cache:  cache,
		store:  store,
		risk:   risk,
		engine: engine,
		logger: logger.With(slog.String("component", "copytrading")),
	}
}

// Replicate fans fill out to every active follower of leaderUserID. Each
// follower is independently risk-gated; a per-follower failure is logged
// and does not interrupt the fan-out to the remaining followers.
func (r *Replicator) Replicate(ctx context.Context, leaderUserID int64, fill domain.TradeIntent) {
	followers, err := r.activeFollowers(ctx, leaderUserID)
	if err != nil {
		r.logger.ErrorContext(ctx, "copytrading: resolving active followers failed",
			slog.Int64("leader_user_id", leaderUserID), slog.String("error", err.Error()))
		return
	}

	for _, followerID := range followers {
		r.replicateOne(ctx, leaderUserID, followerID, fill)
	}
}

// activeFollowers resolves leaderUserID's follower set, reading through
// the cache and repopulating it from the store on a miss.
func (r *Replicator) activeFollowers(ctx context.Context, leaderUserID int64) ([]int64, error) {
	if ids, hit, err := r.cache.Get(ctx, leaderUserID); err != nil {
		r.logger.WarnContext(ctx, "copytrading: follower cache read failed, falling back to store",
			slog.Int64("leader_user_id", leaderUserID), slog.String("error", err.Error()))
	} else if hit {
		return ids, nil
	}

	ids, err := r.store.ListActiveFollowers(ctx, leaderUserID)
	if err != nil {
		return nil, fmt.Errorf("copytrading: listing active followers: %w", err)
	}
	if err := r.cache.Set(ctx, leaderUserID, ids, followerSetTTL); err != nil {
		r.logger.WarnContext(ctx, "copytrading: follower cache write failed",
			slog.Int64("leader_user_id", leaderUserID), slog.String("error", err.Error()))
	}
	return ids, nil
}

// replicateOne checks followerID's drawdown, and if the guard is not
// tripped, places an order identical to fill in exchange/symbol/side/
// order-type/price/size — the v1 naive 1-for-1 sizing policy spec.md
// §4.7 mandates (Open Question (b): the leader's absolute size is used
// for every follower, unscaled by account equity).
func (r *Replicator) replicateOne(ctx context.Context, leaderUserID, followerID int64, fill domain.TradeIntent) {
	tripped, _, err := r.risk.CheckDrawdown(ctx, followerID, time.Now())
	if err != nil {
		r.logger.ErrorContext(ctx, "copytrading: follower drawdown check failed, skipping",
			slog.Int64("follower_id", followerID), slog.String("error", err.Error()))
		return
	}
	if tripped {
		r.logger.WarnContext(ctx, "copytrading: follower drawdown tripped, skipping replication",
			slog.Int64("follower_id", followerID))
		return
	}

	intent := domain.TradeIntent{
		Exchange: fill.Exchange,
		UserID:   followerID,
		Symbol:   fill.Symbol,
		Side:     fill.Side,
		Type:     fill.Type,
		Price:    fill.Price,
		Size:     fill.Size,
		Reason:   fmt.Sprintf("copytrading: replicated from leader %d", leaderUserID),
	}

	if _, err := r.engine.PlaceOrder(ctx, intent); err != nil {
		r.logger.ErrorContext(ctx, "copytrading: replicated order failed",
			slog.Int64("follower_id", followerID), slog.String("error", err.Error()))
	}
}

// Follow persists a new copy-trading relationship and invalidates
// leaderUserID's cached follower set so the next fill rereads storage.
func (r *Replicator) Follow(ctx context.Context, leaderUserID, followerUserID int64) error {
	if err := r.store.Follow(ctx, leaderUserID, followerUserID); err != nil {
		return fmt.Errorf("copytrading: follow: %w", err)
	}
	return r.invalidate(ctx, leaderUserID)
}

// Unfollow ends a copy-trading relationship and invalidates leaderUserID's
// cached follower set.
func (r *Replicator) Unfollow(ctx context.Context, leaderUserID, followerUserID int64) error {
	if err := r.store.Unfollow(ctx, leaderUserID, followerUserID); err != nil {
		return fmt.Errorf("copytrading: unfollow: %w", err)
	}
	return r.invalidate(ctx, leaderUserID)
}

func (r *Replicator) invalidate(ctx context.Context, leaderUserID int64) error {
	if err := r.cache.Invalidate(ctx, leaderUserID); err != nil {
		return fmt.Errorf("copytrading: invalidating follower cache: %w", err)
	}
	return nil
}
