package copytrading

import (
	"context"
	"log/slog"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// ReplicatingEngine wraps a TradingEngine so that every fill it places is
// also offered to the Copy Replicator, satisfying spec.md §4.7's "on a
// leader fill" trigger without strategy tasks needing to know copy-trading
// exists. Any user can be a leader; the Replicator itself is the one that
// discovers whether they have followers, so wrapping every strategy-issued
// order here — win or lose, followed or not — is correct and cheap (a
// no-op cache lookup when there are none).
//
// Grounded on spec.md §4.7's trigger description; internal/trading.Engine
// and internal/strategy.TradingEngine both already expose just PlaceOrder,
// so this decorator only needs to implement that one method to be a
// drop-in substitute wherever a TradingEngine is consumed.
type ReplicatingEngine struct {
	engine     TradingEngine
	replicator *Replicator
	logger     *slog.Logger
}

// NewReplicatingEngine returns an engine that places orders via engine and
// replicates successful fills via replicator.
func NewReplicatingEngine(engine TradingEngine, replicator *Replicator, logger *slog.Logger) *ReplicatingEngine {
	return &ReplicatingEngine{
		engine:     engine,
		replicator: replicator,
		logger:     logger.With(slog.String("component", "copytrading_engine")),
	}
}

// PlaceOrder places intent and, if it fills, hands it to the Replicator
// before returning. Replication runs synchronously with respect to this
// call but never turns a replication failure into an error for the
// original caller — that failure is the Replicator's own per-follower
// logging concern.
func (e *ReplicatingEngine) PlaceOrder(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	result, err := e.engine.PlaceOrder(ctx, intent)
	if err != nil || !result.Success {
		return result, err
	}

	fill := domain.TradeIntent{
		Exchange: intent.Exchange,
		UserID:   intent.UserID,
		Symbol:   result.Symbol,
		Side:     result.Side,
		Type:     result.Type,
		Price:    result.Price,
		Size:     result.Size,
	}
	e.replicator.Replicate(ctx, intent.UserID, fill)

	return result, nil
}
