package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ActiveUserLister enumerates the users the Guardian loop should sweep each
// tick — in production, users with at least one enabled strategy row.
type ActiveUserLister interface {
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

// Notifier is the narrow seam the Guardian uses to alert an operator when a
// user's drawdown guard trips. Optional: a nil Notifier is a no-op, so
// wiring one in is purely additive. Implemented by *internal/notify.Notifier
// in production.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Guardian is the background drawdown sweep: every GuardianInterval it
// recomputes CheckDrawdown for each active user and writes the trip flag
// the Trading Engine consults synchronously. Modeled on
// original_source/services/risk.rs's spawn_guardian and the teacher's
// Executor.Run ticker loop.
type Guardian struct {
	guard    *Guard
	users    ActiveUserLister
	notifier Notifier
	logger   *slog.Logger
}

// NewGuardian returns a Guardian that sweeps users via lister. notifier may
// be nil.
func NewGuardian(guard *Guard, lister ActiveUserLister, notifier Notifier, logger *slog.Logger) *Guardian {
	return &Guardian{
		guard:    guard,
		users:    lister,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "risk_guardian")),
	}
}

// Run sweeps on GuardianInterval until ctx is done.
func (g *Guardian) Run(ctx context.Context) error {
	g.logger.InfoContext(ctx, "guardian started")
	defer g.logger.InfoContext(ctx, "guardian stopped")

	ticker := time.NewTicker(GuardianInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.sweep(ctx)
		}
	}
}

func (g *Guardian) sweep(ctx context.Context) {
	userIDs, err := g.users.ListActiveUserIDs(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "guardian: listing active users failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now()
	for _, userID := range userIDs {
		tripped, sum, err := g.guard.CheckDrawdown(ctx, userID, now)
		if err != nil {
			g.logger.ErrorContext(ctx, "guardian: drawdown check failed",
				slog.Int64("user_id", userID), slog.String("error", err.Error()))
			continue
		}
		wasTripped, err := g.guard.cache.IsTripped(ctx, userID)
		if err != nil {
			wasTripped = false
		}
		if err := g.guard.cache.SetTripped(ctx, userID, tripped); err != nil {
			g.logger.ErrorContext(ctx, "guardian: writing trip flag failed",
				slog.Int64("user_id", userID), slog.String("error", err.Error()))
			continue
		}
		if tripped {
			g.logger.WarnContext(ctx, "guardian: drawdown limit tripped",
				slog.Int64("user_id", userID),
				slog.Float64("rolling_pnl_usd", sum),
				slog.Float64("max_drawdown_pct", MaxDrawdownPct),
			)
			if g.notifier != nil && !wasTripped {
				title := "Drawdown guard tripped"
				message := fmt.Sprintf("user %d rolling pnl %.2f USD exceeds the %.1f%% drawdown limit; trading is paused",
					userID, sum, MaxDrawdownPct)
				if err := g.notifier.Notify(ctx, "drawdown_trip", title, message); err != nil {
					g.logger.ErrorContext(ctx, "guardian: notifying drawdown trip failed",
						slog.Int64("user_id", userID), slog.String("error", err.Error()))
				}
			}
		}
	}
}
