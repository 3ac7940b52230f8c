// Package scheduler implements the Reconciler: a supervisor that every
// tick reads the persisted set of enabled strategy rows and converges the
// set of live strategy tasks toward it — spawning tasks for newly-enabled
// rows and aborting tasks whose row disappeared or was disabled.
//
// Grounded on original_source/services/scheduler.rs's reconcile() (the
// three-step fetch/spawn/reap tick), redesigned per spec.md §9's "avoid
// cyclic references" note: the task-handle table (the Rust original's
// process-global `static TASKS: DashMap<...>`) is a mutex-protected field
// owned exclusively by the Reconciler, not a package-level singleton, and
// each task receives only value-typed Deps plus its own ctx.CancelFunc —
// it never looks the Reconciler back up.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	"github.com/mkwiatkowski/tradebot/internal/domain"
	"github.com/mkwiatkowski/tradebot/internal/strategy"
)

// SharedDeps bundles the strategy-task collaborators that are the same
// for every row: the bus, trading engine, risk checker, position-flag
// cache and warm candle cache. Only the StrategyRow itself differs
// per-task; the Reconciler combines SharedDeps with each row to build a
// strategy.Deps.
type SharedDeps struct {
	Bus       *bus.Bus
	Engine    strategy.TradingEngine
	Risk      strategy.RiskChecker
	Positions domain.PositionFlagCache
	Candles   domain.CandleCache
}

// Reconciler is the scheduler. Build one per process with New and run it
// with Run until ctx is cancelled.
type Reconciler struct {
	store    domain.StrategyStore
	registry *strategy.Registry
	shared   SharedDeps
	logger   *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	handles map[int64]taskHandle
}

type taskHandle struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// New returns a ready-to-run Reconciler.
func New(store domain.StrategyStore, registry *strategy.Registry, shared SharedDeps, tickInterval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:        store,
		registry:     registry,
		shared:       shared,
		tickInterval: tickInterval,
		logger:       logger.With(slog.String("component", "scheduler")),
		handles:      make(map[int64]taskHandle),
	}
}

// Run ticks every tickInterval until ctx is cancelled, reconciling on each
// tick and on entry (so a restart converges immediately rather than
// waiting a full period). It aborts every live task before returning.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "scheduler started", slog.Duration("tick_interval", r.tickInterval))
	defer r.logger.InfoContext(ctx, "scheduler stopped")
	defer r.abortAll()

	r.tick(ctx)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick performs one fetch/spawn/reap cycle. A store read failure is
// logged and the tick yields — the next tick retries, per spec.md §4.1's
// failure semantics.
func (r *Reconciler) tick(ctx context.Context) {
	rows, err := r.store.ListEnabled(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "scheduler: listing enabled strategies failed", slog.String("error", err.Error()))
		return
	}

	enabled := make(map[int64]domain.StrategyRow, len(rows))
	for _, row := range rows {
		enabled[row.ID] = row
	}

	r.spawnMissing(ctx, enabled)
	r.reapOrphaned(enabled)
}

// spawnMissing starts a task for every enabled row not already present in
// the handle table. An unknown kind is logged and skipped — no handle is
// recorded, so the next tick retries harmlessly.
func (r *Reconciler) spawnMissing(ctx context.Context, enabled map[int64]domain.StrategyRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, row := range enabled {
		if _, running := r.handles[id]; running {
			continue
		}

		task, err := r.registry.Build(strategy.Deps{
			Row:       row,
			Bus:       r.shared.Bus,
			Engine:    r.shared.Engine,
			Risk:      r.shared.Risk,
			Positions: r.shared.Positions,
			Candles:   r.shared.Candles,
			Logger:    r.logger,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "scheduler: skipping strategy row",
				slog.Int64("strategy_id", id), slog.String("kind", string(row.Kind)), slog.String("error", err.Error()))
			continue
		}

		taskCtx, cancel := context.WithCancel(ctx)
		r.handles[id] = taskHandle{cancel: cancel, startedAt: time.Now()}
		r.spawn(taskCtx, id, task)
	}
}

// spawn runs task in the background, isolated so a panic in one task
// cannot bring down the reconciler or any other task (spec.md §4.1's
// isolation contract). The handle is removed on exit so a still-enabled
// row is respawned on the next tick.
func (r *Reconciler) spawn(ctx context.Context, id int64, task strategy.Strategy) {
	go func() {
		defer r.removeHandle(id)
		defer func() {
			if p := recover(); p != nil {
				r.logger.ErrorContext(ctx, "scheduler: strategy task panicked",
					slog.Int64("strategy_id", id), slog.Any("panic", p))
			}
		}()

		if err := task.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "scheduler: strategy task exited with error",
				slog.Int64("strategy_id", id), slog.String("error", err.Error()))
		}
	}()
}

func (r *Reconciler) removeHandle(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// reapOrphaned aborts and removes every handle whose strategy id is no
// longer in the enabled set. The handle is deleted here at once; abort is
// best-effort, and the task's goroutine exits when it next observes the
// cancellation.
func (r *Reconciler) reapOrphaned(enabled map[int64]domain.StrategyRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.handles {
		if _, stillEnabled := enabled[id]; stillEnabled {
			continue
		}
		h.cancel()
		delete(r.handles, id)
	}
}

func (r *Reconciler) abortAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.handles {
		h.cancel()
		delete(r.handles, id)
	}
}

// RunningCount returns the number of live task handles. Exposed for tests
// and health reporting.
func (r *Reconciler) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Handles returns a snapshot of the currently-tracked strategy ids — a
// copy, per spec.md §5's "concurrent reads permitted only via copy" rule
// for the handle table.
func (r *Reconciler) Handles() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}
