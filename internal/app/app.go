// Package app wires and supervises the tradebot strategy execution plane:
// one long-running process running the Scheduler, the Risk Guardian, every
// configured market-data feed, and the shared private order-book
// connection side by side, sharing one lifetime and one shutdown signal.
//
// Grounded on the teacher's internal/app package (App owning cfg/logger/
// closers, Wire building a Dependencies struct, Run supervising
// long-running tasks) and SPEC_FULL.md's DOMAIN STACK wiring of
// golang.org/x/sync/errgroup for task supervision — generalized here from
// the teacher's mode-dispatch switch to a single mode, since spec.md §6
// describes one process running every component together rather than a
// menu of alternative run modes.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mkwiatkowski/tradebot/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires every dependency and supervises all long-running tasks
// together until ctx is cancelled or one of them returns a non-context
// error, at which point the rest are cancelled too. Returns the first
// task error, or ctx.Err() when the outer context ended the run.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application", slog.String("log_level", a.cfg.LogLevel))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return deps.Reconciler.Run(gctx) })
	group.Go(func() error { return deps.Guardian.Run(gctx) })
	group.Go(func() error { return deps.PriceFeed.Run(gctx) })
	group.Go(func() error { return deps.PrivateFeed.Run(gctx) })
	for _, kf := range deps.KlineFeeds {
		kf := kf
		group.Go(func() error { return kf.Run(gctx) })
	}

	err = group.Wait()
	if ctx.Err() != nil {
		// The outer context ended the run; every task returning ctx.Err()
		// is the expected shutdown path, not a failure.
		return ctx.Err()
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
