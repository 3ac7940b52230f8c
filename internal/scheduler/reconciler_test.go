package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkwiatkowski/tradebot/internal/domain"
	"github.com/mkwiatkowski/tradebot/internal/strategy"
)

type fakeStore struct {
	mu   sync.Mutex
	rows []domain.StrategyRow
}

func (f *fakeStore) ListEnabled(_ context.Context) ([]domain.StrategyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StrategyRow, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeStore) setRows(rows []domain.StrategyRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
}

type blockingTask struct{ started chan struct{} }

func (b *blockingTask) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func newTestReconciler(store *fakeStore, reg *strategy.Registry) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, reg, SharedDeps{}, time.Hour, logger)
}

func TestReconciler_ConvergesOnEnabledRow(t *testing.T) {
	store := &fakeStore{}
	reg := strategy.NewRegistry()
	started := make(chan struct{})
	reg.Register("fake", func(deps strategy.Deps) (strategy.Strategy, error) {
		return &blockingTask{started: started}, nil
	})

	r := newTestReconciler(store, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.setRows([]domain.StrategyRow{{ID: 1, Kind: "fake", Status: domain.StrategyStatusEnabled}})
	r.tick(ctx)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task was not started within the tick")
	}
	assert.Equal(t, 1, r.RunningCount())

	store.setRows(nil)
	r.tick(ctx)

	require.Eventually(t, func() bool { return r.RunningCount() == 0 }, time.Second, time.Millisecond)
}

func TestReconciler_AtMostOneTaskPerStrategyID(t *testing.T) {
	store := &fakeStore{}
	reg := strategy.NewRegistry()
	var buildCount int
	var mu sync.Mutex
	reg.Register("fake", func(deps strategy.Deps) (strategy.Strategy, error) {
		mu.Lock()
		buildCount++
		mu.Unlock()
		return &blockingTask{started: make(chan struct{})}, nil
	})

	r := newTestReconciler(store, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.setRows([]domain.StrategyRow{{ID: 1, Kind: "fake", Status: domain.StrategyStatusEnabled}})
	r.tick(ctx)
	r.tick(ctx)
	r.tick(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, buildCount)
}

func TestReconciler_UnknownKindIsSkippedNotRecorded(t *testing.T) {
	store := &fakeStore{}
	reg := strategy.NewRegistry()
	r := newTestReconciler(store, reg)
	ctx := context.Background()

	store.setRows([]domain.StrategyRow{{ID: 1, Kind: "nonexistent", Status: domain.StrategyStatusEnabled}})
	r.tick(ctx)

	assert.Equal(t, 0, r.RunningCount())
}
