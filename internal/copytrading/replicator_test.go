package copytrading

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

type fakeFollowerCache struct {
	mu          sync.Mutex
	ids         map[int64][]int64
	hits        int
	miss        int
	invalidated []int64
}

func (f *fakeFollowerCache) Get(_ context.Context, leaderUserID int64) ([]int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.ids[leaderUserID]
	if ok {
		f.hits++
	} else {
		f.miss++
	}
	return ids, ok, nil
}

func (f *fakeFollowerCache) Set(_ context.Context, leaderUserID int64, followers []int64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = make(map[int64][]int64)
	}
	f.ids[leaderUserID] = followers
	return nil
}

func (f *fakeFollowerCache) Invalidate(_ context.Context, leaderUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, leaderUserID)
	f.invalidated = append(f.invalidated, leaderUserID)
	return nil
}

type fakeFollowerStore struct {
	mu        sync.Mutex
	followers map[int64][]int64
}

func (f *fakeFollowerStore) ListActiveFollowers(_ context.Context, leaderUserID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.followers[leaderUserID], nil
}

func (f *fakeFollowerStore) Follow(_ context.Context, leaderUserID, followerUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.followers == nil {
		f.followers = make(map[int64][]int64)
	}
	f.followers[leaderUserID] = append(f.followers[leaderUserID], followerUserID)
	return nil
}

func (f *fakeFollowerStore) Unfollow(_ context.Context, leaderUserID, followerUserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.followers[leaderUserID][:0]
	for _, id := range f.followers[leaderUserID] {
		if id != followerUserID {
			kept = append(kept, id)
		}
	}
	f.followers[leaderUserID] = kept
	return nil
}

// fakeDrawdownChecker trips for every user id listed in tripped.
type fakeDrawdownChecker struct {
	tripped map[int64]bool
}

func (f *fakeDrawdownChecker) CheckDrawdown(_ context.Context, userID int64, _ time.Time) (bool, float64, error) {
	return f.tripped[userID], 0, nil
}

type fakeReplicatorEngine struct {
	mu    sync.Mutex
	calls []domain.TradeIntent
}

func (f *fakeReplicatorEngine) PlaceOrder(_ context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, intent)
	return domain.OrderResult{Success: true, Symbol: intent.Symbol, Side: intent.Side}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestReplicator_OneFollowerDrawdownTrippedIsSkipped mirrors spec.md §8
// scenario 7: a leader with three followers where one breaches drawdown
// produces two follower orders and one skip.
func TestReplicator_OneFollowerDrawdownTrippedIsSkipped(t *testing.T) {
	cache := &fakeFollowerCache{}
	store := &fakeFollowerStore{followers: map[int64][]int64{100: {1, 2, 3}}}
	risk := &fakeDrawdownChecker{tripped: map[int64]bool{2: true}}
	engine := &fakeReplicatorEngine{}

	r := New(cache, store, risk, engine, discardLogger())

	fill := domain.TradeIntent{
		Exchange: "blowfin",
		UserID:   100,
		Symbol:   "BTCUSDT",
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeMarket,
		Size:     decimal.NewFromInt(1),
	}
	r.Replicate(context.Background(), 100, fill)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.calls, 2)
	var followerIDs []int64
	for _, c := range engine.calls {
		followerIDs = append(followerIDs, c.UserID)
		assert.Equal(t, fill.Symbol, c.Symbol)
		assert.Equal(t, fill.Side, c.Side)
		assert.True(t, c.Size.Equal(fill.Size))
	}
	assert.ElementsMatch(t, []int64{1, 3}, followerIDs)
}

func TestReplicator_CacheMissFallsBackToStoreAndWritesThrough(t *testing.T) {
	cache := &fakeFollowerCache{}
	store := &fakeFollowerStore{followers: map[int64][]int64{100: {1}}}
	risk := &fakeDrawdownChecker{}
	engine := &fakeReplicatorEngine{}

	r := New(cache, store, risk, engine, discardLogger())
	r.Replicate(context.Background(), 100, domain.TradeIntent{Size: decimal.NewFromInt(1)})

	assert.Equal(t, 1, cache.miss)
	ids, hit, err := cache.Get(context.Background(), 100)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []int64{1}, ids)
}

func TestReplicator_CacheHitSkipsStore(t *testing.T) {
	cache := &fakeFollowerCache{ids: map[int64][]int64{100: {1}}}
	store := &fakeFollowerStore{} // empty: would produce zero followers if consulted
	risk := &fakeDrawdownChecker{}
	engine := &fakeReplicatorEngine{}

	r := New(cache, store, risk, engine, discardLogger())
	r.Replicate(context.Background(), 100, domain.TradeIntent{Size: decimal.NewFromInt(1)})

	require.Len(t, engine.calls, 1)
	assert.Equal(t, int64(1), engine.calls[0].UserID)
}

func TestReplicator_FollowInvalidatesCache(t *testing.T) {
	cache := &fakeFollowerCache{ids: map[int64][]int64{100: {1}}}
	store := &fakeFollowerStore{followers: map[int64][]int64{}}
	r := New(cache, store, &fakeDrawdownChecker{}, &fakeReplicatorEngine{}, discardLogger())

	require.NoError(t, r.Follow(context.Background(), 100, 2))
	assert.Contains(t, cache.invalidated, int64(100))
	assert.Contains(t, store.followers[100], int64(2))
}

func TestReplicator_NoFollowersIsNoop(t *testing.T) {
	cache := &fakeFollowerCache{}
	store := &fakeFollowerStore{}
	engine := &fakeReplicatorEngine{}
	r := New(cache, store, &fakeDrawdownChecker{}, engine, discardLogger())

	r.Replicate(context.Background(), 100, domain.TradeIntent{Size: decimal.NewFromInt(1)})
	assert.Empty(t, engine.calls)
}
