package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

func copyKey(leaderUserID int64) string {
	return fmt.Sprintf("copy:%d", leaderUserID)
}

// FollowerCache implements domain.FollowerCache: a set of follower ids per
// leader, per spec.md §6's copy:{leader_id} entry, TTL 300s.
type FollowerCache struct {
	rdb *redis.Client
}

// NewFollowerCache wraps client's underlying redis.Client.
func NewFollowerCache(client *Client) *FollowerCache {
	return &FollowerCache{rdb: client.Underlying()}
}

var _ domain.FollowerCache = (*FollowerCache)(nil)

// emptyMarkerKey holds a presence marker for a leader cached with zero
// followers, so Get can distinguish "cached empty set" (trust it) from
// "never cached" (fall back to the store) without the set key itself
// existing (Redis sets with no members are not persisted).
func emptyMarkerKey(leaderUserID int64) string {
	return fmt.Sprintf("copy:%d:empty", leaderUserID)
}

// Get returns leaderUserID's cached follower ids. hit is false on a cache
// miss (key absent or expired), distinguishing "no followers cached yet"
// from "cached empty set".
func (c *FollowerCache) Get(ctx context.Context, leaderUserID int64) ([]int64, bool, error) {
	raw, err := c.rdb.SMembers(ctx, copyKey(leaderUserID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: get followers: %w", err)
	}
	if len(raw) == 0 {
		exists, err := c.rdb.Exists(ctx, emptyMarkerKey(leaderUserID)).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis: check empty followers marker: %w", err)
		}
		if exists == 0 {
			return nil, false, nil
		}
		return []int64{}, true, nil
	}

	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}

// Set replaces leaderUserID's cached follower set and applies ttl.
func (c *FollowerCache) Set(ctx context.Context, leaderUserID int64, followers []int64, ttl time.Duration) error {
	key := copyKey(leaderUserID)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key, emptyMarkerKey(leaderUserID))
	if len(followers) == 0 {
		pipe.Set(ctx, emptyMarkerKey(leaderUserID), 1, ttl)
	} else {
		members := make([]interface{}, len(followers))
		for i, id := range followers {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set followers: %w", err)
	}
	return nil
}

// Invalidate removes leaderUserID's cached follower set so the next Get
// misses and repopulates from the store.
func (c *FollowerCache) Invalidate(ctx context.Context, leaderUserID int64) error {
	if err := c.rdb.Del(ctx, copyKey(leaderUserID), emptyMarkerKey(leaderUserID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: invalidate followers: %w", err)
	}
	return nil
}
