package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// trendPositionTTL is the TTL applied when a position is opened (spec.md
// §6's "TTL 30 days on set-true"): long enough that a crashed process
// restarting within a month still remembers it holds a position, short
// enough that a permanently-abandoned flag eventually self-heals.
const trendPositionTTL = 30 * 24 * time.Hour

func trendPosKey(userID int64) string {
	return fmt.Sprintf("trendpos:%d", userID)
}

// PositionFlagCache implements domain.PositionFlagCache: a JSON boolean
// position flag per user, per spec.md §6's trendpos:{user_id} entry.
type PositionFlagCache struct {
	rdb *redis.Client
}

// NewPositionFlagCache wraps client's underlying redis.Client.
func NewPositionFlagCache(client *Client) *PositionFlagCache {
	return &PositionFlagCache{rdb: client.Underlying()}
}

var _ domain.PositionFlagCache = (*PositionFlagCache)(nil)

// SetInPosition writes inPosition for userID. Per spec.md §6, setting true
// carries a 30-day TTL; setting false clears the key immediately rather
// than writing a TTL'd "false" value, so a stale flag can never read back
// as "in position" after the TTL lapses silently.
func (c *PositionFlagCache) SetInPosition(ctx context.Context, userID int64, inPosition bool) error {
	key := trendPosKey(userID)
	if !inPosition {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis: clear position flag: %w", err)
		}
		return nil
	}
	if err := c.rdb.Set(ctx, key, "true", trendPositionTTL).Err(); err != nil {
		return fmt.Errorf("redis: set position flag: %w", err)
	}
	return nil
}

// GetInPosition reports userID's current position flag. A missing key
// (never set, cleared, or expired) reports false.
func (c *PositionFlagCache) GetInPosition(ctx context.Context, userID int64) (bool, error) {
	val, err := c.rdb.Get(ctx, trendPosKey(userID)).Bool()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: get position flag: %w", err)
	}
	return val, nil
}
