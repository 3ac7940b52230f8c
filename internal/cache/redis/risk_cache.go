package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// ddCacheTTL matches spec.md §6's dd:{user_id} entry: the 24h lookback
// window plus a 10-minute grace period for a late guardian tick.
const ddCacheTTL = 24*time.Hour + 10*time.Minute

const trippedTTL = 24 * time.Hour

func ddKey(userID int64) string {
	return fmt.Sprintf("dd:%d", userID)
}

func trippedKey(userID int64) string {
	return fmt.Sprintf("risk:tripped:%d", userID)
}

// RiskCache implements domain.RiskCache: a per-user rolling PnL list
// stored as a Redis list of "{unix_ts}|{pnl_8dp}" entries (spec.md §6),
// plus a per-user trip flag the guardian loop writes and the Trading
// Engine reads on every order.
type RiskCache struct {
	rdb *redis.Client
}

// NewRiskCache wraps client's underlying redis.Client as a domain.RiskCache.
func NewRiskCache(client *Client) *RiskCache {
	return &RiskCache{rdb: client.Underlying()}
}

var _ domain.RiskCache = (*RiskCache)(nil)

// AppendPnL pushes entry onto userID's rolling list and refreshes its TTL
// to ddCacheTTL, ignoring the ttl argument's precision in favor of the
// fixed window spec.md §6 documents — callers pass risk.LookbackWindow's
// derived cacheTTL, which matches.
func (c *RiskCache) AppendPnL(ctx context.Context, userID int64, entry domain.RollingPnLEntry, _ time.Duration) error {
	key := ddKey(userID)
	value := fmt.Sprintf("%d|%.8f", entry.Timestamp.Unix(), entry.PnLUSD)

	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, value)
	pipe.Expire(ctx, key, ddCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append pnl: %w", err)
	}
	return nil
}

// ListPnL returns userID's rolling PnL entries in insertion order. A
// missing key returns an empty slice, not an error.
func (c *RiskCache) ListPnL(ctx context.Context, userID int64) ([]domain.RollingPnLEntry, error) {
	raw, err := c.rdb.LRange(ctx, ddKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list pnl: %w", err)
	}

	entries := make([]domain.RollingPnLEntry, 0, len(raw))
	for _, line := range raw {
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		pnl, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		entries = append(entries, domain.RollingPnLEntry{
			Timestamp: time.Unix(ts, 0).UTC(),
			PnLUSD:    pnl,
		})
	}
	return entries, nil
}

// SetTripped records the guardian loop's last drawdown verdict for userID.
func (c *RiskCache) SetTripped(ctx context.Context, userID int64, tripped bool) error {
	if err := c.rdb.Set(ctx, trippedKey(userID), tripped, trippedTTL).Err(); err != nil {
		return fmt.Errorf("redis: set tripped: %w", err)
	}
	return nil
}

// IsTripped reads the last guardian verdict. An unset key (never swept, or
// expired) reports not tripped.
func (c *RiskCache) IsTripped(ctx context.Context, userID int64) (bool, error) {
	val, err := c.rdb.Get(ctx, trippedKey(userID)).Bool()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: get tripped: %w", err)
	}
	return val, nil
}
