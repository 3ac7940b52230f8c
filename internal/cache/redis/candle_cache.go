package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

func candleKey(symbol, interval string) string {
	return fmt.Sprintf("candles:%s:%s", symbol, interval)
}

// CandleCache implements domain.CandleCache: a JSON candle array per
// (symbol, interval), per spec.md §6's candles:{symbol}:{interval} entry,
// letting a restarted strategy warm its rolling window without waiting to
// rebuild history from the live feed.
type CandleCache struct {
	rdb *redis.Client
}

// NewCandleCache wraps client's underlying redis.Client.
func NewCandleCache(client *Client) *CandleCache {
	return &CandleCache{rdb: client.Underlying()}
}

var _ domain.CandleCache = (*CandleCache)(nil)

// SetCandles overwrites the cached candle array for (symbol, interval).
func (c *CandleCache) SetCandles(ctx context.Context, symbol, interval string, candles []domain.Candle, ttl time.Duration) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("redis: marshal candles: %w", err)
	}
	if err := c.rdb.Set(ctx, candleKey(symbol, interval), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set candles: %w", err)
	}
	return nil
}

// GetCandles returns the cached candle array for (symbol, interval). A
// missing key returns an empty slice, not an error.
func (c *CandleCache) GetCandles(ctx context.Context, symbol, interval string) ([]domain.Candle, error) {
	data, err := c.rdb.Get(ctx, candleKey(symbol, interval)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get candles: %w", err)
	}

	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("redis: unmarshal candles: %w", err)
	}
	return candles, nil
}
