package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// HotRangeCache is a read-through cache in front of a Store, keyed on the
// (symbol, timeframe, startMs, endMs) range actually requested. Grounded on
// the teacher's internal/market/redis_cache.go price cache: same
// get-or-miss-then-populate shape, retargeted from a single price point to a
// candle range payload.
type HotRangeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHotRangeCache wraps client with ttl; a nil client disables caching
// (every Get is a miss, every Set a no-op), matching the teacher's optional-
// Redis pattern.
func NewHotRangeCache(client *redis.Client, ttl time.Duration) *HotRangeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &HotRangeCache{client: client, ttl: ttl}
}

func (c *HotRangeCache) key(symbol string, tf candle.Timeframe, startMs, endMs int64) string {
	return fmt.Sprintf("backtester:candles:%s:%s:%d:%d", symbol, tf, startMs, endMs)
}

// Get returns the cached candle slice for the exact range, if present.
func (c *HotRangeCache) Get(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64) ([]candle.Candle, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Get(cacheCtx, c.key(symbol, tf, startMs, endMs)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("cache: redis get error, treating as miss")
		}
		return nil, false
	}

	var candles []candle.Candle
	if err := json.Unmarshal([]byte(raw), &candles); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cache: failed to unmarshal cached range")
		return nil, false
	}
	return candles, true
}

// Set stores candles for the exact range under the configured TTL. Failures
// are logged, never returned — a cache write failure must not abort the
// caller, which already has the candles (spec §7).
func (c *HotRangeCache) Set(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64, candles []candle.Candle) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(candles)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cache: failed to marshal range for redis")
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, c.key(symbol, tf, startMs, endMs), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cache: failed to populate redis hot-range cache")
	}
}

// Invalidate drops every cached range for symbol/tf, so that a range cached
// before a later fetch widened what's on disk is read from the store again.
// Provider does not call it.
func (c *HotRangeCache) Invalidate(ctx context.Context, symbol string, tf candle.Timeframe) {
	if c == nil || c.client == nil {
		return
	}

	pattern := fmt.Sprintf("backtester:candles:%s:%s:*", symbol, tf)
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	iter := c.client.Scan(cacheCtx, 0, pattern, 0).Iterator()
	for iter.Next(cacheCtx) {
		if err := c.client.Del(cacheCtx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("cache: failed to invalidate hot-range key")
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("cache: invalidate scan error")
	}
}
