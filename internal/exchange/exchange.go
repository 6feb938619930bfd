// Package exchange fetches historical OHLCV candles from a live exchange
// (spec §6). It replaces the teacher's live order-execution client with a
// read-only Kline fetcher: same client-setup, retry, and circuit-breaker
// idioms (internal/exchange/binance.go, internal/risk/circuit_breaker.go in
// the teacher), new domain.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// ErrRateLimited names an upstream rate-limit condition (HTTP 429 or an
// exchange-specific code). BinanceReader does not return it; its errors wrap
// the underlying client error instead.
var ErrRateLimited = errors.New("exchange: rate limited")

// BatchCallback receives one page of fetched candles during a historical
// fetch, before it has been persisted to cache (spec §4.7 step "stream
// candles into the cache as pages arrive").
type BatchCallback func(batch []candle.Candle)

// ProgressCallback reports fetch progress after each page of a historical
// range fetch: fetchedThrough is the timestamp of the page's last candle and
// total is the cumulative count of in-range candles this fetch has delivered.
type ProgressCallback func(fetchedThrough int64, total int)

// Reader is the read-only exchange surface the cached data provider needs:
// a single page fetch and a paginated historical range fetch.
type Reader interface {
	// FetchOHLCV returns up to limit candles starting at or after sinceMs on
	// the given timeframe. limit is clamped to the exchange's page size
	// (spec §4.7: batches of up to 200).
	FetchOHLCV(ctx context.Context, symbol string, tf candle.Timeframe, sinceMs int64, limit int) ([]candle.Candle, error)

	// FetchHistoricalOHLCV pages through [startMs,endMs] via FetchOHLCV,
	// waiting at least the reader's configured pacing between pages (spec
	// §4.7: "wait >=100ms between requests"), invoking onBatch per page and
	// onProgress after each page.
	FetchHistoricalOHLCV(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64, onBatch BatchCallback, onProgress ProgressCallback) error
}

// Config holds the settings a Reader implementation needs: pacing, page
// size, and client timeout (spec §5: "exchange client, 30s default timeout").
type Config struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	Timeout   time.Duration
	PageSize  int
	Pacing    time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c Config) pageSize() int {
	if c.PageSize <= 0 || c.PageSize > 200 {
		return 200
	}
	return c.PageSize
}

func (c Config) pacing() time.Duration {
	if c.Pacing <= 0 {
		return 100 * time.Millisecond
	}
	return c.Pacing
}
