// Package cache is the persistent candle cache and the cached data provider
// that sits in front of the exchange (spec §4.7, §6). Grounded on the
// teacher's internal/db/db.go connection-pool/circuit-breaker wrapper and
// internal/market/redis_cache.go read-through cache, retargeted from price
// quotes to OHLCV candle ranges.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCacheUnavailable is returned by Store methods when the underlying
// connection pool cannot serve a request (spec §7 cache_unavailable: "fall
// back to direct exchange fetch; annotate stats").
var ErrCacheUnavailable = fmt.Errorf("cache: unavailable")

// Metadata is the per-(symbol,timeframe) bookkeeping record from spec §6.
type Metadata struct {
	Symbol         string
	Timeframe      candle.Timeframe
	FirstTimestamp int64
	LastTimestamp  int64
	CandleCount    int64
	UpdatedAt      time.Time
}

// Store is the abstract persistent candle cache (spec §4.7): an ordered set
// keyed by (symbol, timeframe, timestamp), queryable by range, with bulk
// upsert and metadata tracking.
type Store interface {
	// Range returns the cached candles for symbol/tf within [startMs,endMs],
	// sorted ascending and de-duplicated by timestamp.
	Range(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64) ([]candle.Candle, error)

	// Upsert inserts or replaces candles for symbol/tf, then updates the
	// metadata record's first/last timestamp and count. Idempotent: upserting
	// the same candle twice leaves the store unchanged (spec §5 "concurrent
	// writers for the same key are idempotent").
	Upsert(ctx context.Context, symbol string, tf candle.Timeframe, candles []candle.Candle) error

	// Metadata returns the bookkeeping record for symbol/tf, or
	// (Metadata{}, false) if nothing has ever been cached for that key.
	Metadata(ctx context.Context, symbol string, tf candle.Timeframe) (Metadata, bool, error)

	// DeleteMany removes cached candles and metadata matching the given
	// partial filter (spec §6 "deletion operations accept partial
	// (symbol?, timeframe?) filters"). An empty filter deletes everything.
	DeleteMany(ctx context.Context, symbol, tf string) error

	// Close releases the store's resources.
	Close()
}

// PostgresStore is the pgx/v5-backed Store implementation, matching spec
// §6's candles/candle_metadata schema.
type PostgresStore struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
}

// NewPostgresStore opens a connection pool against dsn and ensures the
// candles/candle_metadata tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cache: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	s := &PostgresStore{
		pool: pool,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "cache-postgres",
			MaxRequests: 5,
			Interval:    10 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("cache: circuit breaker state change")
			},
		}),
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an already-open pool, used by tests against
// a disposable database.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "cache-postgres-test",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return false
			},
		}),
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	timestamp BIGINT NOT NULL,
	open DOUBLE PRECISION NOT NULL,
	high DOUBLE PRECISION NOT NULL,
	low DOUBLE PRECISION NOT NULL,
	close DOUBLE PRECISION NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, timeframe, timestamp)
);

CREATE TABLE IF NOT EXISTS candle_metadata (
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	first_timestamp BIGINT NOT NULL,
	last_timestamp BIGINT NOT NULL,
	candle_count BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, timeframe)
);
`
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("cache: ensure schema: %w", err)
	}
	return nil
}

// Range returns cached candles in [startMs,endMs], sorted ascending.
func (s *PostgresStore) Range(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64) ([]candle.Candle, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT timestamp, open, high, low, close, volume
			FROM candles
			WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
			ORDER BY timestamp ASC
		`, symbol, string(tf), startMs, endMs)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []candle.Candle
		for rows.Next() {
			var c candle.Candle
			if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, ErrCacheUnavailable
		}
		return nil, fmt.Errorf("cache: range query: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.([]candle.Candle), nil
}

// Upsert persists candles and refreshes the metadata record in one
// transaction, keyed by (symbol,timeframe,timestamp) so repeat upserts of
// the same candle are no-ops.
func (s *PostgresStore) Upsert(ctx context.Context, symbol string, tf candle.Timeframe, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback(ctx)

		var batch pgx.Batch
		for _, c := range candles {
			batch.Queue(`
				INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
					open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
					close = EXCLUDED.close, volume = EXCLUDED.volume
			`, symbol, string(tf), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
		}

		br := tx.SendBatch(ctx, &batch)
		for range candles {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return nil, err
			}
		}
		if err := br.Close(); err != nil {
			return nil, err
		}

		first, last := candles[0].Timestamp, candles[0].Timestamp
		for _, c := range candles {
			if c.Timestamp < first {
				first = c.Timestamp
			}
			if c.Timestamp > last {
				last = c.Timestamp
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO candle_metadata (symbol, timeframe, first_timestamp, last_timestamp, candle_count, updated_at)
			VALUES ($1, $2, $3, $4,
				(SELECT COUNT(*) FROM candles WHERE symbol = $1 AND timeframe = $2), now())
			ON CONFLICT (symbol, timeframe) DO UPDATE SET
				first_timestamp = LEAST(candle_metadata.first_timestamp, EXCLUDED.first_timestamp),
				last_timestamp = GREATEST(candle_metadata.last_timestamp, EXCLUDED.last_timestamp),
				candle_count = (SELECT COUNT(*) FROM candles WHERE symbol = $1 AND timeframe = $2),
				updated_at = now()
		`, symbol, string(tf), first, last)
		if err != nil {
			return nil, err
		}

		return nil, tx.Commit(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return ErrCacheUnavailable
		}
		return fmt.Errorf("cache: upsert: %w", err)
	}
	return nil
}

// Metadata returns the (symbol,timeframe) bookkeeping record, if any.
func (s *PostgresStore) Metadata(ctx context.Context, symbol string, tf candle.Timeframe) (Metadata, bool, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		var m Metadata
		err := s.pool.QueryRow(ctx, `
			SELECT symbol, timeframe, first_timestamp, last_timestamp, candle_count, updated_at
			FROM candle_metadata WHERE symbol = $1 AND timeframe = $2
		`, symbol, string(tf)).Scan(&m.Symbol, (*string)(&m.Timeframe), &m.FirstTimestamp, &m.LastTimestamp, &m.CandleCount, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return Metadata{}, false, ErrCacheUnavailable
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("cache: metadata query: %w", err)
	}
	return result.(Metadata), true, nil
}

// DeleteMany removes candles and metadata matching the partial filter.
func (s *PostgresStore) DeleteMany(ctx context.Context, symbol, tf string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		where, args := deleteFilter(symbol, tf)
		if _, err := s.pool.Exec(ctx, "DELETE FROM candles WHERE "+where, args...); err != nil {
			return nil, err
		}
		if _, err := s.pool.Exec(ctx, "DELETE FROM candle_metadata WHERE "+where, args...); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return ErrCacheUnavailable
		}
		return fmt.Errorf("cache: delete many: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func deleteFilter(symbol, tf string) (string, []interface{}) {
	switch {
	case symbol != "" && tf != "":
		return "symbol = $1 AND timeframe = $2", []interface{}{symbol, tf}
	case symbol != "":
		return "symbol = $1", []interface{}{symbol}
	case tf != "":
		return "timeframe = $1", []interface{}{tf}
	default:
		return "TRUE", nil
	}
}
