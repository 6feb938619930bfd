package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// intervalFor maps a candle.Timeframe to the Binance kline interval string.
// Binance's interval vocabulary is a superset of the spec's timeframe list,
// so the canonical string form is also the Binance form for every supported
// timeframe.
func intervalFor(tf candle.Timeframe) (string, error) {
	if !tf.Valid() {
		return "", fmt.Errorf("exchange: unsupported timeframe %q", tf)
	}
	return string(tf), nil
}

// BinanceReader implements Reader against Binance's public Klines endpoint.
// Grounded on the teacher's BinanceExchange client setup and retry pattern
// (internal/exchange/binance.go), with the order-management surface dropped
// in favor of a read-only Kline fetch (this spec has no live trading).
type BinanceReader struct {
	client  *binance.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewBinanceReader builds a Reader against Binance, honoring cfg's testnet
// flag, page size, and pacing.
func NewBinanceReader(cfg Config) *BinanceReader {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	client.HTTPClient = &http.Client{Timeout: cfg.timeout()}

	if cfg.Testnet {
		binance.UseTestnet = true
		log.Info().Msg("exchange: binance reader initialized (testnet)")
	}

	pacing := cfg.pacing()
	limiter := rate.NewLimiter(rate.Every(pacing), 1)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange-binance",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("exchange: circuit breaker state change")
		},
	})

	return &BinanceReader{client: client, cfg: cfg, limiter: limiter, breaker: breaker}
}

// FetchOHLCV fetches a single page of up to limit candles at or after
// sinceMs, passed through the circuit breaker.
func (b *BinanceReader) FetchOHLCV(ctx context.Context, symbol string, tf candle.Timeframe, sinceMs int64, limit int) ([]candle.Candle, error) {
	interval, err := intervalFor(tf)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > b.cfg.pageSize() {
		limit = b.cfg.pageSize()
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		klines, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(sinceMs).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		return klines, nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch klines %s %s: %w", symbol, tf, err)
	}

	klines := result.([]*binance.Kline)
	out := make([]candle.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := candleFromKline(k)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("exchange: skipping malformed kline")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// FetchHistoricalOHLCV pages through [startMs,endMs], waiting at least the
// reader's pacing interval between requests (spec §4.7). A failed page
// request is tried up to maxPageAttempts times before its error is returned.
func (b *BinanceReader) FetchHistoricalOHLCV(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64, onBatch BatchCallback, onProgress ProgressCallback) error {
	step, err := tf.DurationMs()
	if err != nil {
		return err
	}
	since := startMs
	fetched := 0

	for since <= endMs {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}

		const maxPageAttempts = 3
		var page []candle.Candle
		for attempt := 1; ; attempt++ {
			page, err = b.FetchOHLCV(ctx, symbol, tf, since, b.cfg.pageSize())
			if err == nil || attempt == maxPageAttempts || ctx.Err() != nil {
				break
			}
			log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt).Msg("exchange: page fetch failed, retrying")
			if werr := b.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		var inRange []candle.Candle
		for _, c := range page {
			if c.Timestamp > endMs {
				continue
			}
			inRange = append(inRange, c)
		}
		if len(inRange) > 0 && onBatch != nil {
			onBatch(inRange)
		}
		fetched += len(inRange)

		last := page[len(page)-1].Timestamp
		if onProgress != nil {
			onProgress(last, fetched)
		}

		if last >= endMs || last+step <= since {
			break
		}
		since = last + step
	}

	return nil
}

func candleFromKline(k *binance.Kline) (candle.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse low: %w", err)
	}
	closeP, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse volume: %w", err)
	}

	c := candle.Candle{
		Timestamp: k.OpenTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}
	return c, c.Validate()
}
