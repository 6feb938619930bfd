package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/ajitpratap0/backtester/internal/exchange"
	"github.com/ajitpratap0/backtester/internal/synth"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DownloadStatus is the queryable record of the most recent Fetch per symbol
// (spec §5 "active-download map"). Fetch sets State to "running" when it
// starts and to "completed" when it returns, whether or not it failed;
// "failed" is never set, and Loaded, Total and Message are left empty. A
// Fetch that starts while another for the same symbol is running does not
// wait for or share that download: it logs the overlap, runs its own fetch,
// and marks the shared record completed when it returns.
type DownloadStatus struct {
	Symbol    string
	State     string // running or completed
	Loaded    int
	Total     int
	Message   string
	StartedAt time.Time
}

// Stats describes where the candles in a Fetch result came from (spec
// §4.7 step 4).
type Stats struct {
	FromCache    int
	FromAPI      int
	SavedToCache int
	TotalTimeMs  int64
}

// ProgressFunc receives one update per processed batch (spec §4.7
// "Progress reporting").
type ProgressFunc func(message string, loaded, total int)

// Provider implements the cached data provider (spec §4.7): it turns "give
// me candles for symbol between t0 and t1" into the minimum exchange work,
// via Store for persistence and an optional HotRangeCache in front of it.
type Provider struct {
	store         Store
	hot           *HotRangeCache
	reader        exchange.Reader
	flushAt      int
	synthRegimes []synth.Regime
	synthSeed    uint32

	mu        sync.Mutex
	downloads map[string]*DownloadStatus
}

// NewProvider builds a Provider. flushAt is the buffer size at which
// incoming candles are upserted (spec §4.7 step 3, default 1000 when <= 0).
func NewProvider(store Store, hot *HotRangeCache, reader exchange.Reader, flushAt int) *Provider {
	if flushAt <= 0 {
		flushAt = 1000
	}
	return &Provider{
		store:     store,
		hot:       hot,
		reader:    reader,
		flushAt:   flushAt,
		downloads: make(map[string]*DownloadStatus),
	}
}

// UseSynthetic configures the provider's fallback generator, used in place
// of the exchange whenever no exchange reader is configured, whether or not
// the cache is available (spec §4.7 "Synthetic fallback").
func (p *Provider) UseSynthetic(seed uint32, regimes []synth.Regime) {
	p.synthSeed = seed
	p.synthRegimes = regimes
}

// DownloadStatus returns the status of symbol's in-flight or most recent
// download, if any.
func (p *Provider) DownloadStatus(symbol string) (DownloadStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.downloads[symbol]
	if !ok {
		return DownloadStatus{}, false
	}
	return *s, true
}

// Fetch implements the 5-step fetch procedure from spec §4.7.
func (p *Provider) Fetch(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64, onProgress ProgressFunc) ([]candle.Candle, Stats, error) {
	start := time.Now()
	step, err := tf.DurationMs()
	if err != nil {
		return nil, Stats{}, err
	}

	if hit, ok := p.hot.Get(ctx, symbol, tf, startMs, endMs); ok {
		return hit, Stats{FromCache: len(hit), TotalTimeMs: time.Since(start).Milliseconds()}, nil
	}

	if status, attached := p.attach(symbol); attached {
		log.Debug().Str("symbol", symbol).Msg("cache: download already in flight for symbol, fetching independently")
		_ = status
	}
	defer p.detach(symbol)

	// Step 1: read what's cached, compute missing ranges.
	cached, err := p.store.Range(ctx, symbol, tf, startMs, endMs)
	cacheDown := err == ErrCacheUnavailable
	if err != nil && !cacheDown {
		return nil, Stats{}, fmt.Errorf("cache: read cached range: %w", err)
	}

	if cacheDown {
		// Step 5: cache unavailable, stream the exchange (or synthetic
		// fallback) directly without persistence.
		candles, err := p.fetchDirect(ctx, symbol, tf, startMs, endMs, onProgress)
		if err != nil {
			return nil, Stats{}, err
		}
		return candles, Stats{FromAPI: len(candles), TotalTimeMs: time.Since(start).Milliseconds()}, nil
	}

	present := make(map[int64]bool, len(cached))
	for _, c := range cached {
		present[c.Timestamp] = true
	}
	missing := missingRanges(startMs, endMs, step, present)

	stats := Stats{FromCache: len(cached)}

	if len(missing) > 0 && p.reader != nil {
		if err := p.fillMissing(ctx, symbol, tf, missing, &stats, onProgress); err != nil {
			return nil, Stats{}, err
		}
	} else if len(missing) > 0 {
		// No exchange reader configured: fall back to synthetic candles so
		// tests and offline runs still get a complete series.
		synthCandles := p.synthesize(symbol, startMs, endMs, tf)
		if err := p.store.Upsert(ctx, symbol, tf, synthCandles); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("cache: failed to persist synthetic fallback")
		} else {
			stats.SavedToCache += len(synthCandles)
		}
		stats.FromAPI += len(synthCandles)
	}

	// Step 4: re-read from cache for a sorted, de-duplicated result.
	final, err := p.store.Range(ctx, symbol, tf, startMs, endMs)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("cache: final read: %w", err)
	}

	if p.hot != nil {
		p.hot.Set(ctx, symbol, tf, startMs, endMs, final)
	}

	stats.TotalTimeMs = time.Since(start).Milliseconds()
	return final, stats, nil
}

// fillMissing pages the exchange for each missing range, buffering and
// flushing upserts at p.flushAt candles (spec §4.7 step 2-3).
func (p *Provider) fillMissing(ctx context.Context, symbol string, tf candle.Timeframe, ranges [][2]int64, stats *Stats, onProgress ProgressFunc) error {
	var mu sync.Mutex
	var buffer []candle.Candle
	total := 0
	for _, r := range ranges {
		total += int(expectedCount(r[0], r[1], mustStep(tf)))
	}
	loaded := 0

	flush := func() error {
		mu.Lock()
		batch := buffer
		buffer = nil
		mu.Unlock()
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.Upsert(ctx, symbol, tf, batch); err != nil {
			return fmt.Errorf("cache: upsert batch: %w", err)
		}
		stats.SavedToCache += len(batch)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range ranges {
		r := r
		g.Go(func() error {
			rangeLoaded := 0
			return p.reader.FetchHistoricalOHLCV(gctx, symbol, tf, r[0], r[1],
				func(page []candle.Candle) {
					mu.Lock()
					buffer = append(buffer, page...)
					stats.FromAPI += len(page)
					shouldFlush := len(buffer) >= p.flushAt
					mu.Unlock()
					if shouldFlush {
						if err := flush(); err != nil {
							log.Error().Err(err).Str("symbol", symbol).Msg("cache: flush failed")
						}
					}
				},
				func(fetchedThrough int64, n int) {
					mu.Lock()
					loaded += n - rangeLoaded
					rangeLoaded = n
					l := loaded
					mu.Unlock()
					if onProgress != nil {
						onProgress(fmt.Sprintf("fetched through %d", fetchedThrough), l, total)
					}
				},
			)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("cache: exchange fetch: %w", err)
	}
	return flush()
}

func mustStep(tf candle.Timeframe) int64 {
	step, _ := tf.DurationMs()
	return step
}

func (p *Provider) fetchDirect(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64, onProgress ProgressFunc) ([]candle.Candle, error) {
	if p.reader == nil {
		return p.synthesize(symbol, startMs, endMs, tf), nil
	}

	var out []candle.Candle
	err := p.reader.FetchHistoricalOHLCV(ctx, symbol, tf, startMs, endMs,
		func(page []candle.Candle) { out = append(out, page...) },
		func(fetchedThrough int64, n int) {
			if onProgress != nil {
				onProgress(fmt.Sprintf("fetched through %d", fetchedThrough), n, 0)
			}
		},
	)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (p *Provider) synthesize(symbol string, startMs, endMs int64, tf candle.Timeframe) []candle.Candle {
	step := mustStep(tf)
	n := int(expectedCount(startMs, endMs, step))
	if n <= 0 {
		return nil
	}
	regimes := p.synthRegimes
	if regimes == nil {
		regimes = synth.DefaultRegimes()
	}
	result, err := synth.Generate(synth.Config{
		Seed:         p.synthSeed,
		Candles:      n,
		StartPrice:   100,
		StartTime:    startMs,
		Timeframe:    tf,
		Regimes:      regimes,
		SwitchChance: 0.02,
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("cache: synthetic fallback generation failed")
		return nil
	}
	log.Info().Str("symbol", symbol).Int("count", len(result)).Msg("cache: synthesized fallback candles")
	return result
}

func (p *Provider) attach(symbol string) (DownloadStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.downloads[symbol]; ok && s.State == "running" {
		return *s, true
	}
	p.downloads[symbol] = &DownloadStatus{Symbol: symbol, State: "running", StartedAt: time.Now()}
	return DownloadStatus{}, false
}

func (p *Provider) detach(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.downloads[symbol]; ok {
		s.State = "completed"
	}
}
