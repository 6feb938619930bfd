// Package backtest is the backtest engine (spec §4.5): it orchestrates the
// strategy executor and the market simulator over a clipped candle series,
// emitting a trade log, an equity curve, and a final Result. Grounded on the
// teacher's pkg/backtest/engine.go run loop (clip-then-walk structure,
// force-close-at-end behaviour) and internal/backtest/job.go's
// progress/cancellation plumbing, generalized to the declarative strategy
// model instead of the teacher's hardcoded long-only simple strategy.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/ajitpratap0/backtester/internal/indicator"
	"github.com/ajitpratap0/backtester/internal/metrics"
	"github.com/ajitpratap0/backtester/internal/simulator"
	"github.com/ajitpratap0/backtester/internal/strategy"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Status is the terminal (or in-flight) state of a backtest run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FillModel is the slippage/fill simulation mode a run is configured with.
// Only FillRealistic is normative per spec §6; the other two are accepted
// but behave identically (reserved for future fill-model work).
type FillModel string

const (
	FillOptimistic FillModel = "optimistic"
	FillPessimistic FillModel = "pessimistic"
	FillRealistic   FillModel = "realistic"
)

// DataSource names where the candle series backing a run came from.
// Informational only at the engine boundary — the caller (cached data
// provider, spec §4.7) has already resolved it before calling Run.
type DataSource string

const (
	DataSourceLocal    DataSource = "local"
	DataSourceExchange DataSource = "exchange"
)

// Config holds the per-run parameters recognised by the engine, per spec §6.
type Config struct {
	StartDate         int64 // inclusive, ms epoch
	EndDate           int64 // inclusive, ms epoch
	InitialCapital    float64
	Currency          string
	CommissionPercent float64
	SlippagePercent   float64
	FillModel         FillModel
	DataSource        DataSource
	MaxOpenPositions  int

	// ProgressEveryNCandles is the progress-report cadence (spec §4.5 step
	// 6d, exposed as a config knob per spec §9 open question 4). Defaults to
	// 100 when zero.
	ProgressEveryNCandles int
	// ATRPeriod is the lookback for the ATR series the engine precomputes
	// for SL/TP atr_multiple sizing (spec §4.5 step 4). Defaults to 14.
	ATRPeriod int
}

func (c Config) progressCadence() int {
	if c.ProgressEveryNCandles > 0 {
		return c.ProgressEveryNCandles
	}
	return 100
}

func (c Config) atrPeriod() float64 {
	if c.ATRPeriod > 0 {
		return float64(c.ATRPeriod)
	}
	return 14
}

// EquityPoint is one sample of the equity curve, emitted per processed
// primary candle (spec §3).
type EquityPoint struct {
	Timestamp        int64   `json:"timestamp"`
	Equity           float64 `json:"equity"`
	Drawdown         float64 `json:"drawdown"`
	DrawdownPercent  float64 `json:"drawdownPercent"`
	OpenPositions    int     `json:"openPositions"`
}

// ProgressEvent is the engine's progress-report shape (spec §6).
type ProgressEvent struct {
	BacktestID       string    `json:"backtestId"`
	Progress         float64   `json:"progress"` // 0..100
	ProcessedCandles int       `json:"processedCandles"`
	TotalCandles     int       `json:"totalCandles"`
	CurrentDate      int64     `json:"currentDate,omitempty"`
	ETA              time.Duration `json:"eta,omitempty"`
}

// Result is the full outcome of one backtest run (spec §3).
type Result struct {
	ID              string               `json:"id"`
	StrategyID      string               `json:"strategyId"`
	StrategyVersion string               `json:"strategyVersion"`
	Symbol          string               `json:"symbol"`
	Config          Config               `json:"config"`
	Status          Status               `json:"status"`
	Trades          []simulator.Trade    `json:"trades"`
	EquityCurve     []EquityPoint        `json:"equityCurve"`
	Metrics         *metrics.Metrics     `json:"metrics,omitempty"`
	StartedAt       int64                `json:"startedAt"`
	CompletedAt     int64                `json:"completedAt,omitempty"`
	Error           string               `json:"error,omitempty"`
	TotalCandles    int                  `json:"totalCandles"`
	ProcessedCandles int                 `json:"processedCandles"`
}

// Sentinel errors a caller can branch on (spec §7).
var (
	ErrNoDataInRange    = errors.New("backtest: no data in range")
	ErrInsufficientData = errors.New("backtest: insufficient data")
)

var (
	candlesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backtest_candles_processed_total",
		Help: "Total primary candles processed across all backtest runs.",
	})
	tradesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backtest_trades_emitted_total",
		Help: "Total trades closed across all backtest runs.",
	})
	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_run_duration_seconds",
		Help:    "Wall-clock duration of a single backtest run.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(candlesProcessed, tradesEmitted, runDuration)
}

// Engine runs strategies over candle series. One Engine may run many
// backtests concurrently; each Run call owns its own executor and simulator
// (spec §5 — nothing is shared across concurrent runs except the read-only
// indicator registry).
type Engine struct {
	registry *indicator.Registry
}

// New builds an Engine bound to registry.
func New(registry *indicator.Registry) *Engine {
	return &Engine{registry: registry}
}

// Run executes schema over primary (plus any additional-timeframe series the
// schema's indicators need) for symbol, per spec §4.5. It never returns a Go
// error for domain-predictable outcomes — those are encoded in the returned
// Result's Status/Error fields (spec §7). onProgress may be nil.
func (e *Engine) Run(
	ctx context.Context,
	schema strategy.Schema,
	symbol string,
	primary []candle.Candle,
	additional map[candle.Timeframe][]candle.Candle,
	cfg Config,
	onProgress func(ProgressEvent),
) Result {
	start := time.Now()
	result := Result{
		ID:              uuid.NewString(),
		StrategyID:      schema.Metadata.ID,
		StrategyVersion: schema.Metadata.Version,
		Symbol:          symbol,
		Config:          cfg,
		Status:          StatusRunning,
		StartedAt:       start.UnixMilli(),
	}
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	clipped := clip(primary, cfg.StartDate, cfg.EndDate)
	if len(clipped) == 0 {
		return fail(result, ErrNoDataInRange, StatusFailed)
	}
	result.TotalCandles = len(clipped)

	executor := strategy.NewExecutor(e.registry, schema)
	warmup := executor.RequiredWarmup()
	if len(clipped) < warmup {
		return fail(result, fmt.Errorf("%w: need %d candles, have %d", ErrInsufficientData, warmup, len(clipped)), StatusFailed)
	}

	additionalForExecutor := make(map[candle.Timeframe][]candle.Candle, len(additional)+1)
	for tf, series := range additional {
		additionalForExecutor[tf] = clip(series, cfg.StartDate, cfg.EndDate)
	}

	sim := simulator.New(simulator.Config{
		InitialCapital:    cfg.InitialCapital,
		CommissionPercent: cfg.CommissionPercent,
		SlippagePercent:   cfg.SlippagePercent,
		MaxOpenPositions:  cfg.MaxOpenPositions,
	})

	var atrValues []float64
	if atrInd, ok := e.registry.Get("ATR"); ok {
		if atrResult, calcErr := atrInd.Calculate(clipped, map[string]float64{"period": cfg.atrPeriod()}, ""); calcErr == nil {
			atrValues = atrResult.PrimarySeries()
		}
	}

	executionResults, execErr := executor.Execute(symbol, clipped, additionalForExecutor)
	if execErr != nil {
		return fail(result, execErr, StatusFailed)
	}

	cadence := cfg.progressCadence()
	peakEquity := cfg.InitialCapital
	runLog := log.With().Str("backtest_id", result.ID).Str("symbol", symbol).Logger()
	runLog.Info().Int("candles", len(clipped)).Int("warmup", warmup).Msg("backtest: run starting")

	for i := warmup; i < len(clipped); i++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				if i > 0 {
					forceCloseAll(sim, executor, clipped[i-1], symbol)
				}
				return finish(result, sim, cfg, StatusCancelled, clipped, warmup, i, cfg.InitialCapital)
			default:
			}
		}

		c := clipped[i]

		if trades := sim.ProcessCandle(c, symbol); len(trades) > 0 {
			executor.SetPosition(symbol, "")
			tradesEmitted.Add(float64(len(trades)))
		}

		var atr float64
		if i < len(atrValues) {
			atr = atrValues[i]
		}
		applySignal(sim, executor, schema, symbol, executionResults[i], atr)

		eq := sim.Equity()
		if eq > peakEquity {
			peakEquity = eq
		}
		dd := peakEquity - eq
		ddPct := 0.0
		if peakEquity > 0 {
			ddPct = dd / peakEquity * 100
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp:       c.Timestamp,
			Equity:          eq,
			Drawdown:        dd,
			DrawdownPercent: ddPct,
			OpenPositions:   sim.GetPortfolio().OpenPositions,
		})
		result.ProcessedCandles = i - warmup + 1
		candlesProcessed.Inc()

		if onProgress != nil {
			processed := i - warmup + 1
			total := len(clipped) - warmup
			if processed%cadence == 0 || processed == 1 || processed == total {
				pct := float64(processed) / float64(total) * 100
				elapsed := time.Since(start)
				var eta time.Duration
				if processed > 0 {
					eta = time.Duration(float64(elapsed) * (float64(total-processed) / float64(processed)))
				}
				onProgress(ProgressEvent{
					BacktestID:       result.ID,
					Progress:         pct,
					ProcessedCandles: processed,
					TotalCandles:     total,
					CurrentDate:      c.Timestamp,
					ETA:              eta,
				})
			}
		}
	}

	forceCloseAll(sim, executor, clipped[len(clipped)-1], symbol)

	return finish(result, sim, cfg, StatusCompleted, clipped, warmup, len(clipped), cfg.InitialCapital)
}

// applySignal implements spec §4.5 step 6b: exit signals close the current
// position at close price with reason "signal"; entry signals open a new
// position using the strategy's risk config and the current ATR value.
func applySignal(sim *simulator.Simulator, executor *strategy.Executor, schema strategy.Schema, symbol string, res strategy.CandleResult, atr float64) {
	switch res.Signal {
	case strategy.SignalExitLong, strategy.SignalExitShort:
		if sim.HasOpenPosition(symbol) {
			if _, ok := sim.Close(symbol, res.Price, res.Timestamp, simulator.ExitSignal); ok {
				executor.SetPosition(symbol, "")
			}
		}
	case strategy.SignalEntryLong:
		if !sim.HasOpenPosition(symbol) {
			fill := candle.Candle{Timestamp: res.Timestamp, Open: res.Price, High: res.Price, Low: res.Price, Close: res.Price}
			if _, err := sim.Open(symbol, simulator.SideLong, fill, schema.Risk, atr); err == nil {
				executor.SetPosition(symbol, "long")
			} else {
				log.Debug().Err(err).Str("symbol", symbol).Msg("backtest: entry_long rejected")
			}
		}
	case strategy.SignalEntryShort:
		if !sim.HasOpenPosition(symbol) {
			fill := candle.Candle{Timestamp: res.Timestamp, Open: res.Price, High: res.Price, Low: res.Price, Close: res.Price}
			if _, err := sim.Open(symbol, simulator.SideShort, fill, schema.Risk, atr); err == nil {
				executor.SetPosition(symbol, "short")
			} else {
				log.Debug().Err(err).Str("symbol", symbol).Msg("backtest: entry_short rejected")
			}
		}
	}
}

// forceCloseAll closes every remaining open position at last.Close with
// reason "manual" (spec §4.5 step 7 / §5 cancellation).
func forceCloseAll(sim *simulator.Simulator, executor *strategy.Executor, last candle.Candle, symbol string) {
	if sim.HasOpenPosition(symbol) {
		if _, ok := sim.Close(symbol, last.Close, last.Timestamp, simulator.ExitManual); ok {
			executor.SetPosition(symbol, "")
		}
	}
}

func clip(series []candle.Candle, start, end int64) []candle.Candle {
	var out []candle.Candle
	for _, c := range series {
		if c.Timestamp >= start && c.Timestamp <= end {
			out = append(out, c)
		}
	}
	return out
}

func fail(result Result, err error, status Status) Result {
	result.Status = status
	result.Error = err.Error()
	result.CompletedAt = time.Now().UnixMilli()
	return result
}

func finish(result Result, sim *simulator.Simulator, cfg Config, status Status, clipped []candle.Candle, warmup, processedTo int, initial float64) Result {
	result.Status = status
	result.Trades = sim.Trades()
	result.CompletedAt = time.Now().UnixMilli()
	if status == StatusCancelled {
		result.Error = "cancelled"
	}

	t1 := clipped[len(clipped)-1].Timestamp
	t0 := t1
	if warmup < len(clipped) {
		t0 = clipped[warmup].Timestamp
	}
	if processedTo < len(clipped) && processedTo > warmup {
		t1 = clipped[processedTo-1].Timestamp
	}

	m := metrics.Calculate(result.Trades, equityPoints(result.EquityCurve), initial, t0, t1)
	result.Metrics = &m
	return result
}

func equityPoints(points []EquityPoint) []metrics.EquityPoint {
	out := make([]metrics.EquityPoint, len(points))
	for i, p := range points {
		out[i] = metrics.EquityPoint{Timestamp: p.Timestamp, Equity: p.Equity}
	}
	return out
}
