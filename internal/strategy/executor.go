package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/ajitpratap0/backtester/internal/indicator"
	"github.com/ajitpratap0/backtester/internal/strategy/eval"
	"github.com/rs/zerolog/log"
)

// SignalKind is the executor's per-candle output, consumed by the engine.
type SignalKind string

const (
	SignalNone       SignalKind = "none"
	SignalEntryLong  SignalKind = "entry_long"
	SignalEntryShort SignalKind = "entry_short"
	SignalExitLong   SignalKind = "exit_long"
	SignalExitShort  SignalKind = "exit_short"
)

// dynamicsWindow is the trailing lookback candle.ComputeDynamics uses for
// its windowed fields (volume spike, direction reversals, average candle
// size). The schema has no per-strategy override today, so every strategy
// gets the same window — matching the default period convention most
// indicators use (RSI, ATR, ADX).
const dynamicsWindow = 14

// CandleResult is the executor's output for one primary candle: the signal
// (if any), the price/timestamp it fired at, and the resolved context for
// inspection/debugging.
type CandleResult struct {
	Timestamp int64
	Price     float64
	Signal    SignalKind
	Context   eval.Context
}

// Executor evaluates a Schema over an aligned multi-timeframe candle series,
// producing one CandleResult per primary candle. Position state is owned by
// the engine, not the executor (spec §4.3, §9: breaking the
// executor/simulator cyclic reference) — the engine calls SetPosition after
// every open/close so the next Execute call (or incremental evaluation)
// sees the right state.
type Executor struct {
	registry *indicator.Registry
	schema   Schema

	mu        sync.Mutex
	positions map[string]string // symbol -> "long" | "short" | "" (flat)
}

// NewExecutor builds an executor bound to a live indicator registry and a
// validated strategy schema.
func NewExecutor(registry *indicator.Registry, schema Schema) *Executor {
	return &Executor{
		registry:  registry,
		schema:    schema,
		positions: make(map[string]string),
	}
}

// SetPosition records the engine's current position for symbol: "long",
// "short", or "" when flat.
func (e *Executor) SetPosition(symbol string, side string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[symbol] = side
}

func (e *Executor) position(symbol string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions[symbol]
}

// RequiredWarmup returns max(schema.Lookback, every declared indicator's
// RequiredWarmup), per spec §4.3.
func (e *Executor) RequiredWarmup() int {
	return e.schema.RequiredWarmup(func(t string) (func(map[string]float64) int, bool) {
		ind, ok := e.registry.Get(t)
		if !ok {
			return nil, false
		}
		return ind.RequiredWarmup, true
	})
}

// seriesByTF groups candle series by timeframe, keyed by their canonical
// string form.
type seriesByTF map[candle.Timeframe][]candle.Candle

// Execute runs the full strategy over the primary series, using additional
// to resolve any indicator declared on a non-primary timeframe. additional
// should include an entry for the primary timeframe too, for uniformity,
// but Execute will fall back to primary if it's absent.
func (e *Executor) Execute(symbol string, primary []candle.Candle, additional seriesByTF) ([]CandleResult, error) {
	if additional == nil {
		additional = seriesByTF{}
	}
	if _, ok := additional[e.schema.PrimaryTimeframe]; !ok {
		additional[e.schema.PrimaryTimeframe] = primary
	}

	// Step 1: compute every declared indicator's full series on its own
	// timeframe.
	type computed struct {
		def    IndicatorDefinition
		result indicator.Result
		tf     candle.Timeframe
	}
	var computedIndicators []computed

	for _, def := range e.schema.Indicators {
		tf := def.Timeframe
		if tf == "" {
			tf = e.schema.PrimaryTimeframe
		}
		src, ok := additional[tf]
		if !ok {
			log.Warn().Str("indicator", def.ID).Str("timeframe", string(tf)).
				Msg("strategy: no candle series for declared timeframe, skipping indicator")
			continue
		}
		ind, ok := e.registry.Get(def.Type)
		if !ok {
			log.Warn().Str("indicator", def.ID).Str("type", def.Type).
				Msg("strategy: unknown indicator type, skipping (spec §7 unknown_indicator_type)")
			continue
		}
		if err := ind.Validate(def.Params); err != nil {
			return nil, fmt.Errorf("strategy: indicator %s: %w", def.ID, err)
		}
		result, err := ind.Calculate(src, def.Params, def.PriceSource)
		if err != nil {
			return nil, fmt.Errorf("strategy: indicator %s: %w", def.ID, err)
		}
		computedIndicators = append(computedIndicators, computed{def: def, result: result, tf: tf})
	}

	// Step 2: for every non-primary timeframe, precompute an O(1) index
	// mapping each primary candle to the most recently closed higher-
	// timeframe candle (the last one whose timestamp is <= the primary
	// candle's timestamp minus the higher timeframe's width).
	alignIndex := make(map[candle.Timeframe][]int) // tf -> per-primary-candle index into that tf's series
	for tf, series := range additional {
		if tf == e.schema.PrimaryTimeframe {
			continue
		}
		htfMs, err := tf.DurationMs()
		if err != nil {
			return nil, fmt.Errorf("strategy: additional timeframe %q: %w", tf, err)
		}
		alignIndex[tf] = alignMostRecentlyClosed(primary, series, htfMs)
	}

	// Step 3: parse every computed variable's expression once, up front
	// (spec §9 "evaluated against the context" assumes a parse-once AST,
	// not a re-parse per candle).
	type computedVar struct {
		id   string
		expr *eval.Expr
	}
	parsedVars := make([]computedVar, 0, len(e.schema.ComputedVariables))
	for _, v := range e.schema.ComputedVariables {
		expr, err := eval.Parse(v.Expression)
		if err != nil {
			return nil, fmt.Errorf("strategy: computed variable %s: %w", v.ID, err)
		}
		parsedVars = append(parsedVars, computedVar{id: v.ID, expr: expr})
	}

	// Step 4: walk primary candles, building context and evaluating signals.
	// Dynamics is computed once over the full primary series (spec §4.7
	// "dynamics block ... optional context consumable by filters") and
	// exposed per-candle as ctx.Dynamics/"dynamics.<field>" references.
	dynamics := candle.ComputeDynamics(primary, dynamicsWindow)

	out := make([]CandleResult, len(primary))
	var prevCtx *eval.Context

	for i, c := range primary {
		indicatorValues := make(map[string]eval.IndicatorValue, len(computedIndicators))
		prevIndicatorValues := make(map[string]eval.IndicatorValue, len(computedIndicators))

		for _, ci := range computedIndicators {
			idx := i
			if ci.tf != e.schema.PrimaryTimeframe {
				idx = alignIndex[ci.tf][i]
			}
			indicatorValues[ci.def.ID] = indicatorValueAt(ci.result, idx)
			if i > 0 {
				prevIdx := idx
				if ci.tf != e.schema.PrimaryTimeframe {
					prevIdx = alignIndex[ci.tf][i-1]
				} else {
					prevIdx = i - 1
				}
				prevIndicatorValues[ci.def.ID] = indicatorValueAt(ci.result, prevIdx)
			}
		}

		ctx := eval.Context{
			Candle:     c,
			Indicators: indicatorValues,
			PrevInd:    prevIndicatorValues,
			Variables:  make(map[string]float64, len(e.schema.ComputedVariables)),
			Dynamics:   &dynamics[i],
		}
		if i > 0 {
			prev := primary[i-1]
			ctx.Prev = &prev
			ctx.PrevDynamics = &dynamics[i-1]
			if prevCtx != nil {
				ctx.PrevVars = prevCtx.Variables
			}
		}

		for _, v := range parsedVars {
			ctx.Variables[v.id] = v.expr.Eval(ctx)
		}

		signal := e.evaluateSignal(symbol, ctx)
		out[i] = CandleResult{Timestamp: c.Timestamp, Price: c.Close, Signal: signal, Context: ctx}

		ctxCopy := ctx
		prevCtx = &ctxCopy
	}

	return out, nil
}

// evaluateSignal applies exit-before-entry priority (spec §4.3): if a
// position is open, only exit signals matching its side are considered;
// otherwise only entry signals are considered.
func (e *Executor) evaluateSignal(symbol string, ctx eval.Context) SignalKind {
	side := e.position(symbol)

	if side != "" {
		wantExit := SignalExitLong
		if side == "short" {
			wantExit = SignalExitShort
		}
		for _, sig := range e.schema.Signals {
			if SignalKind(sig.Kind) != wantExit {
				continue
			}
			if signalMatches(sig, ctx) {
				return wantExit
			}
		}
		return SignalNone
	}

	for _, sig := range e.schema.Signals {
		kind := SignalKind(sig.Kind)
		if kind != SignalEntryLong && kind != SignalEntryShort {
			continue
		}
		if signalMatches(sig, ctx) {
			return kind
		}
	}
	return SignalNone
}

// signalMatches evaluates a signal's mandatory conditions and, only if those
// hold, its optional filters (spec §3 "filters evaluated only if conditions
// hold").
func signalMatches(sig SignalDefinition, ctx eval.Context) bool {
	if !eval.EvalGroup(toEvalGroup(sig.When), ctx) {
		return false
	}
	return eval.EvalGroup(toEvalGroup(sig.Filters), ctx)
}

func toEvalGroup(g ConditionGroup) eval.ConditionGroup {
	conds := make([]eval.Condition, len(g.Conditions))
	for i, c := range g.Conditions {
		conds[i] = eval.Condition{Left: c.Left, Predicate: c.Predicate, Right: c.Right, Params: c.Params}
	}
	groups := make([]eval.ConditionGroup, len(g.Groups))
	for i, sub := range g.Groups {
		groups[i] = toEvalGroup(sub)
	}
	return eval.ConditionGroup{Operator: g.Operator, Conditions: conds, Groups: groups}
}

func indicatorValueAt(r indicator.Result, idx int) eval.IndicatorValue {
	lines := make(map[string]float64, len(r.Lines))
	for name, series := range r.Lines {
		if idx >= 0 && idx < len(series.Values) {
			lines[name] = series.Values[idx]
		} else {
			lines[name] = math.NaN()
		}
	}
	primary := math.NaN()
	if v, ok := lines[r.Primary]; ok {
		primary = v
	}
	return eval.IndicatorValue{Primary: primary, Lines: lines}
}

// alignMostRecentlyClosed returns, for every candle in primary, the index
// into other of the most recently *closed* higher-timeframe candle — the one
// whose bucket start is <= primary[i].Timestamp - htfMs, i.e. it has fully
// closed before the primary candle opened (spec §4.3). Both series must be
// sorted ascending by timestamp; the walk is a single two-pointer pass,
// O(len(primary)+len(other)).
func alignMostRecentlyClosed(primary, other []candle.Candle, htfMs int64) []int {
	out := make([]int, len(primary))
	j := -1
	for i, p := range primary {
		cutoff := p.Timestamp - htfMs
		for j+1 < len(other) && other[j+1].Timestamp <= cutoff {
			j++
		}
		out[i] = j
	}
	return out
}
