// Package indicator implements the technical-indicator library: a
// case-insensitive, name-keyed registry of indicators that each expose a
// uniform validate/requiredWarmup/calculate contract over a candle series.
//
// Unlike the request/response indicator service this package is adapted
// from, every indicator here returns a full per-candle series (one value,
// or one named line per candle) rather than a single latest value — the
// strategy executor needs the whole aligned series to build per-candle
// context.
package indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// ParamDef describes one parameter an indicator accepts, generalized from
// the teacher's extractPeriod/extractFloat helper pattern into a declarative
// shape so Validate and a future strategy-editor UI share one source of
// truth.
type ParamDef struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
}

// Series is one named output line of a calculation, e.g. "macd", "signal",
// "histogram". Values are NaN for candles within the indicator's warmup.
type Series struct {
	Name   string
	Values []float64
}

// Result is the full output of a single Calculate call: potentially several
// named lines, one of which is canonical ("the" value referenced when a
// strategy condition names the indicator without a line suffix).
type Result struct {
	Primary string
	Lines   map[string]Series
}

// Value returns the named line, or (nil, false) if it doesn't exist.
func (r Result) Value(line string) ([]float64, bool) {
	s, ok := r.Lines[line]
	if !ok {
		return nil, false
	}
	return s.Values, true
}

// PrimarySeries returns the canonical line's values.
func (r Result) PrimarySeries() []float64 {
	return r.Lines[r.Primary].Values
}

// Indicator is the contract every technical indicator in the library
// implements.
type Indicator interface {
	// Name is the canonical, upper-cased registry key.
	Name() string
	// ParamDefs lists the parameters Calculate accepts, with defaults.
	ParamDefs() []ParamDef
	// Validate checks params against ParamDefs and indicator-specific
	// constraints (e.g. fast period < slow period for MACD).
	Validate(params map[string]float64) error
	// RequiredWarmup returns the minimum candle count needed before the
	// first non-NaN value can be produced, given params.
	RequiredWarmup(params map[string]float64) int
	// Calculate computes the full per-candle Result for series. source is
	// the configured price-source tag (spec §3); indicators that operate
	// on a single price series honor it, multi-field indicators (ATR, ADX,
	// OBV, volume, pivot) ignore it.
	Calculate(series []candle.Candle, params map[string]float64, source string) (Result, error)
}

// Registry is a case-insensitive, name-keyed indicator registry. The
// zero value is usable only via NewRegistry (it needs an initialized map).
type Registry struct {
	byName map[string]Indicator
}

// NewRegistry returns a registry pre-populated with every built-in
// indicator (spec §4.1).
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Indicator)}
	for _, ind := range builtins() {
		r.mustRegister(ind)
	}
	return r
}

// Register adds or replaces an indicator at runtime. Per spec §5, runtime
// registration after startup needs external synchronization by the caller —
// Registry itself does not lock.
func (r *Registry) Register(ind Indicator) {
	r.byName[strings.ToUpper(ind.Name())] = ind
}

func (r *Registry) mustRegister(ind Indicator) {
	key := strings.ToUpper(ind.Name())
	if _, exists := r.byName[key]; exists {
		panic(fmt.Sprintf("indicator: duplicate built-in name %q", key))
	}
	r.byName[key] = ind
}

// Get looks up an indicator case-insensitively. The caller (executor) is
// responsible for the §7 "unknown_indicator_type: warn and skip" policy —
// Get itself just reports absence.
func (r *Registry) Get(name string) (Indicator, bool) {
	ind, ok := r.byName[strings.ToUpper(name)]
	return ind, ok
}

func builtins() []Indicator {
	return []Indicator{
		&SMA{}, &EMA{}, &SMMA{}, &RSI{}, &ATR{}, &MACD{}, &Bollinger{},
		&PivotPoints{}, &ADX{}, &Stochastic{}, &OBV{}, &VolumeSMA{},
	}
}

// paramOrDefault reads a param from the map, falling back to def's default.
func paramOrDefault(params map[string]float64, def ParamDef) float64 {
	if v, ok := params[def.Name]; ok {
		return v
	}
	return def.Default
}

func validateAgainstDefs(params map[string]float64, defs []ParamDef) error {
	for k := range params {
		found := false
		for _, d := range defs {
			if d.Name == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("indicator: unknown parameter %q", k)
		}
	}
	for _, d := range defs {
		v := paramOrDefault(params, d)
		if d.Min != 0 || d.Max != 0 {
			if v < d.Min || v > d.Max {
				return fmt.Errorf("indicator: parameter %q=%v out of range [%v, %v]", d.Name, v, d.Min, d.Max)
			}
		}
	}
	return nil
}

// priceSeries extracts the per-candle price series named by source (spec §3
// "optional price-source tag", §4.1 "chosen price source"): open, high, low,
// close, or the typical-price blends hl2/hlc3/ohlc4. An empty or unknown
// source falls back to close, preserving every existing strategy's
// behavior from before this tag existed.
func priceSeries(series []candle.Candle, source string) []float64 {
	out := make([]float64, len(series))
	switch source {
	case "open":
		for i, c := range series {
			out[i] = c.Open
		}
	case "high":
		for i, c := range series {
			out[i] = c.High
		}
	case "low":
		for i, c := range series {
			out[i] = c.Low
		}
	case "hl2":
		for i, c := range series {
			out[i] = (c.High + c.Low) / 2
		}
	case "hlc3":
		for i, c := range series {
			out[i] = (c.High + c.Low + c.Close) / 3
		}
	case "ohlc4":
		for i, c := range series {
			out[i] = (c.Open + c.High + c.Low + c.Close) / 4
		}
	default: // "close" and unknown/empty
		for i, c := range series {
			out[i] = c.Close
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
