package indicator

import (
	"fmt"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// PivotPoints computes the prior-candle-derived pivot levels under one of
// five variants. Per candle i (i >= 1) the pivot is derived from candle
// i-1's high/low/close, the convention for intraday pivot-point systems.
type PivotPoints struct{}

func (PivotPoints) Name() string { return "PIVOT" }

func (PivotPoints) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "variant", Default: 0, Min: 0, Max: 4}}
}

// variant codes: 0=traditional 1=fibonacci 2=camarilla 3=woodie 4=demark
const (
	pivotTraditional = 0
	pivotFibonacci   = 1
	pivotCamarilla   = 2
	pivotWoodie      = 3
	pivotDemark      = 4
)

func (i PivotPoints) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i PivotPoints) RequiredWarmup(params map[string]float64) int {
	return 2
}

func (i PivotPoints) Calculate(series []candle.Candle, params map[string]float64, _ string) (Result, error) {
	variant := int(paramOrDefault(params, i.ParamDefs()[0]))

	lines := map[string]string{
		"pp": "pp", "r1": "r1", "r2": "r2", "r3": "r3", "r4": "r4", "r5": "r5",
		"s1": "s1", "s2": "s2", "s3": "s3", "s4": "s4", "s5": "s5",
	}
	out := make(map[string][]float64, len(lines))
	for name := range lines {
		out[name] = nanSeries(len(series))
	}

	for idx := 1; idx < len(series); idx++ {
		prev := series[idx-1]
		levels := pivotLevels(variant, prev.High, prev.Low, prev.Close)
		for name, v := range levels {
			out[name][idx] = v
		}
	}

	result := Result{Primary: "pp", Lines: map[string]Series{}}
	for name, values := range out {
		result.Lines[name] = Series{Name: name, Values: values}
	}
	return result, nil
}

// pivotLevels computes one candle's pivot levels given the prior candle's
// H/L/C, per spec §4.1. traditional/fibonacci/camarilla/woodie extend their
// native levels to R5/S5 by continuation (continueLevels); demark only
// defines pivot, r1, s1 — other levels are left absent (caller leaves them
// NaN).
func pivotLevels(variant int, high, low, close float64) map[string]float64 {
	switch variant {
	case pivotFibonacci:
		pp := (high + low + close) / 3
		rng := high - low
		r := []float64{pp + 0.382*rng, pp + 0.618*rng, pp + 1.0*rng}
		s := []float64{pp - 0.382*rng, pp - 0.618*rng, pp - 1.0*rng}
		return namedLevels(pp, r, s)
	case pivotCamarilla:
		pp := (high + low + close) / 3
		rng := high - low
		r := []float64{close + rng*1.1/12, close + rng*1.1/6, close + rng*1.1/4, close + rng*1.1/2}
		s := []float64{close - rng*1.1/12, close - rng*1.1/6, close - rng*1.1/4, close - rng*1.1/2}
		return namedLevels(pp, r, s)
	case pivotWoodie:
		pp := (high + low + 2*close) / 4
		rng := high - low
		r := []float64{2*pp - low, pp + rng, high + 2*(pp-low)}
		s := []float64{2*pp - high, pp - rng, low - 2*(high-pp)}
		return namedLevels(pp, r, s)
	case pivotDemark:
		var x float64
		switch {
		case close < high && close > low && close < (high+low)/2:
			x = high + 2*low + close
		case close > high:
			x = 2*high + low + close
		default:
			x = high + low + 2*close
		}
		pp := x / 4
		return map[string]float64{
			"pp": pp,
			"r1": x/2 - low,
			"s1": x/2 - high,
		}
	default: // traditional
		pp := (high + low + close) / 3
		rng := high - low
		r := []float64{2*pp - low, pp + rng, high + 2*(pp-low)}
		s := []float64{2*pp - high, pp - rng, low - 2*(high-pp)}
		return namedLevels(pp, r, s)
	}
}

// namedLevels assembles a variant's pivot map from its already-computed
// resistance/support levels, continuing each to R5/S5.
func namedLevels(pp float64, r, s []float64) map[string]float64 {
	r = continueLevels(r)
	s = continueLevels(s)
	out := map[string]float64{"pp": pp}
	for idx, v := range r {
		out[fmt.Sprintf("r%d", idx+1)] = v
	}
	for idx, v := range s {
		out[fmt.Sprintf("s%d", idx+1)] = v
	}
	return out
}

// continueLevels extends an ordered run of resistance (ascending) or
// support (descending) levels to length 5 by repeating the last step
// between consecutive levels, per spec §4.1 "extend levels to R5/S5 by
// continuation". Works for both directions since the step's sign already
// encodes ascending vs. descending.
func continueLevels(levels []float64) []float64 {
	out := append([]float64(nil), levels...)
	for len(out) < 5 {
		n := len(out)
		step := out[n-1] - out[n-2]
		out = append(out, out[n-1]+step)
	}
	return out
}
