package indicator

import "github.com/ajitpratap0/backtester/internal/candle"

// Stochastic is the stochastic oscillator: raw %K measures the close's
// position within the trailing high/low range, %K is raw %K smoothed by an
// SMA over "smooth" bars, and %D is an SMA of %K over "dPeriod" bars (spec
// §4.1 Stochastic(kN, dN, smooth)).
type Stochastic struct{}

func (Stochastic) Name() string { return "STOCHASTIC" }

func (Stochastic) ParamDefs() []ParamDef {
	return []ParamDef{
		{Name: "kPeriod", Default: 14, Min: 1, Max: 100000},
		{Name: "smooth", Default: 3, Min: 1, Max: 100000},
		{Name: "dPeriod", Default: 3, Min: 1, Max: 100000},
	}
}

func (i Stochastic) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i Stochastic) RequiredWarmup(params map[string]float64) int {
	kPeriod := int(paramOrDefault(params, i.ParamDefs()[0]))
	smooth := int(paramOrDefault(params, i.ParamDefs()[1]))
	dPeriod := int(paramOrDefault(params, i.ParamDefs()[2]))
	return kPeriod + smooth + dPeriod - 2
}

func (i Stochastic) Calculate(series []candle.Candle, params map[string]float64, _ string) (Result, error) {
	kPeriod := int(paramOrDefault(params, i.ParamDefs()[0]))
	smooth := int(paramOrDefault(params, i.ParamDefs()[1]))
	dPeriod := int(paramOrDefault(params, i.ParamDefs()[2]))

	n := len(series)
	rawK := nanSeries(n)
	for idx := kPeriod - 1; idx < n; idx++ {
		hi, lo := series[idx-kPeriod+1].High, series[idx-kPeriod+1].Low
		for j := idx - kPeriod + 2; j <= idx; j++ {
			if series[j].High > hi {
				hi = series[j].High
			}
			if series[j].Low < lo {
				lo = series[j].Low
			}
		}
		if hi != lo {
			rawK[idx] = (series[idx].Close - lo) / (hi - lo) * 100
		} else {
			rawK[idx] = 50
		}
	}

	k := sma(compact(rawK), smooth)
	k = reExpand(k, rawK)

	d := sma(compact(k), dPeriod)
	d = reExpand(d, k)

	return Result{
		Primary: "k",
		Lines: map[string]Series{
			"k": {Name: "k", Values: k},
			"d": {Name: "d", Values: d},
		},
	}, nil
}
