package indicator

import "github.com/ajitpratap0/backtester/internal/candle"

// SMMA is Wilder's smoothed moving average of the chosen price source (close
// by default), seeded by the SMA of the first period values.
type SMMA struct{}

func (SMMA) Name() string { return "SMMA" }

func (SMMA) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "period", Default: 14, Min: 1, Max: 100000}}
}

func (i SMMA) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i SMMA) RequiredWarmup(params map[string]float64) int {
	return int(paramOrDefault(params, i.ParamDefs()[0]))
}

func (i SMMA) Calculate(series []candle.Candle, params map[string]float64, source string) (Result, error) {
	period := int(paramOrDefault(params, i.ParamDefs()[0]))
	values := smma(priceSeries(series, source), period)
	return Result{Primary: "smma", Lines: map[string]Series{"smma": {Name: "smma", Values: values}}}, nil
}

// smma applies Wilder's smoothing: seed = SMA(period), then
// smma[i] = (smma[i-1]*(period-1) + data[i]) / period.
func smma(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period < 1 || period > len(data) {
		return out
	}
	seed := sma(data, period)
	prev := seed[period-1]
	out[period-1] = prev
	for i := period; i < len(data); i++ {
		prev = (prev*float64(period-1) + data[i]) / float64(period)
		out[i] = prev
	}
	return out
}
