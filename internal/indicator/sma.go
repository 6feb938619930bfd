package indicator

import "github.com/ajitpratap0/backtester/internal/candle"

// SMA is the simple moving average: the unweighted mean of the trailing N
// values of the chosen price source (close by default).
type SMA struct{}

func (SMA) Name() string { return "SMA" }

func (SMA) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "period", Default: 20, Min: 1, Max: 100000}}
}

func (i SMA) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i SMA) RequiredWarmup(params map[string]float64) int {
	return int(paramOrDefault(params, i.ParamDefs()[0]))
}

func (i SMA) Calculate(series []candle.Candle, params map[string]float64, source string) (Result, error) {
	period := int(paramOrDefault(params, i.ParamDefs()[0]))
	values := sma(priceSeries(series, source), period)
	return Result{Primary: "sma", Lines: map[string]Series{"sma": {Name: "sma", Values: values}}}, nil
}

// sma computes the simple moving average of data with the given period,
// returning a series the same length as data with NaN for the first
// period-1 entries.
func sma(data []float64, period int) []float64 {
	out := nanSeries(len(data))
	if period < 1 || period > len(data) {
		return out
	}
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
