package indicator

import (
	"math"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// Bollinger computes Bollinger Bands: an SMA middle band with upper/lower
// bands at +/- (stdDev * population standard deviation), plus bandwidth and
// %B context lines. Grounded on the teacher's
// internal/indicators/bollinger.go, which delegates to
// cinar/indicator/v2/volatility.BollingerBands — that package hardcodes a
// 2-stddev band, so it cannot serve a strategy-configurable stdDev
// parameter; the band math is reimplemented here directly over the SMA
// helper already shared with the SMA indicator.
type Bollinger struct{}

func (Bollinger) Name() string { return "BOLLINGER" }

func (Bollinger) ParamDefs() []ParamDef {
	return []ParamDef{
		{Name: "period", Default: 20, Min: 2, Max: 100000},
		{Name: "stdDev", Default: 2, Min: 0.0001, Max: 100},
	}
}

func (i Bollinger) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i Bollinger) RequiredWarmup(params map[string]float64) int {
	return int(paramOrDefault(params, i.ParamDefs()[0]))
}

func (i Bollinger) Calculate(series []candle.Candle, params map[string]float64, source string) (Result, error) {
	period := int(paramOrDefault(params, i.ParamDefs()[0]))
	stdDevMult := paramOrDefault(params, i.ParamDefs()[1])

	data := priceSeries(series, source)
	middle := sma(data, period)
	upper := nanSeries(len(data))
	lower := nanSeries(len(data))
	bandwidth := nanSeries(len(data))
	percentB := nanSeries(len(data))

	for idx := period - 1; idx < len(data); idx++ {
		mean := middle[idx]
		var sumSq float64
		for j := idx - period + 1; j <= idx; j++ {
			d := data[j] - mean
			sumSq += d * d
		}
		stddev := math.Sqrt(sumSq / float64(period))
		upper[idx] = mean + stdDevMult*stddev
		lower[idx] = mean - stdDevMult*stddev
		if mean != 0 {
			bandwidth[idx] = (upper[idx] - lower[idx]) / mean * 100
		}
		if upper[idx] != lower[idx] {
			percentB[idx] = (data[idx] - lower[idx]) / (upper[idx] - lower[idx])
		}
	}

	return Result{
		Primary: "middle",
		Lines: map[string]Series{
			"upper":     {Name: "upper", Values: upper},
			"middle":    {Name: "middle", Values: middle},
			"lower":     {Name: "lower", Values: lower},
			"bandwidth": {Name: "bandwidth", Values: bandwidth},
			"percentB":  {Name: "percentB", Values: percentB},
		},
	}, nil
}
