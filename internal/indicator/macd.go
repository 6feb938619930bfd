package indicator

import (
	"fmt"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// MACD is the Moving Average Convergence Divergence: fast EMA minus slow
// EMA, with a signal line that is an EMA of the MACD line itself and a
// histogram of macd-signal. Grounded on the teacher's
// internal/indicators/macd.go, which wraps cinar/indicator/v2/trend.Macd;
// here the underlying EMAs are our own spec-exact `ema` helper so warmup and
// seeding stay consistent with the standalone EMA indicator.
type MACD struct{}

func (MACD) Name() string { return "MACD" }

func (MACD) ParamDefs() []ParamDef {
	return []ParamDef{
		{Name: "fastPeriod", Default: 12, Min: 1, Max: 100000},
		{Name: "slowPeriod", Default: 26, Min: 1, Max: 100000},
		{Name: "signalPeriod", Default: 9, Min: 1, Max: 100000},
	}
}

func (i MACD) Validate(params map[string]float64) error {
	if err := validateAgainstDefs(params, i.ParamDefs()); err != nil {
		return err
	}
	fast := paramOrDefault(params, i.ParamDefs()[0])
	slow := paramOrDefault(params, i.ParamDefs()[1])
	if fast >= slow {
		return fmt.Errorf("indicator: MACD fastPeriod (%v) must be less than slowPeriod (%v)", fast, slow)
	}
	return nil
}

func (i MACD) RequiredWarmup(params map[string]float64) int {
	slow := int(paramOrDefault(params, i.ParamDefs()[1]))
	signal := int(paramOrDefault(params, i.ParamDefs()[2]))
	return slow + signal - 1
}

func (i MACD) Calculate(series []candle.Candle, params map[string]float64, source string) (Result, error) {
	fast := int(paramOrDefault(params, i.ParamDefs()[0]))
	slow := int(paramOrDefault(params, i.ParamDefs()[1]))
	signalPeriod := int(paramOrDefault(params, i.ParamDefs()[2]))

	data := priceSeries(series, source)
	fastEMA := ema(data, fast)
	slowEMA := ema(data, slow)

	macdLine := nanSeries(len(data))
	for idx := range data {
		if !math64IsNaN(fastEMA[idx]) && !math64IsNaN(slowEMA[idx]) {
			macdLine[idx] = fastEMA[idx] - slowEMA[idx]
		}
	}

	signalLine := ema(compact(macdLine), signalPeriod)
	signalLine = reExpand(signalLine, macdLine)

	histogram := nanSeries(len(data))
	for idx := range data {
		if !math64IsNaN(macdLine[idx]) && !math64IsNaN(signalLine[idx]) {
			histogram[idx] = macdLine[idx] - signalLine[idx]
		}
	}

	return Result{
		Primary: "macd",
		Lines: map[string]Series{
			"macd":      {Name: "macd", Values: macdLine},
			"signal":    {Name: "signal", Values: signalLine},
			"histogram": {Name: "histogram", Values: histogram},
		},
	}, nil
}
