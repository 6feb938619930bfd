package indicator

import "github.com/ajitpratap0/backtester/internal/candle"

// OBV is On-Balance Volume: a running sum of signed volume, added when
// close rises, subtracted when it falls, unchanged on a flat close. An
// optional SMA-smoothed signal line is provided via the "signalPeriod"
// param for strategies that want to trade OBV crossovers rather than raw
// level.
type OBV struct{}

func (OBV) Name() string { return "OBV" }

func (OBV) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "signalPeriod", Default: 0, Min: 0, Max: 100000}}
}

func (i OBV) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i OBV) RequiredWarmup(params map[string]float64) int {
	signalPeriod := int(paramOrDefault(params, i.ParamDefs()[0]))
	if signalPeriod > 0 {
		return signalPeriod
	}
	return 1
}

func (i OBV) Calculate(series []candle.Candle, params map[string]float64, _ string) (Result, error) {
	signalPeriod := int(paramOrDefault(params, i.ParamDefs()[0]))

	n := len(series)
	obv := nanSeries(n)
	var running float64
	if n > 0 {
		obv[0] = 0
	}
	for idx := 1; idx < n; idx++ {
		switch {
		case series[idx].Close > series[idx-1].Close:
			running += series[idx].Volume
		case series[idx].Close < series[idx-1].Close:
			running -= series[idx].Volume
		}
		obv[idx] = running
	}

	lines := map[string]Series{"obv": {Name: "obv", Values: obv}}
	if signalPeriod > 0 {
		signal := sma(compact(obv), signalPeriod)
		signal = reExpand(signal, obv)
		lines["signal"] = Series{Name: "signal", Values: signal}
	}

	return Result{Primary: "obv", Lines: lines}, nil
}
