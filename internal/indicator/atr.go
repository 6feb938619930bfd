package indicator

import (
	"math"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// ATR is the Average True Range, Wilder-smoothed over true range, warmup =
// period+1 (the first true range needs a previous close).
type ATR struct{}

func (ATR) Name() string { return "ATR" }

func (ATR) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "period", Default: 14, Min: 1, Max: 100000}}
}

func (i ATR) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i ATR) RequiredWarmup(params map[string]float64) int {
	return int(paramOrDefault(params, i.ParamDefs()[0])) + 1
}

func (i ATR) Calculate(series []candle.Candle, params map[string]float64, _ string) (Result, error) {
	period := int(paramOrDefault(params, i.ParamDefs()[0]))
	values := AverageTrueRange(series, period)
	return Result{Primary: "atr", Lines: map[string]Series{"atr": {Name: "atr", Values: values}}}, nil
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) for
// every candle; index 0 is NaN (no previous close).
func TrueRange(series []candle.Candle) []float64 {
	out := nanSeries(len(series))
	for i := 1; i < len(series); i++ {
		c := series[i]
		prevClose := series[i-1].Close
		out[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return out
}

// AverageTrueRange computes ATR: Wilder-smoothed true range, seeded by the
// plain average of the first `period` true range values (indices 1..period).
func AverageTrueRange(series []candle.Candle, period int) []float64 {
	out := nanSeries(len(series))
	if period < 1 || len(series) < period+1 {
		return out
	}
	tr := TrueRange(series)

	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period] = prev

	for i := period + 1; i < len(series); i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}
