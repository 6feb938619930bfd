package indicator

import (
	"math"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// ADX is the Average Directional Index with its +DI/-DI companions.
// Grounded directly on the teacher's internal/indicators/adx.go, which
// already hand-rolls Wilder smoothing because cinar/indicator/v2 has no ADX
// implementation — the smoothing helper here is the same shape, adapted to
// return full per-candle series instead of only the latest value.
type ADX struct{}

func (ADX) Name() string { return "ADX" }

func (ADX) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "period", Default: 14, Min: 1, Max: 100000}}
}

func (i ADX) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i ADX) RequiredWarmup(params map[string]float64) int {
	return 2 * int(paramOrDefault(params, i.ParamDefs()[0]))
}

func (i ADX) Calculate(series []candle.Candle, params map[string]float64, _ string) (Result, error) {
	period := int(paramOrDefault(params, i.ParamDefs()[0]))
	adx, plusDI, minusDI := averageDirectionalIndex(series, period)
	return Result{
		Primary: "adx",
		Lines: map[string]Series{
			"adx":     {Name: "adx", Values: adx},
			"plusDI":  {Name: "plusDI", Values: plusDI},
			"minusDI": {Name: "minusDI", Values: minusDI},
		},
	}, nil
}

func averageDirectionalIndex(series []candle.Candle, period int) (adx, plusDI, minusDI []float64) {
	n := len(series)
	adx, plusDI, minusDI = nanSeries(n), nanSeries(n), nanSeries(n)
	if n < 2*period {
		return
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		c := series[i]
		prev := series[i-1]
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))

		upMove := c.High - prev.High
		downMove := prev.Low - c.Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := wilderSmoothFromIndexOne(tr, period)
	smoothPlusDM := wilderSmoothFromIndexOne(plusDM, period)
	smoothMinusDM := wilderSmoothFromIndexOne(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI[i] = 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI[i] = 100 * smoothMinusDM[i] / smoothTR[i]
		sum := plusDI[i] + minusDI[i]
		if sum != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	var sum float64
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	prev := sum / float64(period)
	adx[2*period-1] = prev
	for i := 2 * period; i < n; i++ {
		prev = (prev*float64(period-1) + dx[i]) / float64(period)
		adx[i] = prev
	}
	return
}

// wilderSmoothFromIndexOne Wilder-smooths data[1:] (data[0] is assumed
// undefined, matching a true-range-style series), seeding at index period
// with the plain average of data[1..period].
func wilderSmoothFromIndexOne(data []float64, period int) []float64 {
	n := len(data)
	out := make([]float64, n)
	if n <= period {
		return out
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += data[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return out
}
