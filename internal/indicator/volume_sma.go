package indicator

import "github.com/ajitpratap0/backtester/internal/candle"

// VolumeSMA is the simple moving average of candle volume, used by
// strategies to detect volume spikes relative to a trailing baseline.
type VolumeSMA struct{}

func (VolumeSMA) Name() string { return "VOLUME_SMA" }

func (VolumeSMA) ParamDefs() []ParamDef {
	return []ParamDef{{Name: "period", Default: 20, Min: 1, Max: 100000}}
}

func (i VolumeSMA) Validate(params map[string]float64) error {
	return validateAgainstDefs(params, i.ParamDefs())
}

func (i VolumeSMA) RequiredWarmup(params map[string]float64) int {
	return int(paramOrDefault(params, i.ParamDefs()[0]))
}

func (i VolumeSMA) Calculate(series []candle.Candle, params map[string]float64, _ string) (Result, error) {
	period := int(paramOrDefault(params, i.ParamDefs()[0]))
	volumes := make([]float64, len(series))
	for idx, c := range series {
		volumes[idx] = c.Volume
	}
	values := sma(volumes, period)
	return Result{Primary: "volumeSma", Lines: map[string]Series{"volumeSma": {Name: "volumeSma", Values: values}}}, nil
}
