package indicator

import (
	"math"
	"testing"

	"github.com/ajitpratap0/backtester/internal/candle"
)

func closeSeries(values ...float64) []candle.Candle {
	out := make([]candle.Candle, len(values))
	for i, v := range values {
		out[i] = candle.Candle{Timestamp: int64(i) * 60000, Open: v, High: v + 0.5, Low: v - 0.5, Close: v, Volume: 100}
	}
	return out
}

func lastNonNaN(values []float64) (float64, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i], true
		}
	}
	return 0, false
}

func TestRegistryCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get("sma"); !ok {
		t.Fatal("expected lowercase lookup to find SMA")
	}
	if _, ok := reg.Get("Sma"); !ok {
		t.Fatal("expected mixed-case lookup to find SMA")
	}
	if _, ok := reg.Get("nonexistent"); ok {
		t.Fatal("expected unregistered name to be absent")
	}
}

func TestSMAWarmup(t *testing.T) {
	series := closeSeries(1, 2, 3, 4, 5, 6)
	s := SMA{}
	result, err := s.Calculate(series, map[string]float64{"period": 3}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values := result.PrimarySeries()
	for i := 0; i < 2; i++ {
		if !math.IsNaN(values[i]) {
			t.Fatalf("expected warmup NaN at %d, got %v", i, values[i])
		}
	}
	if values[2] != 2 {
		t.Fatalf("expected SMA(3) at index 2 == 2, got %v", values[2])
	}
	if values[5] != 5 {
		t.Fatalf("expected SMA(3) at index 5 == 5, got %v", values[5])
	}
}

func TestEMAConvergesWithCinarReference(t *testing.T) {
	prices := []float64{44, 44.5, 45, 45.5, 46, 46.5, 47, 47.5, 48, 48.5, 49, 49.5, 50, 50.5, 51}
	period := 5

	ours := ema(prices, period)
	ref := newCinarReferenceEMA(prices, period)

	ourLast, ok1 := lastNonNaN(ours)
	refLast, ok2 := lastNonNaN(ref)
	if !ok1 || !ok2 {
		t.Fatal("expected both EMA implementations to produce a value")
	}
	if math.Abs(ourLast-refLast) > 0.5 {
		t.Fatalf("expected our EMA and the cinar reference EMA to be close once past warmup, got %v vs %v", ourLast, refLast)
	}
}

func TestRSIWilderWarmupAndBounds(t *testing.T) {
	prices := []float64{44, 44.25, 44.5, 43.75, 44.65, 45.12, 45.5, 45.8, 46.1, 45.9, 46.3, 46.5, 47, 46.8, 47.2}
	series := closeSeries(prices...)
	r := RSI{}
	result, _ := r.Calculate(series, map[string]float64{"period": 14}, "")
	values := result.PrimarySeries()
	for i := 0; i < 14; i++ {
		if !math.IsNaN(values[i]) {
			t.Fatalf("expected RSI warmup (period+1=15) NaN at %d", i)
		}
	}
	v := values[14]
	if v < 0 || v > 100 {
		t.Fatalf("expected RSI in [0,100], got %v", v)
	}
}

func TestATRRequiresPreviousClose(t *testing.T) {
	series := closeSeries(10, 11, 12, 11, 13, 14, 12, 15, 16, 15, 14, 13, 15, 16, 17)
	a := ATR{}
	result, _ := a.Calculate(series, map[string]float64{"period": 14}, "")
	values := result.PrimarySeries()
	if !math.IsNaN(values[13]) {
		t.Fatalf("expected ATR NaN before period+1 candles, index 13")
	}
	if math.IsNaN(values[14]) {
		t.Fatalf("expected ATR defined at index 14 (period+1 candles)")
	}
}

func TestMACDFastMustBeLessThanSlow(t *testing.T) {
	m := MACD{}
	err := m.Validate(map[string]float64{"fastPeriod": 26, "slowPeriod": 12})
	if err == nil {
		t.Fatal("expected validation error when fastPeriod >= slowPeriod")
	}
}

func TestPivotDemarkOnlyDefinesThreeLevels(t *testing.T) {
	series := closeSeries(100, 101, 102, 101, 103)
	p := PivotPoints{}
	result, _ := p.Calculate(series, map[string]float64{"variant": pivotDemark}, "")
	if _, ok := result.Value("r2"); ok {
		if v, _ := result.Value("r2"); !math.IsNaN(v[4]) {
			t.Fatal("expected demark variant to leave r2 undefined (NaN)")
		}
	}
	pp, _ := result.Value("pp")
	if math.IsNaN(pp[4]) {
		t.Fatal("expected demark pivot to be defined by the last candle")
	}
}

func TestPivotTraditionalExtendsToFiveLevels(t *testing.T) {
	series := closeSeries(100, 101, 102, 101, 103)
	p := PivotPoints{}
	result, _ := p.Calculate(series, map[string]float64{"variant": pivotTraditional}, "")

	r3, _ := result.Value("r3")
	r4, _ := result.Value("r4")
	r5, _ := result.Value("r5")
	s3, _ := result.Value("s3")
	s4, _ := result.Value("s4")
	s5, _ := result.Value("s5")

	last := len(series) - 1
	if math.IsNaN(r4[last]) || math.IsNaN(r5[last]) {
		t.Fatalf("expected r4/r5 defined, got %v/%v", r4[last], r5[last])
	}
	if math.IsNaN(s4[last]) || math.IsNaN(s5[last]) {
		t.Fatalf("expected s4/s5 defined, got %v/%v", s4[last], s5[last])
	}
	if !(r5[last] > r4[last] && r4[last] > r3[last]) {
		t.Fatalf("expected ascending continuation r3<r4<r5, got %v<%v<%v", r3[last], r4[last], r5[last])
	}
	if !(s5[last] < s4[last] && s4[last] < s3[last]) {
		t.Fatalf("expected descending continuation s3>s4>s5, got %v>%v>%v", s3[last], s4[last], s5[last])
	}
}

func TestPivotWoodieExtendsToFiveLevels(t *testing.T) {
	series := closeSeries(100, 101, 102, 101, 103)
	p := PivotPoints{}
	result, _ := p.Calculate(series, map[string]float64{"variant": pivotWoodie}, "")
	last := len(series) - 1
	for _, line := range []string{"r3", "r4", "r5", "s3", "s4", "s5"} {
		values, _ := result.Value(line)
		if math.IsNaN(values[last]) {
			t.Fatalf("expected woodie %s defined at last candle", line)
		}
	}
}

func TestPivotCamarillaExtendsToFiveLevels(t *testing.T) {
	series := closeSeries(100, 101, 102, 101, 103)
	p := PivotPoints{}
	result, _ := p.Calculate(series, map[string]float64{"variant": pivotCamarilla}, "")
	last := len(series) - 1
	r5, _ := result.Value("r5")
	s5, _ := result.Value("s5")
	if math.IsNaN(r5[last]) || math.IsNaN(s5[last]) {
		t.Fatalf("expected camarilla r5/s5 defined, got %v/%v", r5[last], s5[last])
	}
}

func TestStochasticSmoothsRawK(t *testing.T) {
	prices := []float64{10, 11, 12, 11, 13, 14, 12, 15, 16, 15, 14, 13, 15, 16, 17, 18, 17, 19, 20, 21}
	series := closeSeries(prices...)
	s := Stochastic{}

	params := map[string]float64{"kPeriod": 5, "smooth": 3, "dPeriod": 3}
	warmup := s.RequiredWarmup(params)
	if warmup != 5+3+3-2 {
		t.Fatalf("expected warmup kPeriod+smooth+dPeriod-2 = 9, got %d", warmup)
	}

	result, err := s.Calculate(series, params, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k, _ := result.Value("k")
	d, _ := result.Value("d")

	// Smoothed %K needs kPeriod+smooth-1 candles; %D, the slowest line, sets
	// the indicator's warmup.
	for i := 0; i < 5+3-2; i++ {
		if !math.IsNaN(k[i]) {
			t.Fatalf("expected smoothed k warmup NaN at %d, got %v", i, k[i])
		}
	}
	for i := 0; i < warmup-1; i++ {
		if !math.IsNaN(d[i]) {
			t.Fatalf("expected d warmup NaN at %d, got %v", i, d[i])
		}
	}
	if math.IsNaN(k[len(k)-1]) || math.IsNaN(d[len(d)-1]) {
		t.Fatal("expected k and d defined at the last candle")
	}
	if k[len(k)-1] < 0 || k[len(k)-1] > 100 {
		t.Fatalf("expected smoothed k in [0,100], got %v", k[len(k)-1])
	}
}

func TestIndicatorsHonorPriceSource(t *testing.T) {
	series := make([]candle.Candle, 6)
	for i := range series {
		v := float64(10 + i)
		// Asymmetric wicks so hl2 diverges from close.
		series[i] = candle.Candle{Timestamp: int64(i) * 60000, Open: v, High: v + 6, Low: v - 2, Close: v, Volume: 100}
	}
	s := SMA{}
	closeResult, _ := s.Calculate(series, map[string]float64{"period": 3}, "close")
	hl2Result, _ := s.Calculate(series, map[string]float64{"period": 3}, "hl2")

	closeValues := closeResult.PrimarySeries()
	hl2Values := hl2Result.PrimarySeries()
	last := len(series) - 1
	if closeValues[last] == hl2Values[last] {
		t.Fatalf("expected close-sourced and hl2-sourced SMA to differ, both got %v", closeValues[last])
	}
	fallback, _ := s.Calculate(series, map[string]float64{"period": 3}, "bogus")
	if fallback.PrimarySeries()[last] != closeValues[last] {
		t.Fatalf("expected unknown price source to fall back to close")
	}
}

func TestADXWarmupIsTwicePeriod(t *testing.T) {
	a := ADX{}
	warmup := a.RequiredWarmup(map[string]float64{"period": 14})
	if warmup != 28 {
		t.Fatalf("expected ADX warmup = 2*period = 28, got %d", warmup)
	}
}

func TestOBVSignAndRunning(t *testing.T) {
	series := closeSeries(10, 11, 10, 10, 12)
	o := OBV{}
	result, _ := o.Calculate(series, map[string]float64{}, "")
	obv, _ := result.Value("obv")
	// up, down, flat, up -> volumes are all 100
	if obv[0] != 0 {
		t.Fatalf("expected OBV[0] == 0, got %v", obv[0])
	}
	if obv[1] != 100 {
		t.Fatalf("expected OBV to rise on up candle, got %v", obv[1])
	}
	if obv[2] != 0 {
		t.Fatalf("expected OBV to fall back to 0 on down candle, got %v", obv[2])
	}
	if obv[3] != 0 {
		t.Fatalf("expected OBV unchanged on flat candle, got %v", obv[3])
	}
}
