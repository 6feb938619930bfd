// Package synth generates deterministic synthetic OHLCV series, used in
// place of the exchange when no exchange reader is configured (spec §4.7
// "Synthetic fallback").
package synth

import (
	"math"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// lcg is the seeded linear congruential generator spec §4.7 specifies:
// seed <- seed*1664525 + 1013904223 mod 2^32. Two generators started from
// the same seed produce byte-identical output.
type lcg struct {
	state uint32
}

func newLCG(seed uint32) *lcg {
	return &lcg{state: seed}
}

// next returns a uniform float64 in [0, 1).
func (g *lcg) next() float64 {
	g.state = g.state*1664525 + 1013904223
	return float64(g.state) / float64(1<<32)
}

// gaussian returns a standard-normal sample via the Box-Muller transform,
// consuming two uniform draws from g.
func (g *lcg) gaussian() float64 {
	u1 := g.next()
	u2 := g.next()
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Regime describes one volatility/trend band of the regime-switching walk.
type Regime struct {
	Volatility   float64 // per-candle stddev of log-return
	TrendStrength float64 // per-candle drift added to the log-return
	MeanDuration int     // expected candle count before a regime change is considered
}

// Config parameterizes a synthetic series.
type Config struct {
	Seed         uint32
	Candles      int
	StartPrice   float64
	StartTime    int64
	Timeframe    candle.Timeframe
	Regimes      []Regime // cycled through on regime change; empty means DefaultRegimes()
	SwitchChance float64  // probability per candle, after MeanDuration candles, of switching regime
}

// DefaultRegimes returns a small calm/volatile/trending rotation used when a
// caller does not supply its own regime bands.
func DefaultRegimes() []Regime {
	return []Regime{
		{Volatility: 0.002, TrendStrength: 0.0, MeanDuration: 200},
		{Volatility: 0.006, TrendStrength: 0.0008, MeanDuration: 80},
		{Volatility: 0.004, TrendStrength: -0.0006, MeanDuration: 80},
	}
}

// Generate produces a deterministic OHLCV series for cfg. The same Config
// (same Seed, same everything else) always yields the same candles.
func Generate(cfg Config) ([]candle.Candle, error) {
	if len(cfg.Regimes) == 0 {
		cfg.Regimes = DefaultRegimes()
	}
	width, err := cfg.Timeframe.DurationMs()
	if err != nil {
		return nil, err
	}

	rng := newLCG(cfg.Seed)
	out := make([]candle.Candle, 0, cfg.Candles)

	price := cfg.StartPrice
	if price <= 0 {
		price = 100
	}
	ts := cfg.StartTime

	regimeIdx := 0
	sinceSwitch := 0
	switchChance := cfg.SwitchChance
	if switchChance <= 0 {
		switchChance = 0.05
	}

	for i := 0; i < cfg.Candles; i++ {
		regime := cfg.Regimes[regimeIdx%len(cfg.Regimes)]
		sinceSwitch++
		if sinceSwitch > regime.MeanDuration && rng.next() < switchChance {
			regimeIdx++
			sinceSwitch = 0
		}

		logReturn := regime.TrendStrength + regime.Volatility*rng.gaussian()
		open := price
		close_ := open * math.Exp(logReturn)

		intrabarVol := regime.Volatility * 0.5
		high := math.Max(open, close_) * math.Exp(math.Abs(intrabarVol*rng.gaussian()))
		low := math.Min(open, close_) * math.Exp(-math.Abs(intrabarVol*rng.gaussian()))
		if low <= 0 {
			low = math.Min(open, close_) * 0.99
		}

		volume := 1000 * (1 + math.Abs(rng.gaussian())*0.5)

		out = append(out, candle.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close_,
			Volume:    volume,
		})

		price = close_
		ts += width
	}
	return out, nil
}
