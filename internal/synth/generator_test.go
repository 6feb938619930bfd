package synth

import (
	"testing"

	"github.com/ajitpratap0/backtester/internal/candle"
)

func baseConfig(seed uint32) Config {
	return Config{
		Seed:         seed,
		Candles:      200,
		StartPrice:   100,
		StartTime:    0,
		Timeframe:    candle.TF1m,
		SwitchChance: 0.02,
	}
}

func TestGenerateSameSeedIsDeterministic(t *testing.T) {
	a, err := Generate(baseConfig(42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Generate(baseConfig(42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("expected equal length series, got %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candle %d differs between runs with the same seed: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerateDifferentSeedsDiverge(t *testing.T) {
	a, err := Generate(baseConfig(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Generate(baseConfig(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diverged := false
	for i := range a {
		if a[i] != b[i] {
			diverged = true
			break
		}
	}
	if !diverged {
		t.Fatal("expected different seeds to produce different series")
	}
}

func TestGenerateProducesValidCandles(t *testing.T) {
	series, err := Generate(baseConfig(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 200 {
		t.Fatalf("expected 200 candles, got %d", len(series))
	}
	for i, c := range series {
		if err := c.Validate(); err != nil {
			t.Fatalf("candle %d invalid: %v", i, err)
		}
		if i > 0 && c.Timestamp <= series[i-1].Timestamp {
			t.Fatalf("candle %d timestamp not strictly increasing", i)
		}
	}
}

func TestGenerateUnknownTimeframe(t *testing.T) {
	cfg := baseConfig(1)
	cfg.Timeframe = candle.Timeframe("bogus")
	if _, err := Generate(cfg); err == nil {
		t.Fatal("expected error for unknown timeframe")
	}
}

func TestGenerateDefaultsRegimesWhenEmpty(t *testing.T) {
	cfg := baseConfig(3)
	cfg.Regimes = nil
	series, err := Generate(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != cfg.Candles {
		t.Fatalf("expected %d candles, got %d", cfg.Candles, len(series))
	}
}
