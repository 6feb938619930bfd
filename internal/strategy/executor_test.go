package strategy

import (
	"testing"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/ajitpratap0/backtester/internal/indicator"
)

func candles(closes ...float64) []candle.Candle {
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{
			Timestamp: int64(i) * 60_000,
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return out
}

func TestExecutorEntrySignalFiresOnCross(t *testing.T) {
	reg := indicator.NewRegistry()
	schema := Schema{
		Metadata:         Metadata{Name: "cross-up"},
		PrimaryTimeframe: candle.TF1m,
		Indicators: []IndicatorDefinition{
			{ID: "sma2", Type: "SMA", Params: map[string]float64{"period": 2}},
		},
		Signals: []SignalDefinition{
			{
				Kind: "entry_long",
				When: ConditionGroup{
					Operator: "AND",
					Conditions: []Condition{
						{Left: "close", Predicate: "crosses_above", Right: "sma2"},
					},
				},
			},
			{
				Kind: "exit_long",
				When: ConditionGroup{
					Operator: "AND",
					Conditions: []Condition{
						{Left: "close", Predicate: "crosses_below", Right: "sma2"},
					},
				},
			},
		},
	}

	exec := NewExecutor(reg, schema)
	series := candles(10, 10, 20, 5)
	results, err := exec.Execute("BTCUSDT", series, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(series) {
		t.Fatalf("expected %d results, got %d", len(series), len(results))
	}

	if results[2].Signal != SignalEntryLong {
		t.Fatalf("expected entry_long at index 2 (close crosses above sma2), got %v", results[2].Signal)
	}
}

func TestExecutorSuppressesEntryWhilePositionOpen(t *testing.T) {
	reg := indicator.NewRegistry()
	schema := Schema{
		Metadata:         Metadata{Name: "always-long"},
		PrimaryTimeframe: candle.TF1m,
		Signals: []SignalDefinition{
			{Kind: "entry_long", When: ConditionGroup{Operator: "AND"}},
			{Kind: "exit_long", When: ConditionGroup{Operator: "OR"}},
		},
	}
	exec := NewExecutor(reg, schema)
	exec.SetPosition("BTCUSDT", "long")

	series := candles(10, 11)
	results, err := exec.Execute("BTCUSDT", series, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Signal == SignalEntryLong {
			t.Fatalf("index %d: entry_long should be suppressed while a long position is open", i)
		}
	}
}

func TestExecutorUnknownIndicatorTypeIsSkippedNotFatal(t *testing.T) {
	reg := indicator.NewRegistry()
	schema := Schema{
		Metadata:         Metadata{Name: "typo"},
		PrimaryTimeframe: candle.TF1m,
		Indicators: []IndicatorDefinition{
			{ID: "bogus", Type: "NOT_A_REAL_INDICATOR"},
		},
		Signals: []SignalDefinition{
			{Kind: "entry_long", When: ConditionGroup{Operator: "AND"}},
		},
	}
	exec := NewExecutor(reg, schema)
	_, err := exec.Execute("BTCUSDT", candles(1, 2, 3), nil)
	if err != nil {
		t.Fatalf("unknown indicator type should be skipped, not fatal: %v", err)
	}
}

func TestExecutorExposesDynamicsToConditions(t *testing.T) {
	reg := indicator.NewRegistry()
	schema := Schema{
		Metadata:         Metadata{Name: "velocity-gate"},
		PrimaryTimeframe: candle.TF1m,
		Signals: []SignalDefinition{
			{
				Kind: "entry_long",
				When: ConditionGroup{
					Operator: "AND",
					Conditions: []Condition{
						{Left: "dynamics.velocity", Predicate: "greater_than", Right: "0"},
					},
				},
			},
			{Kind: "exit_long", When: ConditionGroup{Operator: "OR"}},
		},
	}

	exec := NewExecutor(reg, schema)
	series := candles(10, 10, 20, 15)
	results, err := exec.Execute("BTCUSDT", series, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results[0].Signal == SignalEntryLong {
		t.Fatal("index 0 has no previous candle, dynamics.velocity is 0 and must not fire entry")
	}
	if results[1].Signal == SignalEntryLong {
		t.Fatalf("index 1: flat close, velocity should be 0, not > 0")
	}
	if results[2].Signal != SignalEntryLong {
		t.Fatalf("index 2: close rose from 10 to 20, expected dynamics.velocity > 0 to fire entry_long")
	}
}

func TestAlignMostRecentlyClosed(t *testing.T) {
	primary := []candle.Candle{{Timestamp: 0}, {Timestamp: 60_000}, {Timestamp: 120_000}, {Timestamp: 180_000}}
	higher := []candle.Candle{{Timestamp: 0}, {Timestamp: 120_000}}

	got := alignMostRecentlyClosed(primary, higher, 120_000)
	want := []int{-1, -1, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected alignment %d, got %d", i, want[i], got[i])
		}
	}
}
