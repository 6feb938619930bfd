package backtest

import (
	"strings"
	"testing"

	"github.com/ajitpratap0/backtester/internal/candle"
	"github.com/ajitpratap0/backtester/internal/indicator"
	"github.com/ajitpratap0/backtester/internal/strategy"
)

func series(closes ...float64) []candle.Candle {
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{Timestamp: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func alwaysLongSchema() strategy.Schema {
	return strategy.Schema{
		Metadata:         strategy.Metadata{Name: "always-long"},
		PrimaryTimeframe: candle.TF1m,
		Signals: []strategy.SignalDefinition{
			{Kind: "entry_long", When: strategy.ConditionGroup{Operator: "AND"}},
			{Kind: "exit_long", When: strategy.ConditionGroup{Operator: "OR"}},
		},
		Risk: strategy.RiskConfig{RiskPercent: 1},
	}
}

func baseRunConfig(start, end int64) Config {
	return Config{
		StartDate:         start,
		EndDate:           end,
		InitialCapital:    10_000,
		CommissionPercent: 0,
		SlippagePercent:   0,
		FillModel:         FillRealistic,
		MaxOpenPositions:  1,
	}
}

func TestRunNoDataInRange(t *testing.T) {
	engine := New(indicator.NewRegistry())
	schema := alwaysLongSchema()
	candles := series(1, 2, 3)

	result := engine.Run(nil, schema, "BTCUSDT", candles, nil, baseRunConfig(10_000_000, 20_000_000), nil)
	if result.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", result.Status)
	}
	if !strings.Contains(result.Error, ErrNoDataInRange.Error()) {
		t.Fatalf("expected a no-data-in-range error, got %q", result.Error)
	}
}

func TestRunInsufficientData(t *testing.T) {
	engine := New(indicator.NewRegistry())
	schema := strategy.Schema{
		Metadata:         strategy.Metadata{Name: "needs-warmup"},
		PrimaryTimeframe: candle.TF1m,
		Indicators: []strategy.IndicatorDefinition{
			{ID: "sma50", Type: "SMA", Params: map[string]float64{"period": 50}},
		},
		Signals: []strategy.SignalDefinition{
			{Kind: "entry_long", When: strategy.ConditionGroup{Operator: "AND",
				Conditions: []strategy.Condition{{Left: "close", Predicate: "above", Right: "sma50.value"}}}},
			{Kind: "exit_long", When: strategy.ConditionGroup{Operator: "OR"}},
		},
	}
	candles := series(1, 2, 3, 4, 5)

	result := engine.Run(nil, schema, "BTCUSDT", candles, nil, baseRunConfig(0, 4*60_000), nil)
	if result.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", result.Status)
	}
	if result.Error == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestRunAlwaysLongForceClosesAtEnd(t *testing.T) {
	engine := New(indicator.NewRegistry())
	schema := alwaysLongSchema()
	candles := series(10, 11, 12, 13, 14)

	result := engine.Run(nil, schema, "BTCUSDT", candles, nil, baseRunConfig(0, 4*60_000), nil)
	if result.Status != StatusCompleted {
		t.Fatalf("expected status completed, got %s (%s)", result.Status, result.Error)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly 1 trade (force-closed at end), got %d", len(result.Trades))
	}
	if result.Trades[0].ExitReason != "manual" {
		t.Fatalf("expected exit reason 'manual' for the force-close, got %q", result.Trades[0].ExitReason)
	}
	if result.Metrics == nil {
		t.Fatal("expected metrics to be populated")
	}
}

func TestRunEmitsProgress(t *testing.T) {
	engine := New(indicator.NewRegistry())
	schema := alwaysLongSchema()
	candles := series(10, 11, 12, 13, 14, 15)

	var events []ProgressEvent
	result := engine.Run(nil, schema, "BTCUSDT", candles, nil, baseRunConfig(0, 5*60_000), func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if result.Status != StatusCompleted {
		t.Fatalf("expected status completed, got %s (%s)", result.Status, result.Error)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one progress event")
	}
	last := events[len(events)-1]
	if last.Progress != 100 {
		t.Fatalf("expected final progress event to report 100%%, got %v", last.Progress)
	}
}
