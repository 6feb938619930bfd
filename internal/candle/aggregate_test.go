package candle

import "testing"

func minuteSeries(closes ...float64) []Candle {
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{
			Timestamp: int64(i) * 60_000,
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 10,
		}
	}
	return out
}

func TestAggregateIsDeterministic(t *testing.T) {
	source := minuteSeries(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	first, err := Aggregate(source, TF5m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Aggregate(source, TF5m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("aggregation not deterministic: %d vs %d buckets", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bucket %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestAggregateBucketsOpenHighLowCloseVolume(t *testing.T) {
	source := minuteSeries(10, 12, 8, 11, 5)
	out, err := Aggregate(source, TF5m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(out))
	}
	b := out[0]
	if b.Timestamp != 0 {
		t.Fatalf("expected bucket start 0, got %d", b.Timestamp)
	}
	if b.Open != 10 {
		t.Fatalf("expected open 10, got %v", b.Open)
	}
	if b.Close != 5 {
		t.Fatalf("expected close 5, got %v", b.Close)
	}
	if b.High != 13 { // 12+1
		t.Fatalf("expected high 13, got %v", b.High)
	}
	if b.Low != 4 { // 5-1
		t.Fatalf("expected low 4, got %v", b.Low)
	}
	if b.Volume != 50 {
		t.Fatalf("expected volume 50, got %v", b.Volume)
	}
}

func TestAggregatePassthroughFor1m(t *testing.T) {
	source := minuteSeries(1, 2, 3)
	out, err := Aggregate(source, TF1m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(source) {
		t.Fatalf("expected passthrough of %d candles, got %d", len(source), len(out))
	}
}

func TestAggregateUnknownTimeframe(t *testing.T) {
	if _, err := Aggregate(minuteSeries(1), Timeframe("bogus")); err == nil {
		t.Fatal("expected error for unknown timeframe")
	}
}

func TestComputeDynamicsFirstCandleHasNoHistory(t *testing.T) {
	series := minuteSeries(10, 11, 9)
	dyn := ComputeDynamics(series, 3)
	if len(dyn) != len(series) {
		t.Fatalf("expected %d dynamics entries, got %d", len(series), len(dyn))
	}
	if dyn[0].Velocity != 0 {
		t.Fatalf("expected zero velocity for first candle, got %v", dyn[0].Velocity)
	}
}

func TestComputeDynamicsVelocitySign(t *testing.T) {
	series := minuteSeries(100, 110, 99)
	dyn := ComputeDynamics(series, 3)
	if dyn[1].Velocity <= 0 {
		t.Fatalf("expected positive velocity on up move, got %v", dyn[1].Velocity)
	}
	if dyn[2].Velocity >= 0 {
		t.Fatalf("expected negative velocity on down move, got %v", dyn[2].Velocity)
	}
}
