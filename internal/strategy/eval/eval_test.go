package eval

import (
	"math"
	"testing"

	"github.com/ajitpratap0/backtester/internal/candle"
)

func TestParseAndEvalPrecedence(t *testing.T) {
	expr, err := Parse("2 + 3 * 4 - (1 + 1)")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	got := expr.Eval(Context{})
	if got != 12 {
		t.Fatalf("expected 12, got %v", got)
	}
}

func TestParseResolvesFieldsAndIndicators(t *testing.T) {
	expr, err := Parse("close - sma20.middle")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	ctx := Context{
		Candle:     candle.Candle{Close: 110},
		Indicators: map[string]IndicatorValue{"sma20": {Lines: map[string]float64{"middle": 100}}},
	}
	if got := expr.Eval(ctx); got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestDivisionByZeroIsNaN(t *testing.T) {
	expr, _ := Parse("1 / 0")
	got := expr.Eval(Context{})
	if !math.IsNaN(got) {
		t.Fatalf("expected NaN for division by zero, got %v", got)
	}
}

func TestEvalGroupEmptyIsTrue(t *testing.T) {
	if !EvalGroup(ConditionGroup{Operator: "AND"}, Context{}) {
		t.Fatal("expected empty group to evaluate true")
	}
}

func TestEvalGroupANDShortCircuits(t *testing.T) {
	ctx := Context{Candle: candle.Candle{Close: 100}}
	group := ConditionGroup{
		Operator: "AND",
		Conditions: []Condition{
			{Left: "close", Predicate: "greater_than", Right: "200"},
			{Left: "close", Predicate: "greater_than", Right: "1"},
		},
	}
	if EvalGroup(group, ctx) {
		t.Fatal("expected AND group with one false condition to be false")
	}
}

func TestEvalGroupORShortCircuits(t *testing.T) {
	ctx := Context{Candle: candle.Candle{Close: 100}}
	group := ConditionGroup{
		Operator: "OR",
		Conditions: []Condition{
			{Left: "close", Predicate: "less_than", Right: "1"},
			{Left: "close", Predicate: "greater_than", Right: "1"},
		},
	}
	if !EvalGroup(group, ctx) {
		t.Fatal("expected OR group with one true condition to be true")
	}
}

func TestCrossesAbove(t *testing.T) {
	ctx := Context{
		Candle:     candle.Candle{Close: 110},
		Prev:       &candle.Candle{Close: 95},
		Indicators: map[string]IndicatorValue{"sma": {Primary: 100}},
		PrevInd:    map[string]IndicatorValue{"sma": {Primary: 100}},
	}
	c := Condition{Left: "close", Predicate: "crosses_above", Right: "sma"}
	if !EvalCondition(c, ctx) {
		t.Fatal("expected close crossing above sma to be true")
	}
}

func TestBetweenRatioMode(t *testing.T) {
	ctx := Context{Candle: candle.Candle{Close: 110}}
	c := Condition{
		Left: "close", Predicate: "between", Right: "100",
		Params: map[string]float64{"min": 1.0, "max": 1.2},
	}
	if !EvalCondition(c, ctx) {
		t.Fatal("expected ratio-mode between to match 110/100=1.1 in [1.0,1.2]")
	}
}

func TestConditionWithNaNOperandIsFalse(t *testing.T) {
	ctx := Context{Candle: candle.Candle{Close: 100}}
	c := Condition{Left: "unknown_ref", Predicate: "greater_than", Right: "1"}
	if EvalCondition(c, ctx) {
		t.Fatal("expected unresolved reference to make the condition false")
	}
}
