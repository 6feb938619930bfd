// Package strategy defines the declarative strategy schema (spec §3) and the
// in-memory registry, version bump, and clone semantics (spec §6).
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/backtester/internal/candle"
)

// ValidationError contains details about a single schema validation failure,
// adapted from the teacher's metadata/risk/orchestration validators into a
// single strategy-schema validator.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failure found in one Validate call.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid strategy: %s", strings.Join(msgs, "; "))
}

var ErrUnknownStrategy = errors.New("strategy: unknown id")

// IndicatorDefinition declares one indicator instance a strategy needs
// computed, on a given timeframe.
// PriceSource tags on an IndicatorDefinition select which per-candle price
// feeds the indicator's calculation (spec §3 "optional price-source tag",
// §4.1 "chosen price source"). An empty value means "close", the
// historical default.
type IndicatorDefinition struct {
	ID          string             `yaml:"id" json:"id"`
	Type        string             `yaml:"type" json:"type"`
	Timeframe   candle.Timeframe   `yaml:"timeframe" json:"timeframe"`
	PriceSource string             `yaml:"source,omitempty" json:"source,omitempty"` // open, high, low, close, hl2, hlc3, ohlc4
	Params      map[string]float64 `yaml:"params" json:"params"`
}

// ComputedVariable names a derived value evaluated with the recursive-
// descent expression parser (internal/strategy/eval).
type ComputedVariable struct {
	ID         string `yaml:"id" json:"id"`
	Expression string `yaml:"expression" json:"expression"`
}

// Condition is a single predicate referencing two operands, evaluated by
// internal/strategy/eval.
type Condition struct {
	Left      string             `yaml:"left" json:"left"`
	Predicate string             `yaml:"predicate" json:"predicate"`
	Right     string             `yaml:"right,omitempty" json:"right,omitempty"`
	Params    map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// ConditionGroup combines Conditions and nested groups with AND/OR. An
// empty group (no conditions, no nested groups) evaluates to true.
type ConditionGroup struct {
	Operator   string           `yaml:"operator" json:"operator"` // "AND" or "OR"
	Conditions []Condition      `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Groups     []ConditionGroup `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// SignalDefinition maps a condition group to a signal kind. Filters is the
// optional second tree from spec §3 ("mandatory conditions, optional
// filters") — it is only evaluated once When already holds, and both must
// hold for the signal to fire. A zero-value Filters (no conditions, no
// groups) is vacuously true, so omitting it is the common case.
type SignalDefinition struct {
	Kind    string         `yaml:"kind" json:"kind"` // entry_long, entry_short, exit_long, exit_short
	When    ConditionGroup `yaml:"when" json:"when"`
	Filters ConditionGroup `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// RiskConfig holds the simulator-facing risk parameters a strategy
// declares. Leverage is carried but not applied to sizing, per spec §9 open
// question 2 — informational only.
type RiskConfig struct {
	RiskPercent        float64 `yaml:"riskPercent" json:"riskPercent"`
	StopLossMode       string  `yaml:"stopLossMode,omitempty" json:"stopLossMode,omitempty"`     // fixed_percent, fixed_price, atr_multiple
	StopLossValue      float64 `yaml:"stopLossValue,omitempty" json:"stopLossValue,omitempty"`
	TakeProfitMode     string  `yaml:"takeProfitMode,omitempty" json:"takeProfitMode,omitempty"` // fixed_percent, fixed_price, atr_multiple, risk_reward
	TakeProfitValue    float64 `yaml:"takeProfitValue,omitempty" json:"takeProfitValue,omitempty"`
	TrailingActivation float64 `yaml:"trailingActivation,omitempty" json:"trailingActivation,omitempty"`
	TrailingPercent    float64 `yaml:"trailingPercent,omitempty" json:"trailingPercent,omitempty"`
	Leverage           float64 `yaml:"leverage,omitempty" json:"leverage,omitempty"`
	MaxOpenPositions   int     `yaml:"maxOpenPositions,omitempty" json:"maxOpenPositions,omitempty"`
	TimeoutCandles     int     `yaml:"timeoutCandles,omitempty" json:"timeoutCandles,omitempty"` // 0 disables time-based exit
}

// Metadata carries the bookkeeping fields strategy persistence (spec §6)
// manipulates: id, version, status, timestamps are owned by Registry, not
// the caller.
type Metadata struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string   `yaml:"version" json:"version"`
	Status      string   `yaml:"status" json:"status"` // draft, active, archived
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Schema is a complete declarative strategy: indicators to compute,
// computed variables, and the signal rules that drive the executor.
type Schema struct {
	Metadata          Metadata              `yaml:"metadata" json:"metadata"`
	PrimaryTimeframe  candle.Timeframe      `yaml:"primaryTimeframe" json:"primaryTimeframe"`
	Indicators        []IndicatorDefinition `yaml:"indicators" json:"indicators"`
	ComputedVariables []ComputedVariable    `yaml:"computedVariables,omitempty" json:"computedVariables,omitempty"`
	Signals           []SignalDefinition    `yaml:"signals" json:"signals"`
	Risk              RiskConfig            `yaml:"risk" json:"risk"`
	Lookback          int                   `yaml:"lookback,omitempty" json:"lookback,omitempty"`
}

// Validate checks schema-level invariants. Indicator type existence is
// checked later by the executor against the live registry (spec §7
// unknown_indicator_type is a warn-and-skip, not a hard validation error).
func (s *Schema) Validate() error {
	var errs ValidationErrors

	if s.Metadata.Name == "" {
		errs = append(errs, ValidationError{Field: "metadata.name", Message: "strategy name is required"})
	}
	if !s.PrimaryTimeframe.Valid() {
		errs = append(errs, ValidationError{Field: "primaryTimeframe", Message: fmt.Sprintf("unknown timeframe %q", s.PrimaryTimeframe)})
	}

	ids := make(map[string]bool)
	for i, ind := range s.Indicators {
		if ind.ID == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("indicators[%d].id", i), Message: "indicator id is required"})
			continue
		}
		if ids[ind.ID] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("indicators[%d].id", i), Message: "duplicate indicator id"})
		}
		ids[ind.ID] = true
		if ind.Timeframe != "" && !ind.Timeframe.Valid() {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("indicators[%d].timeframe", i), Message: "unknown timeframe"})
		}
	}

	for i, v := range s.ComputedVariables {
		if v.ID == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("computedVariables[%d].id", i), Message: "variable id is required"})
		}
		if v.Expression == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("computedVariables[%d].expression", i), Message: "expression is required"})
		}
	}

	if len(s.Signals) == 0 {
		errs = append(errs, ValidationError{Field: "signals", Message: "at least one signal definition is required"})
	}
	for i, sig := range s.Signals {
		switch sig.Kind {
		case "entry_long", "entry_short", "exit_long", "exit_short":
		default:
			errs = append(errs, ValidationError{Field: fmt.Sprintf("signals[%d].kind", i), Message: fmt.Sprintf("unknown signal kind %q", sig.Kind)})
		}
	}

	if s.Risk.RiskPercent < 0 {
		errs = append(errs, ValidationError{Field: "risk.riskPercent", Message: "must be >= 0"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequiredWarmup is max(lookback, every declared indicator's required
// warmup), per spec §4.3.
func (s *Schema) RequiredWarmup(resolve func(indicatorType string) (requiredWarmup func(map[string]float64) int, ok bool)) int {
	warmup := s.Lookback
	for _, ind := range s.Indicators {
		fn, ok := resolve(ind.Type)
		if !ok {
			continue
		}
		if w := fn(ind.Params); w > warmup {
			warmup = w
		}
	}
	return warmup
}
