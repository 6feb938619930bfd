package strategy

import (
	"testing"

	"github.com/ajitpratap0/backtester/internal/candle"
)

func validSchema() Schema {
	return Schema{
		Metadata:         Metadata{Name: "test strategy"},
		PrimaryTimeframe: candle.TF1h,
		Indicators: []IndicatorDefinition{
			{ID: "sma20", Type: "SMA", Params: map[string]float64{"period": 20}},
		},
		Signals: []SignalDefinition{
			{Kind: "entry_long", When: ConditionGroup{Operator: "AND"}},
		},
		Risk: RiskConfig{RiskPercent: 1},
	}
}

func TestRegistryPutAssignsIDAndDefaults(t *testing.T) {
	r := NewRegistry()
	s, err := r.Put(validSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Metadata.ID == "" {
		t.Fatal("expected Put to assign an id")
	}
	if s.Metadata.Version != "1.0.0" {
		t.Fatalf("expected default version 1.0.0, got %s", s.Metadata.Version)
	}
	if s.Metadata.Status != "draft" {
		t.Fatalf("expected default status draft, got %s", s.Metadata.Status)
	}
}

func TestRegistryUpdateBumpsPatchAndRecordsHistory(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Put(validSchema())

	updated, err := r.Update(s.Metadata.ID, func(s *Schema) {
		s.Metadata.Description = "updated"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Metadata.Version != "1.0.1" {
		t.Fatalf("expected version bumped to 1.0.1, got %s", updated.Metadata.Version)
	}
	hist := r.History(s.Metadata.ID)
	if len(hist) != 1 {
		t.Fatalf("expected one history record, got %d", len(hist))
	}
	if hist[0].Version != "1.0.1" {
		t.Fatalf("expected history record at 1.0.1, got %s", hist[0].Version)
	}
}

func TestRegistryCloneResetsVersionAndStatus(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Put(validSchema())
	r.Update(s.Metadata.ID, func(s *Schema) { s.Metadata.Status = "active" })

	clone, err := r.Clone(s.Metadata.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clone.Metadata.ID == s.Metadata.ID {
		t.Fatal("expected clone to get a new id")
	}
	if clone.Metadata.Name != "test strategy (Copy)" {
		t.Fatalf("expected name suffixed with (Copy), got %s", clone.Metadata.Name)
	}
	if clone.Metadata.Version != "1.0.0" {
		t.Fatalf("expected clone version reset to 1.0.0, got %s", clone.Metadata.Version)
	}
	if clone.Metadata.Status != "draft" {
		t.Fatalf("expected clone status reset to draft, got %s", clone.Metadata.Status)
	}
}

func TestRegistryGetUnknownID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nonexistent"); err != ErrUnknownStrategy {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestSchemaValidateRejectsEmptySignals(t *testing.T) {
	s := validSchema()
	s.Signals = nil
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for empty signals")
	}
}

func TestSchemaValidateRejectsUnknownTimeframe(t *testing.T) {
	s := validSchema()
	s.PrimaryTimeframe = "7m"
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for unknown timeframe")
	}
}
