package config

import "testing"

func TestLoadFailsForMissingExplicitConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
	_ = cfg
}

func TestLoadDefaultsWhenNoConfigPathGiven(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.Name != "backtester" {
		t.Fatalf("expected default app name 'backtester', got %q", cfg.App.Name)
	}
	if cfg.App.Version != Version {
		t.Fatalf("expected default app version %q, got %q", Version, cfg.App.Version)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Engine.ProgressEveryNCandles != 100 {
		t.Fatalf("expected default progress cadence 100, got %d", cfg.Engine.ProgressEveryNCandles)
	}
	if cfg.Engine.CacheFlushThreshold != 1000 {
		t.Fatalf("expected default cache flush threshold 1000, got %d", cfg.Engine.CacheFlushThreshold)
	}
}

func TestValidateRejectsNegativePoolSize(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{PoolSize: -1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a negative database pool size")
	}
}

func TestValidateRejectsNegativeProgressCadence(t *testing.T) {
	cfg := Config{Engine: EngineConfig{ProgressEveryNCandles: -1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a negative progress cadence")
	}
}

func TestExchangeConfigTimeoutAndPacingDefaults(t *testing.T) {
	cfg := ExchangeConfig{}
	if cfg.GetTimeout().Seconds() != 30 {
		t.Fatalf("expected default timeout of 30s, got %v", cfg.GetTimeout())
	}
	if cfg.GetPacing().Milliseconds() != 100 {
		t.Fatalf("expected default pacing of 100ms, got %v", cfg.GetPacing())
	}
}
