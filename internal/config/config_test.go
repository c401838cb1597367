package config

import "testing"

func TestDefaultPassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsNonPositiveCap(t *testing.T) {
	cfg := Default()
	cfg.Budget.HistoryTokenCap = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero history token cap")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	cfg.Planner.CriticThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range critic threshold")
	}
}

func TestLoadPathMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadPath("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Retrieval.TopK != Default().Retrieval.TopK {
		t.Fatalf("expected default top_k, got %d", cfg.Retrieval.TopK)
	}
}
