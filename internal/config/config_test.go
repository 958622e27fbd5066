package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_THRESHOLD", "")
	t.Setenv("FALLBACK_MULTIPLIER", "")
	t.Setenv("RETRIEVAL_MIN_RESULTS", "")
	t.Setenv("FULL_FETCH_MAX_FRAGMENTS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchThreshold != 0.35 {
		t.Fatalf("expected default threshold 0.35, got %f", cfg.SearchThreshold)
	}
	if cfg.FallbackMultiplier != 0.7 {
		t.Fatalf("expected default multiplier 0.7, got %f", cfg.FallbackMultiplier)
	}
	if cfg.RetrievalMinResults != 3 {
		t.Fatalf("expected default min results 3, got %d", cfg.RetrievalMinResults)
	}
	if cfg.FullFetchMaxFragments != 100 {
		t.Fatalf("expected default full-fetch cap 100, got %d", cfg.FullFetchMaxFragments)
	}
	if !cfg.FallbackEnabled {
		t.Fatalf("expected fallback enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_THRESHOLD", "0.5")
	t.Setenv("FALLBACK_ENABLED", "false")
	t.Setenv("AGGREGATE_MAX_CHARS", "2000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchThreshold != 0.5 {
		t.Fatalf("expected threshold override, got %f", cfg.SearchThreshold)
	}
	if cfg.FallbackEnabled {
		t.Fatalf("expected fallback disabled")
	}
	if cfg.AggregateMaxChars != 2000 {
		t.Fatalf("expected max chars override, got %d", cfg.AggregateMaxChars)
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte("search_threshold: 0.25\nretrieval_top_k: 12\nqdrant_collection: expedientes_test\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_THRESHOLD", "0.45")
	t.Setenv("RETRIEVAL_TOP_K", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchThreshold != 0.45 {
		t.Fatalf("env must override file, got %f", cfg.SearchThreshold)
	}
	if cfg.RetrievalTopK != 12 {
		t.Fatalf("expected file value for top_k, got %d", cfg.RetrievalTopK)
	}
	if cfg.QdrantCollection != "expedientes_test" {
		t.Fatalf("expected file value for collection, got %q", cfg.QdrantCollection)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
