package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FETCH_CONCURRENCY", "")
	t.Setenv("MAX_HIGHLIGHTS", "")
	t.Setenv("DEFAULT_HIGHLIGHTS", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.FetchConcurrency != 10 {
		t.Errorf("FetchConcurrency = %d, want 10", cfg.FetchConcurrency)
	}
	if cfg.MaxVideoDurationS != 18000 {
		t.Errorf("MaxVideoDurationS = %d, want 18000", cfg.MaxVideoDurationS)
	}
	if cfg.MaxHighlights != 10 {
		t.Errorf("MaxHighlights = %d, want 10", cfg.MaxHighlights)
	}
	if cfg.DefaultHighlights != 3 {
		t.Errorf("DefaultHighlights = %d, want 3", cfg.DefaultHighlights)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default DB DSN, got empty")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadInvalidConcurrency(t *testing.T) {
	t.Setenv("FETCH_CONCURRENCY", "0")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for FETCH_CONCURRENCY=0")
	}
	t.Setenv("FETCH_CONCURRENCY", "-3")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for negative FETCH_CONCURRENCY")
	}
}

func TestDefaultClampedToMax(t *testing.T) {
	t.Setenv("MAX_HIGHLIGHTS", "2")
	t.Setenv("DEFAULT_HIGHLIGHTS", "5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DefaultHighlights != 2 {
		t.Errorf("DefaultHighlights = %d, want clamped to 2", cfg.DefaultHighlights)
	}
}

func TestValidateAPIReady(t *testing.T) {
	t.Setenv("APP_SECRET", "secret")
	t.Setenv("TWITCH_CLIENT_ID", "cid")
	t.Setenv("TWITCH_CLIENT_SECRET", "csecret")
	cfg, _ := Load()
	if err := cfg.ValidateAPIReady(); err != nil {
		t.Errorf("expected valid api config, got %v", err)
	}

	t.Setenv("APP_SECRET", "")
	cfg, _ = Load()
	if err := cfg.ValidateAPIReady(); err == nil {
		t.Errorf("expected error when APP_SECRET missing")
	}

	t.Setenv("APP_SECRET", "secret")
	t.Setenv("TWITCH_CLIENT_ID", "")
	cfg, _ = Load()
	if err := cfg.ValidateAPIReady(); err == nil {
		t.Errorf("expected error when twitch creds missing")
	}
}
