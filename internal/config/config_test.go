package config

import (
	"testing"
	"time"
)

func TestLoadReadsLedgerSettings(t *testing.T) {
	t.Setenv("SWEEP_SCHEDULE", "@every 1m")
	t.Setenv("HISTORY_DEFAULT_LIMIT", "10")
	t.Setenv("USER_LOCK_TTL", "bogus")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg := Load()
	if cfg.SweepSchedule != "@every 1m" {
		t.Fatalf("expected sweep schedule from env, got %q", cfg.SweepSchedule)
	}
	if cfg.HistoryDefaultLimit != 10 {
		t.Fatalf("expected history limit 10, got %d", cfg.HistoryDefaultLimit)
	}
	if cfg.UserLockTTL != 10*time.Second {
		t.Fatalf("expected fallback lock ttl, got %s", cfg.UserLockTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestParseStringSliceSkipsEmpty(t *testing.T) {
	got := parseStringSlice("a,,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected slice: %v", got)
	}
}
