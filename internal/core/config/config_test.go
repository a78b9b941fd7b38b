package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "SEARCH_RADIUS_M", "H3_RES", "CACHE_INDEX_RES", "SCENARIO", "CACHE_TTL", "LOCAL_CACHE_TTL"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.SearchRadiusM != 5000 || cfg.H3Res != 8 || cfg.Scenario != "baseline" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CacheIndexRes != 5 {
		t.Fatalf("index res=%d want 5", cfg.CacheIndexRes)
	}
	if cfg.LocalCacheTTL != 5*time.Minute {
		t.Fatalf("local ttl=%v want half of cache ttl", cfg.LocalCacheTTL)
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("H3_RES", "22")
	t.Setenv("SEARCH_RADIUS_M", "-4")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("EVENTS_ENABLED", "yes")
	cfg := FromEnv()
	if cfg.H3Res != 8 || cfg.SearchRadiusM != 5000 || cfg.CacheTTL != 10*time.Minute {
		t.Fatalf("invalid values should fall back: %+v", cfg)
	}
	if !cfg.Events.Enabled {
		t.Fatalf("EVENTS_ENABLED=yes should enable events")
	}
}

func TestFromEnv_IndexResNeverFinerThanH3Res(t *testing.T) {
	t.Setenv("H3_RES", "4")
	t.Setenv("CACHE_INDEX_RES", "7")
	cfg := FromEnv()
	if cfg.CacheIndexRes != 4 {
		t.Fatalf("index res=%d want 4", cfg.CacheIndexRes)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("MAPTILER_API_KEY=from-file\nADDR=:7000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ADDR", ":9999")
	t.Setenv("MAPTILER_API_KEY", "")
	_ = os.Unsetenv("MAPTILER_API_KEY")

	LoadDotEnv(p, filepath.Join(dir, "missing.env"))
	t.Cleanup(func() { _ = os.Unsetenv("MAPTILER_API_KEY") })

	if got := os.Getenv("MAPTILER_API_KEY"); got != "from-file" {
		t.Fatalf("MAPTILER_API_KEY=%q want from-file", got)
	}
	if got := os.Getenv("ADDR"); got != ":9999" {
		t.Fatalf("existing ADDR overridden: %q", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a:1, ,b:2,")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("got %v", got)
	}
}
