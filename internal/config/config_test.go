package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
mode: prod
modes:
  prod:
    run_duration: 0
    max_workers: 4
    symbols:
      - symbol: btcusdt
        streams: ["aggTrade", "depth"]
storage:
  output_directory: /tmp/out
network:
  timeout: 10
performance:
  batch_size: 50
  flush_interval: 0.5
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "prod" {
		t.Fatalf("Mode = %q, want prod", cfg.Mode)
	}
	profile := cfg.Profile()
	if len(profile.Symbols) != 1 {
		t.Fatalf("len(Symbols) = %d, want 1", len(profile.Symbols))
	}
	if profile.Symbols[0].Symbol != "BTCUSDT" {
		t.Fatalf("Symbol = %q, want upper-cased BTCUSDT", profile.Symbols[0].Symbol)
	}
	if cfg.Network.TimeoutSeconds != 10 {
		t.Fatalf("TimeoutSeconds = %d, want 10", cfg.Network.TimeoutSeconds)
	}
	if cfg.Performance.QueueMaxSize != 10000 {
		t.Fatalf("QueueMaxSize default = %d, want 10000", cfg.Performance.QueueMaxSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadUnknownMode(t *testing.T) {
	path := writeTempConfig(t, `
mode: staging
modes:
  prod:
    symbols:
      - symbol: btcusdt
        streams: ["aggTrade"]
storage:
  output_directory: /tmp/out
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestLoadNoSymbols(t *testing.T) {
	path := writeTempConfig(t, `
mode: prod
modes:
  prod:
    symbols: []
storage:
  output_directory: /tmp/out
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty symbol set")
	}
}

func TestSymbolDefaults(t *testing.T) {
	sym := SymbolConfig{Symbol: "ETHUSDT"}
	if !sym.DepthSnapshotEnabled() {
		t.Fatalf("DepthSnapshotEnabled default should be true")
	}
	if !sym.IsEnabled() {
		t.Fatalf("IsEnabled default should be true")
	}
	disabled := false
	sym.Enabled = &disabled
	if sym.IsEnabled() {
		t.Fatalf("IsEnabled should respect explicit false")
	}
}
