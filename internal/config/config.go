// Package config loads the immutable run configuration: run mode,
// symbol/stream selection, and the network/storage/performance/logging
// knobs. It is loaded once at startup via Load and handed down by
// pointer; nothing in this module re-reads it at runtime.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SymbolConfig selects one symbol's streams and snapshot policy.
type SymbolConfig struct {
	Symbol        string   `yaml:"symbol"`
	Streams       []string `yaml:"streams"`
	DepthSnapshot *bool    `yaml:"depth_snapshot"`
	Enabled       *bool    `yaml:"enabled"`
}

// DepthSnapshotEnabled reports whether the REST snapshot path runs for this
// symbol, defaulting to true.
func (s SymbolConfig) DepthSnapshotEnabled() bool {
	return s.DepthSnapshot == nil || *s.DepthSnapshot
}

// IsEnabled reports whether this symbol's worker should be spawned at all,
// defaulting to true.
func (s SymbolConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ProfileConfig is one entry of modes.<profile> in the YAML schema.
type ProfileConfig struct {
	RunDuration int            `yaml:"run_duration"`
	MaxWorkers  int            `yaml:"max_workers"`
	Symbols     []SymbolConfig `yaml:"symbols"`
}

// NetworkConfig holds network.* knobs.
type NetworkConfig struct {
	TimeoutSeconds int `yaml:"timeout"`
}

// StorageConfig holds storage.* knobs.
type StorageConfig struct {
	OutputDirectory string `yaml:"output_directory"`
}

// PerformanceConfig holds performance.* knobs.
type PerformanceConfig struct {
	QueueMaxSize    int    `yaml:"queue_maxsize"`
	BatchSize       int    `yaml:"batch_size"`
	FlushInterval   float64 `yaml:"flush_interval"`
	ProcessPriority string `yaml:"process_priority"`
}

// LoggingConfig holds logging.* knobs.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the fully parsed, validated configuration for one run.
type Config struct {
	Mode        string                   `yaml:"mode"`
	Modes       map[string]ProfileConfig `yaml:"modes"`
	Network     NetworkConfig            `yaml:"network"`
	Storage     StorageConfig            `yaml:"storage"`
	Performance PerformanceConfig        `yaml:"performance"`
	Logging     LoggingConfig            `yaml:"logging"`
}

// Profile returns the active profile selected by Mode.
func (c *Config) Profile() ProfileConfig {
	return c.Modes[c.Mode]
}

// Load reads and parses the YAML configuration file at path, applies
// defaults, validates it, and returns the result. A missing file,
// unparseable structure, or unknown mode is a configuration error and is
// returned as an annotated, wrapped error so cmd/ingest can exit with
// code 1.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Network.TimeoutSeconds <= 0 {
		cfg.Network.TimeoutSeconds = 30
	}
	if cfg.Performance.QueueMaxSize <= 0 {
		cfg.Performance.QueueMaxSize = 10000
	}
	if cfg.Performance.BatchSize <= 0 {
		cfg.Performance.BatchSize = 100
	}
	if cfg.Performance.FlushInterval <= 0 {
		cfg.Performance.FlushInterval = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	for mode, profile := range cfg.Modes {
		normalized := make([]SymbolConfig, 0, len(profile.Symbols))
		for _, sym := range profile.Symbols {
			sym.Symbol = strings.ToUpper(strings.TrimSpace(sym.Symbol))
			normalized = append(normalized, sym)
		}
		profile.Symbols = normalized
		cfg.Modes[mode] = profile
	}
}

// Validate checks structural correctness: an unknown mode, an empty symbol
// set, or a missing output directory is a fail-fast configuration error.
func (c *Config) Validate() error {
	if c.Mode == "" {
		return fmt.Errorf("config: mode is required")
	}
	profile, ok := c.Modes[c.Mode]
	if !ok {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if len(profile.Symbols) == 0 {
		return fmt.Errorf("config: mode %q has no symbols configured", c.Mode)
	}
	for _, sym := range profile.Symbols {
		if sym.Symbol == "" {
			return fmt.Errorf("config: mode %q has a symbol entry with an empty symbol", c.Mode)
		}
		if sym.IsEnabled() && len(sym.Streams) == 0 {
			return fmt.Errorf("config: symbol %q has no streams configured", sym.Symbol)
		}
	}
	if c.Storage.OutputDirectory == "" {
		return fmt.Errorf("config: storage.output_directory is required")
	}
	return nil
}
