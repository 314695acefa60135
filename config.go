package lattice

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config carries the tunables of both tiers, loadable from a TOML file.
// Zero fields fall back to defaults in Options.
type Config struct {
	// HotCapacity bounds the hot tier's entry count.
	HotCapacity int `toml:"hot_capacity"`
	// HotTTLSeconds is the hot tier's default time-to-live.
	HotTTLSeconds int `toml:"hot_ttl_seconds"`
	// SweepIntervalSeconds is the background sweep period.
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	// Strategy is the cold store serialization, "json" or "sqlite".
	Strategy string `toml:"strategy"`
	// Fingerprint selects validation mode, "mtime" or "content".
	Fingerprint string `toml:"fingerprint"`
	// Exclude lists glob patterns skipped by scanning and fingerprinting.
	Exclude []string `toml:"exclude"`
	// AnalyzerTimeoutSeconds bounds one indexing pass. Zero means no bound.
	AnalyzerTimeoutSeconds int `toml:"analyzer_timeout_seconds"`
}

// DefaultConfig returns the built-in tunables.
func DefaultConfig() Config {
	return Config{
		HotCapacity:            256,
		HotTTLSeconds:          1800,
		SweepIntervalSeconds:   300,
		Strategy:               string(StrategyJSON),
		Fingerprint:            "mtime",
		AnalyzerTimeoutSeconds: 120,
	}
}

// LoadConfig reads a TOML config file. A missing file yields the defaults;
// a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("lattice: read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("lattice: parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("lattice: config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch Strategy(c.Strategy) {
	case StrategyJSON, StrategySQLite:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	switch c.Fingerprint {
	case "mtime", "content":
	default:
		return fmt.Errorf("unknown fingerprint mode %q", c.Fingerprint)
	}
	if c.HotCapacity < 0 || c.HotTTLSeconds < 0 || c.SweepIntervalSeconds < 0 || c.AnalyzerTimeoutSeconds < 0 {
		return errors.New("negative durations and capacities are not allowed")
	}
	return nil
}

// Options converts the config into coordinator options.
func (c Config) Options() []Option {
	opts := []Option{
		WithStrategy(Strategy(c.Strategy)),
	}
	if c.HotCapacity > 0 {
		opts = append(opts, WithHotCapacity(c.HotCapacity))
	}
	if c.HotTTLSeconds > 0 {
		opts = append(opts, WithHotTTL(time.Duration(c.HotTTLSeconds)*time.Second))
	}
	if c.SweepIntervalSeconds > 0 {
		opts = append(opts, WithSweepInterval(time.Duration(c.SweepIntervalSeconds)*time.Second))
	}
	if c.Fingerprint == "content" {
		opts = append(opts, WithContentHashes())
	}
	if len(c.Exclude) > 0 {
		opts = append(opts, WithExcludes(c.Exclude...))
	}
	return opts
}

// AnalyzerTimeout returns the configured per-pass bound, or zero when
// unbounded.
func (c Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutSeconds) * time.Second
}
