// Package config loads VM tuning parameters from a YAML file: a defaults
// struct populated then selectively overridden by whatever the file sets,
// using gopkg.in/yaml.v3 rather than a hand-rolled parser.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// VMConfig mirrors vm.Options' tuning fields (stress GC, initial heap
// threshold, growth factor, max pin depth), with LogLevel standing in for
// vm.Options' Logger. The initial threshold lets tests observe a
// collection without allocating a megabyte of churn first.
type VMConfig struct {
	// StressGC forces a collection on every allocation when true.
	StressGC bool `yaml:"stress_gc"`
	// InitialGCThreshold overrides the 1 MiB default nextGC starts at.
	// Zero means "use the default".
	InitialGCThreshold int `yaml:"initial_gc_threshold"`
	// GrowthFactor overrides the nextGC = totalAllocated * factor growth
	// rule's default of 1.5. Zero means "use the default".
	GrowthFactor float64 `yaml:"growth_factor"`
	// MaxPinDepth overrides the default cap on simultaneously pinned
	// values. Zero means "use the default".
	MaxPinDepth int `yaml:"max_pin_depth"`
	// LogLevel is one of "debug", "info", "warn", "error" (log/slog's
	// own vocabulary); anything else falls back to "info".
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration a VM gets when no file is supplied.
func Default() VMConfig {
	return VMConfig{LogLevel: "info"}
}

// SlogLevel maps LogLevel to its log/slog equivalent, defaulting to Info
// for anything unrecognized rather than rejecting the config outright.
func (c VMConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so a partial file only overrides what it mentions.
func Load(path string) (VMConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
