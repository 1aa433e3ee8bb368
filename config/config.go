// Package config holds statwatch's on-disk tunables for the three engines,
// in the same shape as xtop's config.Config: a Default() constructor, a
// tolerant Load() that falls back to defaults and logs a warning on parse
// error, and a strict Save().
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ftahirops/statwatch/traffic"
	"github.com/ftahirops/statwatch/watch"
	"github.com/ftahirops/statwatch/watchdog"
)

// Config is the top-level on-disk configuration for all three engines.
type Config struct {
	Watch    WatchConfig    `json:"watch"`
	Watchdog WatchdogConfig `json:"watchdog"`
	Traffic  TrafficConfig  `json:"traffic"`
}

// WatchConfig holds the State Watcher engine's defaults.
type WatchConfig struct {
	BasePeriodMS      uint64 `json:"base_period_ms"`
	DefaultHysteresis int    `json:"default_hysteresis"`
}

// WatchdogConfig holds the Adaptive Watchdog engine's defaults.
type WatchdogConfig struct {
	MinTimeoutMS uint64 `json:"min_timeout_ms"`
}

// TrafficConfig holds the Traffic Sampler engine's defaults.
type TrafficConfig struct {
	SamplePeriodMS   uint64   `json:"sample_period_ms"`
	TargetInterfaces []string `json:"target_interfaces"`
}

// Default returns a Config with spec §6's documented constants.
func Default() Config {
	return Config{
		Watch: WatchConfig{
			BasePeriodMS:      watch.DefaultBasePeriodMS,
			DefaultHysteresis: 0,
		},
		Watchdog: WatchdogConfig{
			MinTimeoutMS: watchdog.MinTimeoutMS,
		},
		Traffic: TrafficConfig{
			SamplePeriodMS:   traffic.DefaultSamplePeriodMS,
			TargetInterfaces: nil,
		},
	}
}

// Path returns $XDG_CONFIG_HOME/statwatch/config.json, falling back to
// ~/.config/statwatch/config.json. Returns "" if the home directory cannot
// be determined (mirrors xtop's config.Path).
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // refuse to fall back to /tmp (security risk)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "statwatch", "config.json")
}

// Load loads config from disk; returns defaults on any error, logging a
// warning if the file exists but fails to parse.
func Load() Config {
	cfg := Default()
	p := Path()
	if p == "" {
		return cfg
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("statwatch: warning: config parse error: %v", err)
		return Default()
	}
	return cfg
}

// Save writes the config to disk.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("statwatch: cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
