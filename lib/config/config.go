// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the mount daemon's configuration. Every field here except
// cache.prefetch_ahead also has a command-line flag; precedence is
// flag > config file > the defaults returned by [Default].
type Config struct {
	// Cache configures the per-capture frame cache.
	Cache CacheConfig `yaml:"cache"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Mount configures FUSE mount behavior.
	Mount MountConfig `yaml:"mount"`
}

// CacheConfig configures the bounded, uniform-size frame cache kept
// per mounted capture.
type CacheConfig struct {
	// Depth is the maximum number of decoded frames retained per
	// capture before the oldest is evicted.
	// Default: 4
	Depth int `yaml:"depth"`

	// PrefetchAhead is the number of frames past the most recently
	// read one to eagerly decode in the background.
	// Default: 1
	PrefetchAhead int `yaml:"prefetch_ahead"`
}

// LogConfig configures the slog JSON handler written to stderr.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: info
	Level string `yaml:"level"`
}

// MountConfig configures the FUSE mount itself.
type MountConfig struct {
	// AllowOther permits users other than the mount owner to access
	// the filesystem. Requires user_allow_other in /etc/fuse.conf.
	// Default: false
	AllowOther bool `yaml:"allow_other"`

	// Threads selects how go-fuse serves requests: 1 means
	// single-threaded cooperative serving, and any value greater than
	// 1 enables go-fuse's multi-threaded request loop. The value does
	// not set a worker count; go-fuse manages its own goroutines.
	// Default: 1
	Threads int `yaml:"threads"`

	// StatsFile, if set, is a path the daemon periodically overwrites
	// with a JSON monitor.Snapshot for mcrawfs-monitor to poll.
	// Default: "" (disabled)
	StatsFile string `yaml:"stats_file"`

	// StatsInterval is how often StatsFile is rewritten, expressed as
	// a duration string (e.g. "1s").
	// Default: 1s
	StatsInterval string `yaml:"stats_interval"`
}

// Default returns the configuration used before a config file or
// flags are applied. These give every field a sensible value so a
// mount works with nothing but a capture path argument; LoadFile
// merges a config file onto them when one is given.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Depth:         4,
			PrefetchAhead: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mount: MountConfig{
			AllowOther:    false,
			Threads:       1,
			StatsFile:     "",
			StatsInterval: "1s",
		},
	}
}

// LoadFile loads configuration from a specific file path, merging
// onto [Default]. A path that cannot be read or parsed is an error;
// callers that have no config file skip LoadFile and use [Default].
//
// The only field expanded is StatsFile: ${VAR} and ${VAR:-default}
// patterns in it are replaced from the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.Mount.StatsFile = expandVars(cfg.Mount.StatsFile)

	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for values that would prevent the
// daemon from starting.
func (c *Config) Validate() error {
	if c.Cache.Depth < 1 {
		return fmt.Errorf("config: cache.depth must be at least 1, got %d", c.Cache.Depth)
	}
	if c.Cache.PrefetchAhead < 0 {
		return fmt.Errorf("config: cache.prefetch_ahead must not be negative, got %d", c.Cache.PrefetchAhead)
	}
	if c.Cache.PrefetchAhead >= c.Cache.Depth {
		return fmt.Errorf("config: cache.prefetch_ahead (%d) must be less than cache.depth (%d)", c.Cache.PrefetchAhead, c.Cache.Depth)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	if c.Mount.Threads < 1 {
		return fmt.Errorf("config: mount.threads must be at least 1, got %d", c.Mount.Threads)
	}
	return nil
}

// ExpandPath applies ${VAR} and ${VAR:-default} expansion to an
// arbitrary path. cmd/mcrawfs does not call it; a --stats-file flag
// value is used as given.
func ExpandPath(path string) string {
	return expandVars(path)
}
