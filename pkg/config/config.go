// Package config loads the engine's static options: data directory,
// quota defaults, search limits, and logging, mirroring the plain
// struct-plus-YAML pattern cmd/shelfdb uses to configure the engine
// (spec §9 "global static options").
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelfdb/shelfdb/pkg/log"
)

// Config is the engine's full static configuration.
type Config struct {
	DataDir string `yaml:"dataDir"`

	Log LogConfig `yaml:"log"`

	Quota   QuotaConfig   `yaml:"quota"`
	Search  SearchConfig  `yaml:"search"`
	Profile ProfileConfig `yaml:"profile"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"jsonOutput"`
}

// QuotaConfig sets the default per-owner quota applied when a kind's
// put-quotas operation hasn't set one explicitly (spec §4.4).
type QuotaConfig struct {
	DefaultBytes int64 `yaml:"defaultBytes"`
}

// SearchConfig bounds the search cursor's in-memory materialization and
// worker pool (spec §4.6).
type SearchConfig struct {
	MaxResults int           `yaml:"maxResults"`
	WorkerPool int           `yaml:"workerPool"`
	CacheSize  int           `yaml:"cacheSize"`
	CacheTTL   time.Duration `yaml:"cacheTTL"`
}

// ProfileConfig gates the profiling/metrics surface (spec §4.10).
type ProfileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the engine's built-in defaults.
func Default() Config {
	return Config{
		DataDir: "./data",
		Log: LogConfig{
			Level: "info",
		},
		Quota: QuotaConfig{
			DefaultBytes: 25 * 1024 * 1024,
		},
		Search: SearchConfig{
			MaxResults: 10000,
			WorkerPool: 4,
			CacheSize:  256,
			CacheTTL:   30 * time.Second,
		},
		Profile: ProfileConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies
// SHELFDB_-prefixed environment overrides. A missing path is not an
// error: callers pass "" to get defaults-plus-env only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SHELFDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SHELFDB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SHELFDB_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSONOutput = b
		}
	}
	if v := os.Getenv("SHELFDB_QUOTA_DEFAULT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.DefaultBytes = n
		}
	}
	if v := os.Getenv("SHELFDB_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("SHELFDB_SEARCH_WORKER_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.WorkerPool = n
		}
	}
	if v := os.Getenv("SHELFDB_PROFILE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Profile.Enabled = b
		}
	}
	if v := os.Getenv("SHELFDB_PROFILE_ADDR"); v != "" {
		cfg.Profile.Addr = v
	}
}

// InitLogging wires Config.Log into pkg/log, matching
// cmd/warren/main.go's initLogging hook.
func InitLogging(cfg Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSONOutput,
	})
}
