// Package config loads the offsyncd configuration from defaults, an optional
// YAML/TOML/JSON file, OFFSYNC_* environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values
const (
	DefaultListen        = "127.0.0.1:8787"
	DefaultGeneration    = "app-cache-v1.0.0"
	DefaultAPIPrefix     = "/api/"
	DefaultOfflinePath   = "/offline"
	DefaultProvider      = "ristretto"
	DefaultCodec         = "cbor"
	DefaultMaxCost       = 64 << 20
	DefaultOutboxPath    = "offsync/outbox.db"
	DefaultTasksTable    = "pending_tasks"
	DefaultHabitsTable   = "pending_habits"
	DefaultTaskEndpoint  = "/api/tasks"
	DefaultHabitEndpoint = "/api/habits"
	DefaultCheckInterval = 15 * time.Second
	DefaultLogBackend    = "zap"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
)

var DefaultPrecache = []string{"/", "/offline", "/manifest.json"}

// Holds the configuration options for offsyncd
type Config struct {
	// Address the worker proxy listens on
	Listen string `mapstructure:"listen"`

	// Application origin (scheme://host) the worker fronts
	Origin string `mapstructure:"origin"`

	// Cache generation; changing it installs a new worker
	Generation string `mapstructure:"generation"`

	// Paths fetched into the cache on install
	Precache []string `mapstructure:"precache"`

	APIPrefix   string `mapstructure:"api_prefix"`
	OfflinePath string `mapstructure:"offline_path"`

	Cache  CacheConfig  `mapstructure:"cache"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Outbox OutboxConfig `mapstructure:"outbox"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
}

type CacheConfig struct {
	Provider      string `mapstructure:"provider"` // ristretto | bigcache | redis
	Codec         string `mapstructure:"codec"`    // cbor | msgpack | json
	MaxEntryBytes int    `mapstructure:"max_entry_bytes"`
	MaxCost       int64  `mapstructure:"max_cost"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type OutboxConfig struct {
	Path        string `mapstructure:"path"`
	TasksTable  string `mapstructure:"tasks_table"`
	HabitsTable string `mapstructure:"habits_table"`
}

type SyncConfig struct {
	TaskEndpoint  string        `mapstructure:"task_endpoint"`
	HabitEndpoint string        `mapstructure:"habit_endpoint"`
	CheckURL      string        `mapstructure:"check_url"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	EntryIDHeader string        `mapstructure:"entry_id_header"`
}

type LogConfig struct {
	Backend    string `mapstructure:"backend"` // zap | logrus | slog
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json | console
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`

	// Hooks logs cache and delivery events through sampled slog hooks.
	Hooks      bool   `mapstructure:"hooks"`
	HookSample uint64 `mapstructure:"hook_sample"`
	HookQueue  int    `mapstructure:"hook_queue"`
}

// Validate checks the fields the daemon cannot run without and normalizes
// paths. Commands that only touch the outbox call ValidateOutbox instead.
func (c *Config) Validate() error {
	if err := c.ValidateOutbox(); err != nil {
		return err
	}
	if c.Origin == "" {
		return errors.New("origin is required")
	}
	u, err := url.Parse(c.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid origin %q: want scheme://host", c.Origin)
	}
	if c.Generation == "" {
		return errors.New("generation is required")
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("api_prefix must start with /: %q", c.APIPrefix)
	}
	switch c.Cache.Provider {
	case "ristretto", "bigcache":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis cache provider")
		}
	default:
		return fmt.Errorf("unknown cache provider: %s", c.Cache.Provider)
	}
	switch c.Cache.Codec {
	case "cbor", "msgpack", "json":
	default:
		return fmt.Errorf("unknown cache codec: %s", c.Cache.Codec)
	}
	switch c.Log.Backend {
	case "zap", "logrus", "slog":
	default:
		return fmt.Errorf("unknown log backend: %s", c.Log.Backend)
	}
	return nil
}

func (c *Config) ValidateOutbox() error {
	if c.Outbox.Path == "" {
		return errors.New("outbox.path is required")
	}
	abs, err := filepath.Abs(c.Outbox.Path)
	if err != nil {
		return fmt.Errorf("invalid outbox path: %v", err)
	}
	c.Outbox.Path = abs
	return nil
}
