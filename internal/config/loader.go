package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix for environment overrides, e.g. OFFSYNC_SYNC_CHECK_URL.
const EnvPrefix = "OFFSYNC"

// Loader owns one viper instance so tests and commands do not share state.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("origin", "")
	v.SetDefault("generation", DefaultGeneration)
	v.SetDefault("precache", DefaultPrecache)
	v.SetDefault("api_prefix", DefaultAPIPrefix)
	v.SetDefault("offline_path", DefaultOfflinePath)
	v.SetDefault("cache.provider", DefaultProvider)
	v.SetDefault("cache.codec", DefaultCodec)
	v.SetDefault("cache.max_entry_bytes", 0)
	v.SetDefault("cache.max_cost", DefaultMaxCost)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("outbox.path", defaultOutboxPath())
	v.SetDefault("outbox.tasks_table", DefaultTasksTable)
	v.SetDefault("outbox.habits_table", DefaultHabitsTable)
	v.SetDefault("sync.task_endpoint", DefaultTaskEndpoint)
	v.SetDefault("sync.habit_endpoint", DefaultHabitEndpoint)
	v.SetDefault("sync.check_url", "")
	v.SetDefault("sync.check_interval", DefaultCheckInterval)
	v.SetDefault("sync.entry_id_header", "")
	v.SetDefault("log.backend", DefaultLogBackend)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.hooks", false)
	v.SetDefault("log.hook_sample", 100)
	v.SetDefault("log.hook_queue", 1024)
}

// defaultOutboxPath lives under the user's data directory so the daemon and
// the CLI find the same database without configuration.
func defaultOutboxPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, DefaultOutboxPath)
	}
	return DefaultOutboxPath
}

// BindFlags binds command flags to their configuration keys. Flags without a
// key are ignored.
func (l *Loader) BindFlags(fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load reads path (or offsync.{yaml,toml,json} from the working directory and
// the user config directory when path is empty) and decodes the result.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName("offsync")
		l.v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(dir, "offsync"))
		}
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// File is the config file in use, empty when running on defaults.
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

// Watch calls onChange with the re-decoded config whenever the config file
// changes on disk. It is a no-op without a config file.
func (l *Loader) Watch(onChange func(*Config, error)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(l.decode())
	})
	l.v.WatchConfig()
}
