package cli

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/offsync"
	bs "github.com/unkn0wn-root/offsync/bucketstore"
	c "github.com/unkn0wn-root/offsync/codec"
	"github.com/unkn0wn-root/offsync/internal/config"
	"github.com/unkn0wn-root/offsync/internal/logging"
	"github.com/unkn0wn-root/offsync/outbox"
	pr "github.com/unkn0wn-root/offsync/provider"
	"github.com/unkn0wn-root/offsync/provider/bigcache"
	"github.com/unkn0wn-root/offsync/provider/redis"
	"github.com/unkn0wn-root/offsync/provider/ristretto"
)

const (
	// redisNamespace prefixes every offsync key in Redis. Cached bodies live
	// under <ns>:data, apart from the bucket registry sets.
	redisNamespace = "offsync"

	// snapshotHeadroom covers the URL and headers encoded next to a body of
	// cache.max_entry_bytes.
	snapshotHeadroom = 64 << 10
)

// hooks returns the configured event hooks, nil when disabled.
func hooks(cfg *config.Config, out *logging.Output) offsync.Hooks {
	if !cfg.Log.Hooks {
		return nil
	}
	return out.Hooks(cfg.Log.HookSample, cfg.Log.HookQueue)
}

func newLogger(cfg *config.Config) (*logging.Output, error) {
	return logging.New(logging.Options{
		Backend:    cfg.Log.Backend,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// openCache builds the shared cache provider and bucket registry. A nil
// registry means the in-process default.
func openCache(ctx context.Context, cfg *config.Config) (pr.Provider, bs.Store, error) {
	switch cfg.Cache.Provider {
	case "ristretto":
		rc := ristretto.DefaultConfig()
		if cfg.Cache.MaxCost > 0 {
			rc.MaxCost = cfg.Cache.MaxCost
		}
		p, err := ristretto.New(rc)
		return p, nil, err

	case "bigcache":
		p, err := bigcache.New(bigcache.Config{MaxEntrySize: cfg.Cache.MaxEntryBytes})
		return p, nil, err

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		// the registry owns the client
		p, err := redis.New(redis.Config{Client: client, Prefix: redisNamespace + ":data"})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return p, bs.NewRedis(client, redisNamespace), nil
	}
	return nil, nil, fmt.Errorf("unknown cache provider: %s", cfg.Cache.Provider)
}

func snapshotCodec(cfg *config.Config) (c.Codec[offsync.Snapshot], error) {
	maxDecode := 0
	if cfg.Cache.MaxEntryBytes > 0 {
		maxDecode = cfg.Cache.MaxEntryBytes + snapshotHeadroom
	}
	return c.ByName[offsync.Snapshot](cfg.Cache.Codec, maxDecode)
}

func openOutbox(ctx context.Context, cfg *config.Config, log offsync.Logger) (*outbox.SQLite, error) {
	return outbox.Open(ctx, cfg.Outbox.Path, outbox.Options{
		Tables: outbox.Tables{Tasks: cfg.Outbox.TasksTable, Habits: cfg.Outbox.HabitsTable},
		Logger: log,
	})
}

func endpoints(cfg *config.Config) map[outbox.Kind]string {
	return map[outbox.Kind]string{
		outbox.KindTask:  cfg.Sync.TaskEndpoint,
		outbox.KindHabit: cfg.Sync.HabitEndpoint,
	}
}
