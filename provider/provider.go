// Package provider defines the byte store behind a cache bucket.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// []byte previously passed to Set for a key.
//
// The keyspace "bucket:<generation>:" is owned by offsync. Values found there
// that are not valid wire frames for that generation are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry; cache buckets never expire
	// per entry. Returns ok=false when the store refused the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort, missing is not an error).
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
