// Package bucketstore records which cache buckets (generations) exist and which
// provider keys each one owns, so a stale generation can be deleted wholesale.
package bucketstore

import (
	"context"
)

// Store abstracts where bucket metadata lives.
// Use Local for a single process, or Redis when several processes share a Redis provider.
type Store interface {
	// Open registers name as a known bucket. Idempotent.
	Open(ctx context.Context, name string) error
	// Names lists every known bucket, sorted.
	Names(ctx context.Context) ([]string, error)
	// Track records that storageKey belongs to bucket name (implies Open).
	Track(ctx context.Context, name, storageKey string) error
	// Keys returns the keys tracked for name; unknown name => empty.
	Keys(ctx context.Context, name string) ([]string, error)
	// Drop forgets the bucket and its keys.
	Drop(ctx context.Context, name string) error
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
