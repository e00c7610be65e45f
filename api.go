package offsync

import (
	"context"
	"net/http"
	"net/url"
	"time"

	bs "github.com/unkn0wn-root/offsync/bucketstore"
	c "github.com/unkn0wn-root/offsync/codec"
	pr "github.com/unkn0wn-root/offsync/provider"
)

// State of a cache bucket.
type State int32

const (
	StateUninitialized State = iota
	StateWarming
	StateWarmed
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWarming:
		return "warming"
	case StateWarmed:
		return "warmed"
	case StateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Cache owns exactly one named bucket (the cache generation).
type Cache interface {
	Generation() string
	Origin() *url.URL
	State() State
	Close(context.Context) error

	// Warm fetches and stores every URL. Individual failures are collected
	// in a *WarmError and never abort the others.
	Warm(ctx context.Context, urls []string) error

	// Lookup is an exact match on request identity within this bucket only.
	Lookup(ctx context.Context, req *http.Request) (Snapshot, bool, error)

	// Store writes snap under req's identity. It is a no-op (false, nil) unless
	// req is a GET and snap is Cacheable.
	Store(ctx context.Context, req *http.Request, snap Snapshot) (bool, error)

	// Retire stops all writes: Store, PutData and Warm become no-ops so a
	// superseded generation cannot recreate its bucket after eviction.
	// Lookups keep working until the keys are gone.
	Retire()

	// EvictStaleGenerations deletes every known bucket except keep and returns
	// the names it removed.
	EvictStaleGenerations(ctx context.Context, keep string) ([]string, error)

	// Page-side helpers: arbitrary data under the request identity of key
	// (a path or URL), readable by Lookup as a 200 response and vice versa.
	PutData(ctx context.Context, key string, data []byte) error
	GetData(ctx context.Context, key string) ([]byte, bool, error)
}

// CostFunc computes the provider cost of one encoded entry.
type CostFunc func(storageKey string, raw []byte) int64

// Options tune a Cache. Generation, Origin and Provider are required.
type Options struct {
	Generation string // bucket name, e.g. "app-cache-v1.0.0"
	Origin     string // scheme://host of the application; defines "same-origin"
	Provider   pr.Provider

	Codec          c.Codec[Snapshot] // nil => CBOR
	Buckets        bs.Store          // nil => bucketstore.NewLocal()
	Fetcher        http.RoundTripper // used by Warm; nil => http.DefaultTransport
	Logger         Logger            // nil => NopLogger
	Hooks          Hooks             // nil => NopHooks
	ComputeSetCost CostFunc          // nil => len(raw)
	MaxBodyBytes   int64             // Warm skips larger bodies; 0 => no cap
	Now            func() time.Time  // nil => time.Now

	// SharedProvider leaves Provider and Buckets open on Close. Set it when
	// several generations share one provider (the worker host does).
	SharedProvider bool
}

func New(opts Options) (Cache, error) {
	return newBucket(opts)
}
