package offsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	bs "github.com/unkn0wn-root/offsync/bucketstore"
	c "github.com/unkn0wn-root/offsync/codec"
	"github.com/unkn0wn-root/offsync/internal/util"
	"github.com/unkn0wn-root/offsync/internal/wire"
	pr "github.com/unkn0wn-root/offsync/provider"
)

type bucket struct {
	gen      string
	origin   *url.URL
	provider pr.Provider
	codec    c.Codec[Snapshot]
	buckets  bs.Store
	fetch    http.RoundTripper
	log      Logger
	hooks    Hooks
	cost     CostFunc
	now      func() time.Time
	shared   bool
	maxBody  int64

	state   atomic.Int32
	retired atomic.Bool
}

func newBucket(opts Options) (*bucket, error) {
	if opts.Generation == "" {
		return nil, errors.New("offsync: generation is required")
	}
	if len(opts.Generation) > wire.MaxGenerationLen {
		return nil, fmt.Errorf("offsync: generation name longer than %d bytes", wire.MaxGenerationLen)
	}
	if opts.Provider == nil {
		return nil, errors.New("offsync: provider is required")
	}
	origin, err := parseOrigin(opts.Origin)
	if err != nil {
		return nil, err
	}

	b := &bucket{
		gen:      opts.Generation,
		origin:   origin,
		provider: opts.Provider,
		shared:   opts.SharedProvider,
		maxBody:  opts.MaxBodyBytes,
	}

	if opts.Codec != nil {
		b.codec = opts.Codec
	} else {
		cb, err := c.NewCBOR[Snapshot](false)
		if err != nil {
			return nil, fmt.Errorf("offsync: default codec: %w", err)
		}
		b.codec = cb
	}
	if opts.Buckets != nil {
		b.buckets = opts.Buckets
	} else {
		b.buckets = bs.NewLocal()
	}
	if opts.ComputeSetCost != nil {
		b.cost = opts.ComputeSetCost
	} else {
		b.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if opts.Now != nil {
		b.now = opts.Now
	} else {
		b.now = time.Now
	}
	b.fetch = coalesce[http.RoundTripper](opts.Fetcher, http.DefaultTransport)
	b.log = coalesce[Logger](opts.Logger, NopLogger{})
	b.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return b, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("offsync: origin is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("offsync: parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("offsync: origin %q must be scheme://host", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

func (b *bucket) Generation() string { return b.gen }

func (b *bucket) Origin() *url.URL {
	u := *b.origin
	return &u
}

func (b *bucket) State() State {
	if b.retired.Load() {
		return StateRetired
	}
	return State(b.state.Load())
}

func (b *bucket) Retire() {
	if !b.retired.Swap(true) {
		b.log.Debug("bucket retired", Fields{"generation": b.gen})
	}
}

func (b *bucket) Close(ctx context.Context) error {
	if b.shared {
		return nil
	}
	_ = b.buckets.Close(ctx)
	return b.provider.Close(ctx)
}

func (b *bucket) Warm(ctx context.Context, urls []string) error {
	if b.retired.Load() {
		return nil
	}
	b.state.Store(int32(StateWarming))
	defer b.state.Store(int32(StateWarmed))

	if err := b.buckets.Open(ctx, b.gen); err != nil {
		b.log.Warn("bucket registry open failed", Fields{"generation": b.gen, "err": err})
	}

	var failed map[string]error
	for _, raw := range urls {
		if err := b.warmOne(ctx, raw); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[raw] = err
			b.log.Warn("precache failed", Fields{"generation": b.gen, "url": raw, "err": err})
			b.hooks.WarmFailed(raw, err)
		}
	}
	if len(failed) > 0 {
		return &WarmError{Generation: b.gen, Failed: failed}
	}
	b.log.Info("bucket warmed", Fields{"generation": b.gen, "urls": len(urls)})
	return nil
}

func (b *bucket) warmOne(ctx context.Context, raw string) error {
	ref, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	u := util.Resolve(b.origin, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := b.fetch.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	snap, replay, err := CaptureLimit(b.origin, req, resp, b.maxBody)
	if err != nil {
		return err
	}
	if snap.Oversize() {
		replay.Body.Close()
		return fmt.Errorf("response body exceeds %d bytes", b.maxBody)
	}
	if !snap.Cacheable() {
		return fmt.Errorf("uncacheable response: status=%d type=%s", snap.Status, snap.Type)
	}
	ok, err := b.Store(ctx, req, snap)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if !ok && !b.retired.Load() {
		return errors.New("store: rejected by provider")
	}
	return nil
}

func (b *bucket) Lookup(ctx context.Context, req *http.Request) (Snapshot, bool, error) {
	if !isGet(req) {
		return Snapshot{}, false, nil
	}
	return b.read(ctx, b.storageKey(req.URL))
}

func (b *bucket) Store(ctx context.Context, req *http.Request, snap Snapshot) (bool, error) {
	if !isGet(req) || !snap.Cacheable() {
		return false, nil
	}
	u := util.Resolve(b.origin, req.URL)
	if snap.URL == "" {
		snap.URL = u.String()
	}
	if snap.StoredAt.IsZero() {
		snap.StoredAt = b.now()
	}
	return b.write(ctx, util.StorageKey(b.gen, http.MethodGet, u), wire.KindResponse, snap)
}

func (b *bucket) PutData(ctx context.Context, key string, data []byte) error {
	u, err := b.dataURL(key)
	if err != nil {
		return err
	}
	if b.retired.Load() {
		return nil
	}
	ct := "application/octet-stream"
	if json.Valid(data) {
		ct = "application/json"
	}
	snap := Snapshot{
		URL:      u.String(),
		Status:   http.StatusOK,
		Type:     TypeBasic,
		Header:   http.Header{"Content-Type": {ct}},
		Body:     data,
		StoredAt: b.now(),
	}
	ok, err := b.write(ctx, util.StorageKey(b.gen, http.MethodGet, u), wire.KindData, snap)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("offsync: data %q rejected by provider", key)
	}
	return nil
}

func (b *bucket) GetData(ctx context.Context, key string) ([]byte, bool, error) {
	u, err := b.dataURL(key)
	if err != nil {
		return nil, false, err
	}
	snap, ok, err := b.read(ctx, util.StorageKey(b.gen, http.MethodGet, u))
	if err != nil || !ok {
		return nil, false, err
	}
	return snap.Body, true, nil
}

func (b *bucket) EvictStaleGenerations(ctx context.Context, keep string) ([]string, error) {
	names, err := b.buckets.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("offsync: list buckets: %w", err)
	}
	var (
		evicted []string
		failed  map[string]error
	)
	for _, name := range names {
		if name == keep {
			continue
		}
		n, err := b.dropBucket(ctx, name)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[name] = err
			b.log.Error("evict generation failed", Fields{"generation": name, "err": err})
			continue
		}
		evicted = append(evicted, name)
		b.hooks.GenerationEvicted(name, n)
		b.log.Info("evicted stale generation", Fields{"generation": name, "keys": n, "kept": keep})
	}
	if len(failed) > 0 {
		return evicted, &EvictError{Failed: failed}
	}
	return evicted, nil
}

// dropBucket deletes every tracked key and forgets the bucket only when all
// deletes succeeded, so a partial failure is retried on the next activation.
func (b *bucket) dropBucket(ctx context.Context, name string) (int, error) {
	keys, err := b.buckets.Keys(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	var firstErr error
	for _, k := range keys {
		if err := b.provider.Del(ctx, k); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %q: %w", k, err)
		}
	}
	if firstErr != nil {
		return 0, firstErr
	}
	if err := b.buckets.Drop(ctx, name); err != nil {
		return 0, fmt.Errorf("drop: %w", err)
	}
	return len(keys), nil
}

func (b *bucket) read(ctx context.Context, k string) (Snapshot, bool, error) {
	raw, ok, err := b.provider.Get(ctx, k)
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	_, gen, payload, err := wire.Decode(raw)
	if err != nil {
		b.selfHeal(ctx, k, "corrupt")
		return Snapshot{}, false, nil
	}
	if gen != b.gen {
		b.selfHeal(ctx, k, "foreign_generation")
		return Snapshot{}, false, nil
	}
	snap, err := b.codec.Decode(payload)
	if err != nil {
		b.selfHeal(ctx, k, "decode")
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// write tracks the key before setting it: a tracked-but-missing key is harmless
// on eviction, an untracked stored key would outlive its generation.
func (b *bucket) write(ctx context.Context, k string, kind byte, snap Snapshot) (bool, error) {
	if b.retired.Load() {
		return false, nil
	}
	payload, err := b.codec.Encode(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := b.buckets.Track(ctx, b.gen, k); err != nil {
		return false, fmt.Errorf("track key: %w", err)
	}
	raw := wire.Encode(kind, b.gen, payload)
	ok, err := b.provider.Set(ctx, k, raw, b.cost(k, raw), 0)
	if err != nil {
		return false, err
	}
	if !ok {
		b.log.Debug("cache write rejected by provider (pressure)", Fields{"key": k})
		b.hooks.ProviderSetRejected(k)
	}
	return ok, nil
}

func (b *bucket) selfHeal(ctx context.Context, k, reason string) {
	_ = b.provider.Del(ctx, k)
	b.hooks.SelfHeal(k, reason)
	b.log.Debug("self-healed cache entry", Fields{"key": k, "reason": reason})
}

func (b *bucket) storageKey(ref *url.URL) string {
	return util.StorageKey(b.gen, http.MethodGet, util.Resolve(b.origin, ref))
}

func (b *bucket) dataURL(key string) (*url.URL, error) {
	if key == "" {
		return nil, errors.New("offsync: data key is required")
	}
	ref, err := url.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("offsync: parse data key: %w", err)
	}
	return util.Resolve(b.origin, ref), nil
}

// isGet treats the empty method as GET, as net/http does.
func isGet(req *http.Request) bool {
	return req.Method == "" || req.Method == http.MethodGet
}
