package offsync

import (
	"context"
	"net/http"
	"strings"

	"github.com/unkn0wn-root/offsync/internal/util"
)

// OfflineHeader marks responses the interceptor synthesized without the network.
const OfflineHeader = "X-Offsync-Offline"

// InterceptorOptions configure NewInterceptor.
type InterceptorOptions struct {
	Next        http.RoundTripper // network; nil => http.DefaultTransport
	APIPrefix   string            // network-first paths; "" => DefaultAPIPrefix
	OfflinePath string            // cached placeholder for navigations; "" => DefaultOfflinePath

	// MaxBodyBytes caps write-through buffering. Larger responses stream to
	// the caller uncached. 0 => no cap.
	MaxBodyBytes int64

	Logger Logger
	Hooks  Hooks
}

// Interceptor is an http.RoundTripper that answers GETs from the cache bucket
// when the network cannot. Other methods go to Next untouched.
//
// GET strategy:
//   - path under APIPrefix: network first, then cache, then the placeholder
//   - anything else: cache first, network fill with write-through
//
// When the network fails on a cache-first request, a navigation gets the
// offline placeholder and any other GET a synthesized 503. A GET never returns
// an error.
type Interceptor struct {
	cache       Cache
	next        http.RoundTripper
	apiPrefix   string
	offlinePath string
	maxBody     int64
	log         Logger
	hooks       Hooks
}

var _ http.RoundTripper = (*Interceptor)(nil)

func NewInterceptor(cache Cache, opts InterceptorOptions) *Interceptor {
	return &Interceptor{
		cache:       cache,
		next:        coalesce[http.RoundTripper](opts.Next, http.DefaultTransport),
		apiPrefix:   coalesce(opts.APIPrefix, DefaultAPIPrefix),
		offlinePath: coalesce(opts.OfflinePath, DefaultOfflinePath),
		maxBody:     opts.MaxBodyBytes,
		log:         coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:       coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isGet(req) {
		return i.next.RoundTrip(req)
	}
	if strings.HasPrefix(req.URL.Path, i.apiPrefix) {
		return i.networkFirst(req), nil
	}
	return i.cacheFirst(req), nil
}

func (i *Interceptor) networkFirst(req *http.Request) *http.Response {
	resp, err := i.next.RoundTrip(req.Clone(req.Context()))
	if err == nil {
		return resp
	}
	i.log.Debug("api request failed, falling back to cache", Fields{"url": req.URL.String(), "err": err})
	if snap, ok := i.lookup(req.Context(), req); ok {
		i.hooks.OfflineFallback(req.URL.String(), "cache")
		return snap.Response(req)
	}
	return i.placeholder(req.Context(), req)
}

func (i *Interceptor) cacheFirst(req *http.Request) *http.Response {
	ctx := req.Context()
	if snap, ok := i.lookup(ctx, req); ok {
		return snap.Response(req)
	}

	resp, err := i.next.RoundTrip(req.Clone(ctx))
	if err != nil {
		i.log.Debug("network unavailable", Fields{"url": req.URL.String(), "err": err})
		return i.offline(req)
	}
	if resp.StatusCode != http.StatusOK || !util.SameOrigin(i.cache.Origin(), util.Resolve(i.cache.Origin(), req.URL)) {
		return resp
	}

	snap, replay, err := CaptureLimit(i.cache.Origin(), req, resp, i.maxBody)
	if err != nil {
		i.log.Warn("buffer response failed", Fields{"url": req.URL.String(), "err": err})
		return i.offline(req)
	}
	if snap.Oversize() {
		i.log.Debug("response too large to cache", Fields{"url": req.URL.String(), "max": i.maxBody})
		return replay
	}
	if _, err := i.cache.Store(ctx, req, snap); err != nil {
		i.log.Warn("write-through failed", Fields{"url": req.URL.String(), "err": err})
	}
	return replay
}

// offline answers req without the network.
func (i *Interceptor) offline(req *http.Request) *http.Response {
	ctx := req.Context()
	if IsNavigation(req) {
		return i.placeholder(ctx, req)
	}
	if snap, ok := i.lookup(ctx, req); ok {
		i.hooks.OfflineFallback(req.URL.String(), "cache")
		return snap.Response(req)
	}
	return offlineResponse(req, http.Header{"Content-Type": {"text/plain; charset=utf-8"}}, []byte("offline\n"))
}

func (i *Interceptor) placeholder(ctx context.Context, req *http.Request) *http.Response {
	preq, err := http.NewRequestWithContext(ctx, http.MethodGet, i.offlinePath, nil)
	if err == nil {
		if snap, ok := i.lookup(ctx, preq); ok {
			i.hooks.OfflineFallback(req.URL.String(), "placeholder")
			resp := snap.Response(req)
			resp.Header.Set(OfflineHeader, "1")
			return resp
		}
	}
	i.hooks.OfflineFallback(req.URL.String(), "placeholder")
	return offlineResponse(req, http.Header{"Content-Type": {"text/html; charset=utf-8"}}, []byte(offlinePage))
}

func (i *Interceptor) lookup(ctx context.Context, req *http.Request) (Snapshot, bool) {
	snap, ok, err := i.cache.Lookup(ctx, req)
	if err != nil {
		i.log.Warn("cache lookup failed", Fields{"url": req.URL.String(), "err": err})
		return Snapshot{}, false
	}
	return snap, ok
}

func offlineResponse(req *http.Request, h http.Header, body []byte) *http.Response {
	h.Set(OfflineHeader, "1")
	return buildResponse(req, http.StatusServiceUnavailable, h, body)
}

// IsNavigation reports whether req loads a top-level document, using the fetch
// metadata headers a browser sends and falling back to Accept.
func IsNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	if req.Header.Get("Sec-Fetch-Dest") == "document" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

const offlinePage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>This page is not available offline yet. Your changes are saved and will sync when the connection returns.</p></body></html>
`
