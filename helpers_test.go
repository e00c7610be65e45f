package offsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/offsync/provider"
)

const testOrigin = "https://app.example"

type memProvider struct {
	mu     sync.Mutex
	m      map[string][]byte
	reject bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	p.m[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

var errOffline = errors.New("dial tcp: network is unreachable")

type route struct {
	status int
	body   string
	header http.Header
}

// fakeNet is the origin server seen through a RoundTripper that can go offline.
type fakeNet struct {
	mu      sync.Mutex
	offline bool
	routes  map[string]route
	hits    map[string]int
	bodies  []string
}

func newFakeNet(routes map[string]route) *fakeNet {
	return &fakeNet{routes: routes, hits: make(map[string]int)}
}

func (n *fakeNet) setOffline(v bool) {
	n.mu.Lock()
	n.offline = v
	n.mu.Unlock()
}

func (n *fakeNet) hitCount(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hits[path]
}

func (n *fakeNet) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline {
		return nil, errOffline
	}
	n.hits[req.URL.Path]++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		n.bodies = append(n.bodies, string(b))
	}
	rt, ok := n.routes[req.URL.Path]
	if !ok {
		rt = route{status: http.StatusNotFound, body: "not found"}
	}
	h := rt.header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	return &http.Response{
		StatusCode: rt.status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(rt.body)),
		Request:    req,
	}, nil
}

type recHooks struct {
	NopHooks
	mu        sync.Mutex
	healed    []string
	rejected  int
	warmFails int
	fallbacks []string
	evicted   map[string]int
}

func (h *recHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.healed = append(h.healed, reason)
	h.mu.Unlock()
}

func (h *recHooks) ProviderSetRejected(string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

func (h *recHooks) WarmFailed(string, error) {
	h.mu.Lock()
	h.warmFails++
	h.mu.Unlock()
}

func (h *recHooks) OfflineFallback(_ string, source string) {
	h.mu.Lock()
	h.fallbacks = append(h.fallbacks, source)
	h.mu.Unlock()
}

func (h *recHooks) GenerationEvicted(name string, keys int) {
	h.mu.Lock()
	if h.evicted == nil {
		h.evicted = make(map[string]int)
	}
	h.evicted[name] = keys
	h.mu.Unlock()
}

func newTestCache(t *testing.T, gen string, mp pr.Provider, mod func(*Options)) Cache {
	t.Helper()
	opts := Options{
		Generation: gen,
		Origin:     testOrigin,
		Provider:   mp,
	}
	if mod != nil {
		mod(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func getReq(t *testing.T, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func okSnapshot(body string) Snapshot {
	return Snapshot{
		Status: http.StatusOK,
		Type:   TypeBasic,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}
}
