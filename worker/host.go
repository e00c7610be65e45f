package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/unkn0wn-root/offsync"
	bs "github.com/unkn0wn-root/offsync/bucketstore"
	c "github.com/unkn0wn-root/offsync/codec"
	"github.com/unkn0wn-root/offsync/notify"
	"github.com/unkn0wn-root/offsync/outbox"
	pr "github.com/unkn0wn-root/offsync/provider"
	"github.com/unkn0wn-root/offsync/syncer"
)

// NotifyPath is where Handler serves the notifier WebSocket.
const NotifyPath = "/__offsync/notify"

var (
	ErrNotStarted = errors.New("worker: host not started")
	ErrNoWaiting  = errors.New("worker: no waiting worker")
)

type Options struct {
	Origin      string // scheme://host of the application
	Precache    []string
	APIPrefix   string
	OfflinePath string

	// Shared by every generation. The host closes them on Close.
	Provider pr.Provider
	Buckets  bs.Store                  // nil => bucketstore.NewLocal()
	Codec    c.Codec[offsync.Snapshot] // nil => CBOR

	// MaxBodyBytes caps how much of one response is buffered for caching.
	// 0 => no cap.
	MaxBodyBytes int64

	Network http.RoundTripper // nil => http.DefaultTransport

	Outbox        outbox.Store
	Endpoints     map[outbox.Kind]string
	EntryIDHeader string

	// CheckURL enables the connectivity monitor. Empty assumes always online.
	CheckURL      string
	CheckInterval time.Duration

	// NotifyOrigins are the origin patterns accepted on NotifyPath.
	NotifyOrigins []string

	Logger offsync.Logger
	Hooks  offsync.Hooks
}

// Host owns the active and waiting workers and everything shared between
// generations.
type Host struct {
	opts    Options
	log     offsync.Logger
	hub     *notify.Hub
	coord   *syncer.Coordinator
	monitor *syncer.Monitor

	lifeMu  sync.Mutex // serializes Start, Update and SkipWaiting
	mu      sync.RWMutex
	active  *Worker
	waiting *Worker
}

var _ http.RoundTripper = (*Host)(nil)

func New(opts Options) (*Host, error) {
	if opts.Provider == nil {
		return nil, errors.New("worker: provider is required")
	}
	if opts.Outbox == nil {
		return nil, errors.New("worker: outbox is required")
	}
	if opts.Buckets == nil {
		opts.Buckets = bs.NewLocal()
	}
	if opts.Network == nil {
		opts.Network = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = offsync.NopLogger{}
	}
	if opts.Hooks == nil {
		opts.Hooks = offsync.NopHooks{}
	}

	h := &Host{opts: opts, log: opts.Logger}
	h.hub = notify.NewHub(notify.HubOptions{Handler: h, Logger: opts.Logger})

	coord, err := syncer.New(syncer.Options{
		Outbox:        opts.Outbox,
		Client:        &http.Client{Transport: opts.Network},
		BaseURL:       opts.Origin,
		Endpoints:     opts.Endpoints,
		Notifier:      h.hub,
		EntryIDHeader: opts.EntryIDHeader,
		Logger:        opts.Logger,
		Hooks:         opts.Hooks,
	})
	if err != nil {
		return nil, err
	}
	h.coord = coord

	if opts.CheckURL != "" {
		interval := opts.CheckInterval
		if interval <= 0 {
			interval = syncer.DefaultCheckInterval
		}
		h.monitor, err = syncer.NewMonitor(syncer.MonitorOptions{
			CheckURL:  opts.CheckURL,
			Interval:  interval,
			Client:    &http.Client{Transport: opts.Network, Timeout: interval},
			Logger:    opts.Logger,
			OnOnline:  coord.Online,
			OnOffline: coord.Offline,
		})
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Host) Hub() *notify.Hub                 { return h.hub }
func (h *Host) Coordinator() *syncer.Coordinator { return h.coord }

// IsOnline reports the monitor's view, or the coordinator's without a monitor.
func (h *Host) IsOnline() bool {
	if h.monitor != nil {
		return h.monitor.IsOnline()
	}
	return h.coord.IsOnline()
}

func (h *Host) newWorker(generation string) (*Worker, error) {
	cache, err := offsync.New(offsync.Options{
		Generation:     generation,
		Origin:         h.opts.Origin,
		Provider:       h.opts.Provider,
		Codec:          h.opts.Codec,
		Buckets:        h.opts.Buckets,
		Fetcher:        h.opts.Network,
		Logger:         h.opts.Logger,
		Hooks:          h.opts.Hooks,
		MaxBodyBytes:   h.opts.MaxBodyBytes,
		SharedProvider: true,
	})
	if err != nil {
		return nil, err
	}
	ic := offsync.NewInterceptor(cache, offsync.InterceptorOptions{
		Next:         h.opts.Network,
		APIPrefix:    h.opts.APIPrefix,
		OfflinePath:  h.opts.OfflinePath,
		MaxBodyBytes: h.opts.MaxBodyBytes,
		Logger:       h.opts.Logger,
		Hooks:        h.opts.Hooks,
	})
	return newWorker(cache, ic, h.opts.Precache, h.opts.Logger), nil
}

// install builds and installs a worker. Precache failures are logged only.
func (h *Host) install(ctx context.Context, generation string) (*Worker, error) {
	w, err := h.newWorker(generation)
	if err != nil {
		return nil, err
	}
	if err := w.Install(ctx); err != nil {
		var we *offsync.WarmError
		if !errors.As(err, &we) {
			return nil, fmt.Errorf("worker: install %s: %w", generation, err)
		}
		h.log.Warn("precache incomplete", offsync.Fields{"version": generation, "err": err})
	}
	return w, nil
}

func (h *Host) activate(ctx context.Context, w *Worker) {
	if err := w.Activate(ctx); err != nil {
		h.log.Warn("stale generations not fully evicted", offsync.Fields{"version": w.Version(), "err": err})
	}
}

// Start installs and activates the first generation. There is nothing to wait
// for, so it claims clients immediately.
func (h *Host) Start(ctx context.Context, generation string) error {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	w, err := h.install(ctx, generation)
	if err != nil {
		return err
	}
	h.mu.RLock()
	prev := h.active
	h.mu.RUnlock()
	if prev != nil {
		prev.retire()
	}
	h.activate(ctx, w)

	h.mu.Lock()
	h.active = w
	h.mu.Unlock()
	return nil
}

// Update installs generation as the waiting worker and tells every page an
// update is available. The active worker keeps serving until SkipWaiting.
func (h *Host) Update(ctx context.Context, generation string) error {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	h.mu.RLock()
	active, waiting := h.active, h.waiting
	h.mu.RUnlock()
	if active == nil {
		return ErrNotStarted
	}
	if active.Version() == generation || (waiting != nil && waiting.Version() == generation) {
		return nil
	}

	w, err := h.install(ctx, generation)
	if err != nil {
		return err
	}
	h.mu.Lock()
	prev := h.waiting
	h.waiting = w
	h.mu.Unlock()
	if prev != nil {
		prev.retire()
	}

	h.hub.Broadcast(notify.Message{Type: notify.TypeUpdateAvailable, Version: generation})
	h.log.Info("update waiting", offsync.Fields{"active": active.Version(), "waiting": generation})
	return nil
}

// SkipWaiting activates the waiting worker; the previous one becomes redundant.
func (h *Host) SkipWaiting(ctx context.Context) (string, error) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	h.mu.RLock()
	w := h.waiting
	h.mu.RUnlock()
	if w == nil {
		return "", ErrNoWaiting
	}
	// the old bucket must stop writing before eviction drops it
	h.mu.RLock()
	prev := h.active
	h.mu.RUnlock()
	if prev != nil {
		prev.retire()
	}
	h.activate(ctx, w)

	h.mu.Lock()
	h.active, h.waiting = w, nil
	h.mu.Unlock()
	return w.Version(), nil
}

// Version is the active generation, empty before Start.
func (h *Host) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.active == nil {
		return ""
	}
	return h.active.Version()
}

// Waiting is the waiting generation, if any.
func (h *Host) Waiting() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.waiting == nil {
		return ""
	}
	return h.waiting.Version()
}

// Active returns the active worker (nil before Start).
func (h *Host) Active() *Worker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// RoundTrip intercepts req through the active worker.
func (h *Host) RoundTrip(req *http.Request) (*http.Response, error) {
	w := h.Active()
	if w == nil {
		return h.opts.Network.RoundTrip(req)
	}
	return w.RoundTrip(req)
}

// Handler serves the notifier on NotifyPath and proxies everything else to
// the origin through RoundTrip.
func (h *Host) Handler() (http.Handler, error) {
	proxy, err := offsync.NewProxy(h, h.opts.Origin, h.opts.Logger)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(NotifyPath, notify.NewServer(h.hub, notify.ServerOptions{
		OriginPatterns: h.opts.NotifyOrigins,
		Logger:         h.opts.Logger,
	}))
	mux.Handle("/", proxy)
	return mux, nil
}

// Run drives background sync (and the monitor, if configured) until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if h.monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.monitor.Run(ctx)
		}()
	} else {
		h.coord.Online()
	}
	err := h.coord.Run(ctx)
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close disconnects every page and releases the shared cache stores. The
// outbox belongs to the caller.
func (h *Host) Close(ctx context.Context) error {
	h.hub.Close()
	return errors.Join(h.opts.Buckets.Close(ctx), h.opts.Provider.Close(ctx))
}
