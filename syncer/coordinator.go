// Package syncer delivers queued outbox entries to the mutation API.
//
// Delivery is at-least-once: an entry is removed from the outbox only after the
// API accepted it, so a crash between the two resends it on the next drain.
// Failed entries stay pending and are retried on the next trigger; there is no
// backoff.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/offsync"
	"github.com/unkn0wn-root/offsync/notify"
	"github.com/unkn0wn-root/offsync/outbox"
)

// State of the coordinator.
type State int32

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// Background sync tags, one per kind.
const (
	TagTasks  = "sync-tasks"
	TagHabits = "sync-habits"
)

// Tag returns the background sync tag of kind.
func Tag(kind outbox.Kind) string { return "sync-" + kind.Category() }

// KindForTag maps a background sync tag back to its kind.
func KindForTag(tag string) (outbox.Kind, error) {
	for _, k := range outbox.Kinds {
		if Tag(k) == tag {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

// Notifier receives one SYNC_COMPLETE per drained kind. *notify.Hub satisfies it.
type Notifier interface {
	Broadcast(msg notify.Message) int
}

type Options struct {
	Outbox outbox.Store
	Client *http.Client // nil => http.DefaultClient

	// BaseURL is the API origin; relative endpoints resolve against it.
	BaseURL string
	// Endpoints per kind; missing kinds default to /api/tasks and /api/habits.
	Endpoints map[outbox.Kind]string

	Notifier Notifier

	// EntryIDHeader, when set, carries the outbox entry id on every POST so a
	// server can drop resent duplicates. Empty sends no header.
	EntryIDHeader string

	Logger offsync.Logger
	Hooks  offsync.Hooks
}

// Result of draining one kind.
type Result struct {
	Kind   outbox.Kind
	Synced int
	Failed int
	Err    error
}

// Coordinator drains the outbox. Drain cycles never overlap; kinds within one
// cycle run concurrently, entries within a kind sequentially.
type Coordinator struct {
	store     outbox.Store
	client    *http.Client
	endpoints map[outbox.Kind]string
	notifier  Notifier
	idHeader  string
	log       offsync.Logger
	hooks     offsync.Hooks

	state   atomic.Int32
	online  atomic.Bool
	drainMu sync.Mutex

	mu         sync.Mutex
	pending    map[outbox.Kind]bool
	registered map[string]bool
	signal     chan struct{}
}

func New(opts Options) (*Coordinator, error) {
	if opts.Outbox == nil {
		return nil, ErrNoOutbox
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("syncer: parse base url: %w", err)
	}

	c := &Coordinator{
		store:      opts.Outbox,
		client:     opts.Client,
		endpoints:  make(map[outbox.Kind]string, len(outbox.Kinds)),
		notifier:   opts.Notifier,
		idHeader:   opts.EntryIDHeader,
		log:        opts.Logger,
		hooks:      opts.Hooks,
		pending:    make(map[outbox.Kind]bool),
		registered: make(map[string]bool),
		signal:     make(chan struct{}, 1),
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.log == nil {
		c.log = offsync.NopLogger{}
	}
	if c.hooks == nil {
		c.hooks = offsync.NopHooks{}
	}
	for _, k := range outbox.Kinds {
		ep := opts.Endpoints[k]
		if ep == "" {
			ep = "/api/" + k.Category()
		}
		ref, err := url.Parse(ep)
		if err != nil {
			return nil, fmt.Errorf("syncer: parse %s endpoint: %w", k, err)
		}
		u := base.ResolveReference(ref)
		if !u.IsAbs() {
			return nil, fmt.Errorf("syncer: %s endpoint %q is not absolute and no base url is set", k, ep)
		}
		c.endpoints[k] = u.String()
	}
	c.online.Store(true)
	return c, nil
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

// Endpoint is the resolved mutation URL of kind.
func (c *Coordinator) Endpoint(kind outbox.Kind) string { return c.endpoints[kind] }

// IsOnline reports the last connectivity transition seen (online until told otherwise).
func (c *Coordinator) IsOnline() bool { return c.online.Load() }

// Online records an online transition and schedules a drain of every kind.
// Tags registered while offline are satisfied by that drain.
func (c *Coordinator) Online() {
	c.online.Store(true)
	c.mu.Lock()
	c.registered = make(map[string]bool)
	c.mu.Unlock()
	c.Trigger()
}

// Offline records an offline transition. Registrations are held until Online.
func (c *Coordinator) Offline() { c.online.Store(false) }

// BackgroundSync handles a platform background-sync wake for tag.
func (c *Coordinator) BackgroundSync(tag string) error {
	kind, err := KindForTag(tag)
	if err != nil {
		return err
	}
	c.Trigger(kind)
	return nil
}

// Register asks for a background sync of tag: immediately when online, on the
// next Online otherwise.
func (c *Coordinator) Register(tag string) error {
	if _, err := KindForTag(tag); err != nil {
		return err
	}
	if c.online.Load() {
		return c.BackgroundSync(tag)
	}
	c.mu.Lock()
	c.registered[tag] = true
	c.mu.Unlock()
	c.log.Debug("sync registered while offline", offsync.Fields{"tag": tag})
	return nil
}

// Registered lists tags waiting for connectivity.
func (c *Coordinator) Registered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.registered))
	for _, k := range outbox.Kinds {
		if c.registered[Tag(k)] {
			out = append(out, Tag(k))
		}
	}
	return out
}

// Trigger schedules a drain of kinds (all kinds when empty) for Run. It never
// blocks; triggers that arrive before Run picks them up are merged.
func (c *Coordinator) Trigger(kinds ...outbox.Kind) {
	if len(kinds) == 0 {
		kinds = outbox.Kinds
	}
	c.mu.Lock()
	for _, k := range kinds {
		c.pending[k] = true
	}
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Coordinator) takePending() []outbox.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []outbox.Kind
	for _, k := range outbox.Kinds {
		if c.pending[k] {
			kinds = append(kinds, k)
			delete(c.pending, k)
		}
	}
	return kinds
}

// Run drains on every Trigger until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.signal:
		}
		kinds := c.takePending()
		if len(kinds) == 0 {
			continue
		}
		if _, err := c.Drain(ctx, kinds...); err != nil {
			c.log.Warn("drain finished with failures", offsync.Fields{"err": err})
		}
	}
}

// Drain runs one cycle over kinds (all kinds when empty) and returns one
// Result per kind. The error joins every kind's failure; entries that failed
// remain pending either way.
func (c *Coordinator) Drain(ctx context.Context, kinds ...outbox.Kind) ([]Result, error) {
	if len(kinds) == 0 {
		kinds = outbox.Kinds
	}
	for _, k := range kinds {
		if _, ok := c.endpoints[k]; !ok {
			return nil, fmt.Errorf("%w: %q", outbox.ErrUnknownKind, k)
		}
	}

	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	c.state.Store(int32(StateDraining))
	defer c.state.Store(int32(StateIdle))

	results := make([]Result, len(kinds))
	var wg sync.WaitGroup
	for i, k := range kinds {
		wg.Add(1)
		go func(i int, k outbox.Kind) {
			defer wg.Done()
			results[i] = c.drainKind(ctx, k)
		}(i, k)
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (c *Coordinator) drainKind(ctx context.Context, kind outbox.Kind) Result {
	res := Result{Kind: kind}
	entries, err := c.store.ListPending(ctx, kind)
	if err != nil {
		c.log.Error("list pending failed", offsync.Fields{"kind": string(kind), "err": err})
		res.Err = err
		return res
	}

	var failed map[string]error
	fail := func(id string, err error) {
		if failed == nil {
			failed = make(map[string]error)
		}
		failed[id] = err
		res.Failed++
		c.hooks.EntryFailed(string(kind), id, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			fail(e.ID, err)
			continue
		}
		if err := c.deliver(ctx, e); err != nil {
			c.log.Warn("delivery failed, entry stays queued", offsync.Fields{"kind": string(kind), "id": e.ID, "err": err})
			fail(e.ID, err)
			continue
		}
		// Accepted remotely. Until this delete commits, a crash resends the entry.
		if err := c.store.Remove(ctx, kind, e.ID); err != nil {
			c.log.Error("delivered entry not removed, it will be resent", offsync.Fields{"kind": string(kind), "id": e.ID, "err": err})
			fail(e.ID, err)
			continue
		}
		res.Synced++
		c.hooks.EntryDelivered(string(kind), e.ID)
	}

	if failed != nil {
		res.Err = &DeliveryError{Kind: kind, Failed: failed}
	}
	c.hooks.DrainCompleted(string(kind), res.Synced, res.Failed)
	c.log.Info("drain completed", offsync.Fields{"kind": string(kind), "synced": res.Synced, "failed": res.Failed})
	if c.notifier != nil {
		c.notifier.Broadcast(notify.Message{
			Type:     notify.TypeSyncComplete,
			Category: kind.Category(),
			Synced:   res.Synced,
			Failed:   res.Failed,
		})
	}
	return res
}

func (c *Coordinator) deliver(ctx context.Context, e outbox.Entry) error {
	endpoint := c.endpoints[e.Kind]
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(e.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.idHeader != "" {
		req.Header.Set(c.idHeader, e.ID)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, URL: endpoint}
	}
	return nil
}
