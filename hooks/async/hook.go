// Package asynchook moves offsync.Hooks calls off the request and drain paths
// onto a bounded worker queue. Events are dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000)
//	defer hooks.Close()
//
//	cache, _ := offsync.New(offsync.Options{
//	    Generation: "app-cache-v1.0.0",
//	    Origin:     "https://app.example",
//	    Provider:   provider,
//	    Hooks:      hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/offsync"
)

type Hooks struct {
	inner   offsync.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ offsync.Hooks = (*Hooks)(nil)

func New(inner offsync.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Hooks must not be called
// after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped is the number of events discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)              { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)      { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) WarmFailed(u string, err error)    { h.try(func() { h.inner.WarmFailed(u, err) }) }
func (h *Hooks) GenerationEvicted(n string, k int) { h.try(func() { h.inner.GenerationEvicted(n, k) }) }
func (h *Hooks) OfflineFallback(u, s string)       { h.try(func() { h.inner.OfflineFallback(u, s) }) }
func (h *Hooks) EntryDelivered(kind, id string)    { h.try(func() { h.inner.EntryDelivered(kind, id) }) }
func (h *Hooks) EntryFailed(kind, id string, err error) {
	h.try(func() { h.inner.EntryFailed(kind, id, err) })
}
func (h *Hooks) DrainCompleted(kind string, synced, failed int) {
	h.try(func() { h.inner.DrainCompleted(kind, synced, failed) })
}
