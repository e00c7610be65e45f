// Package worker hosts the offline worker: one Worker per cache generation,
// the notifier hub, the sync coordinator and the connectivity monitor.
//
// A new generation is installed next to the active one and waits until a page
// sends SKIP_WAITING; activation evicts every other generation.
package worker

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/unkn0wn-root/offsync"
)

// State of a Worker.
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Worker serves one cache generation.
type Worker struct {
	cache    offsync.Cache
	ic       *offsync.Interceptor
	precache []string
	log      offsync.Logger
	state    atomic.Int32
}

func newWorker(cache offsync.Cache, ic *offsync.Interceptor, precache []string, log offsync.Logger) *Worker {
	return &Worker{cache: cache, ic: ic, precache: precache, log: log}
}

func (w *Worker) Version() string      { return w.cache.Generation() }
func (w *Worker) State() State         { return State(w.state.Load()) }
func (w *Worker) Cache() offsync.Cache { return w.cache }

// Install warms the precache list. A *offsync.WarmError leaves the worker
// installed with the URLs that did succeed.
func (w *Worker) Install(ctx context.Context) error {
	w.state.Store(int32(StateInstalling))
	err := w.cache.Warm(ctx, w.precache)
	w.state.Store(int32(StateInstalled))
	w.log.Info("worker installed", offsync.Fields{"version": w.Version(), "precache": len(w.precache)})
	return err
}

// Activate deletes every other generation and starts serving. Eviction
// failures are returned but do not prevent activation.
func (w *Worker) Activate(ctx context.Context) error {
	w.state.Store(int32(StateActivating))
	evicted, err := w.cache.EvictStaleGenerations(ctx, w.Version())
	w.state.Store(int32(StateActivated))
	w.log.Info("worker activated", offsync.Fields{"version": w.Version(), "evicted": evicted})
	return err
}

// retire stops the worker's bucket from taking writes. It still answers
// requests routed to it until they drain.
func (w *Worker) retire() {
	w.cache.Retire()
	w.state.Store(int32(StateRedundant))
	w.log.Info("worker redundant", offsync.Fields{"version": w.Version()})
}

func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.ic.RoundTrip(req)
}
