package syncer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/unkn0wn-root/offsync"
)

const DefaultCheckInterval = 15 * time.Second

type MonitorOptions struct {
	CheckURL string
	Interval time.Duration // 0 => DefaultCheckInterval
	Client   *http.Client  // nil => client with a timeout of Interval
	Logger   offsync.Logger

	// Called on transitions only. The first check always reports one.
	OnOnline  func()
	OnOffline func()
}

// Monitor stands in for the browser's online/offline events: it checks
// CheckURL and reports transitions. Any HTTP answer counts as online.
type Monitor struct {
	opts MonitorOptions
	log  offsync.Logger

	mu     sync.Mutex
	known  bool
	online bool
}

func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	if opts.CheckURL == "" {
		return nil, errors.New("syncer: check url is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultCheckInterval
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Interval}
	}
	m := &Monitor{opts: opts, log: opts.Logger}
	if m.log == nil {
		m.log = offsync.NopLogger{}
	}
	return m, nil
}

// IsOnline is the result of the last check (false before the first).
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check tests connectivity once and fires the transition callback if the
// state changed.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.reachable(ctx)

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.known = true
	m.online = online
	m.mu.Unlock()

	if changed {
		m.log.Info("connectivity changed", offsync.Fields{"online": online})
		if online && m.opts.OnOnline != nil {
			m.opts.OnOnline()
		}
		if !online && m.opts.OnOffline != nil {
			m.opts.OnOffline()
		}
	}
	return online
}

func (m *Monitor) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.opts.CheckURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.opts.Client.Do(req)
	if err != nil {
		m.log.Debug("check failed", offsync.Fields{"url": m.opts.CheckURL, "err": err})
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

// Run checks immediately and then every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.opts.Interval)
	defer t.Stop()
	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
