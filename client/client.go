// Package client is the page's control surface: it connects to the worker,
// queues mutations made offline and surfaces worker notifications.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/offsync"
	"github.com/unkn0wn-root/offsync/notify"
	"github.com/unkn0wn-root/offsync/outbox"
	"github.com/unkn0wn-root/offsync/syncer"
)

var (
	ErrNotInitialized = errors.New("client: not initialized")
	ErrNoCache        = errors.New("client: no cache configured")
	ErrNoOutbox       = errors.New("client: no outbox configured")
)

type Options struct {
	// Port to the worker. When nil, Initialize dials NotifyURL.
	Port      notify.Port
	NotifyURL string

	Outbox outbox.Store  // shared with the worker
	Cache  offsync.Cache // page-side cache access; optional

	// Environment queries. Nil Online reports true, nil Installed false.
	Online    func() bool
	Installed func() bool

	// Notify shows a passive notification. Nil means permission was not
	// granted and nothing is shown.
	Notify func(title, body string)

	OnUpdateAvailable func(version string)
	OnSyncComplete    func(msg notify.Message)

	Logger offsync.Logger
}

type Client struct {
	opts Options
	log  offsync.Logger

	initOnce sync.Once
	initErr  error
	mu       sync.RWMutex
	port     notify.Port
	done     chan struct{}
}

func New(opts Options) *Client {
	c := &Client{opts: opts, log: opts.Logger}
	if c.log == nil {
		c.log = offsync.NopLogger{}
	}
	return c
}

// Initialize connects to the worker and starts dispatching its broadcasts.
// Concurrent and repeated calls share the first call's outcome.
func (c *Client) Initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		port := c.opts.Port
		if port == nil {
			if c.opts.NotifyURL == "" {
				c.initErr = errors.New("client: either Port or NotifyURL is required")
				return
			}
			p, err := notify.Dial(ctx, c.opts.NotifyURL)
			if err != nil {
				c.initErr = err
				return
			}
			port = p
		}
		done := make(chan struct{})
		c.mu.Lock()
		c.port, c.done = port, done
		c.mu.Unlock()
		go c.listen(port, done)
		c.log.Debug("client initialized", nil)
	})
	return c.initErr
}

func (c *Client) listen(port notify.Port, done chan struct{}) {
	defer close(done)
	for msg := range port.Messages() {
		switch msg.Type {
		case notify.TypeUpdateAvailable:
			if c.opts.OnUpdateAvailable != nil {
				c.opts.OnUpdateAvailable(msg.Version)
			}
			c.notify("Update available", fmt.Sprintf("Version %s is ready. Reload to update.", msg.Version))
		case notify.TypeSyncComplete:
			if c.opts.OnSyncComplete != nil {
				c.opts.OnSyncComplete(msg)
			}
			if msg.Synced > 0 {
				c.notify("Sync complete", fmt.Sprintf("%d %s synced.", msg.Synced, msg.Category))
			}
		case notify.TypeError:
			c.log.Warn("worker reported an error", offsync.Fields{"err": msg.Error})
		}
	}
}

func (c *Client) notify(title, body string) {
	if c.opts.Notify != nil {
		c.opts.Notify(title, body)
	}
}

func (c *Client) getPort() (notify.Port, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.port == nil {
		return nil, ErrNotInitialized
	}
	return c.port, nil
}

func (c *Client) IsOnline() bool {
	if c.opts.Online == nil {
		return true
	}
	return c.opts.Online()
}

func (c *Client) IsInstalled() bool {
	return c.opts.Installed != nil && c.opts.Installed()
}

// SaveOfflineTask queues a task mutation and asks the worker to sync tasks.
// The entry is durable once this returns, even if the worker is unreachable.
func (c *Client) SaveOfflineTask(ctx context.Context, payload json.RawMessage) (outbox.Entry, error) {
	return c.save(ctx, outbox.KindTask, payload)
}

// SaveOfflineHabit is SaveOfflineTask for habits.
func (c *Client) SaveOfflineHabit(ctx context.Context, payload json.RawMessage) (outbox.Entry, error) {
	return c.save(ctx, outbox.KindHabit, payload)
}

func (c *Client) save(ctx context.Context, kind outbox.Kind, payload json.RawMessage) (outbox.Entry, error) {
	if c.opts.Outbox == nil {
		return outbox.Entry{}, ErrNoOutbox
	}
	e, err := c.opts.Outbox.Enqueue(ctx, kind, payload)
	if err != nil {
		c.log.Error("offline save failed, mutation not queued", offsync.Fields{"kind": string(kind), "err": err})
		return outbox.Entry{}, err
	}
	if err := c.register(ctx, syncer.Tag(kind)); err != nil {
		c.log.Warn("sync registration failed, entry waits for the next trigger", offsync.Fields{"id": e.ID, "err": err})
	}
	return e, nil
}

// TriggerSync registers a background sync for every kind.
func (c *Client) TriggerSync(ctx context.Context) error {
	var errs []error
	for _, k := range outbox.Kinds {
		if err := c.register(ctx, syncer.Tag(k)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) register(ctx context.Context, tag string) error {
	port, err := c.getPort()
	if err != nil {
		return err
	}
	return port.Send(ctx, notify.Message{Type: notify.TypeSyncRegister, Tag: tag})
}

func (c *Client) GetCachedData(ctx context.Context, key string) ([]byte, bool, error) {
	if c.opts.Cache == nil {
		return nil, false, ErrNoCache
	}
	return c.opts.Cache.GetData(ctx, key)
}

func (c *Client) SaveToCache(ctx context.Context, key string, data []byte) error {
	if c.opts.Cache == nil {
		return ErrNoCache
	}
	return c.opts.Cache.PutData(ctx, key, data)
}

// WorkerVersion asks the worker for its active cache generation.
func (c *Client) WorkerVersion(ctx context.Context) (string, error) {
	port, err := c.getPort()
	if err != nil {
		return "", err
	}
	reply, err := port.Request(ctx, notify.Message{Type: notify.TypeGetVersion})
	if err != nil {
		return "", err
	}
	return reply.Version, nil
}

// ActivateUpdate sends SKIP_WAITING and returns the newly active generation.
func (c *Client) ActivateUpdate(ctx context.Context) (string, error) {
	port, err := c.getPort()
	if err != nil {
		return "", err
	}
	reply, err := port.Request(ctx, notify.Message{Type: notify.TypeSkipWaiting})
	if err != nil {
		return "", err
	}
	return reply.Version, nil
}

// Close disconnects from the worker and waits for the dispatcher to stop.
func (c *Client) Close() error {
	c.mu.Lock()
	port, done := c.port, c.done
	c.port = nil
	c.mu.Unlock()
	if port == nil {
		return nil
	}
	err := port.Close()
	<-done
	return err
}
