package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Port is the page's end of the channel.
type Port interface {
	// Send delivers msg to the worker without waiting for an answer.
	Send(ctx context.Context, msg Message) error

	// Request sends msg and waits for the reply carrying the same ID. An empty
	// ID is filled in. An ERROR reply is returned as *RemoteError.
	Request(ctx context.Context, msg Message) (Message, error)

	// Messages yields worker broadcasts. It is closed when the port closes.
	Messages() <-chan Message

	Close() error
}

// mailbox is a bounded, close-safe message queue. put never blocks.
type mailbox struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func newMailbox(n int) *mailbox {
	if n <= 0 {
		n = 64
	}
	return &mailbox{ch: make(chan Message, n)}
}

func (m *mailbox) put(msg Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.ch <- msg:
		return true
	default:
		return false
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
}

// waiters correlates replies with outstanding requests.
type waiters struct {
	mu sync.Mutex
	m  map[string]chan Message
}

func (w *waiters) add(id string) chan Message {
	ch := make(chan Message, 1)
	w.mu.Lock()
	if w.m == nil {
		w.m = make(map[string]chan Message)
	}
	w.m[id] = ch
	w.mu.Unlock()
	return ch
}

func (w *waiters) remove(id string) {
	w.mu.Lock()
	delete(w.m, id)
	w.mu.Unlock()
}

// resolve hands msg to the request waiting for its ID, if any.
func (w *waiters) resolve(msg Message) bool {
	if msg.ID == "" {
		return false
	}
	w.mu.Lock()
	ch, ok := w.m[msg.ID]
	if ok {
		delete(w.m, msg.ID)
	}
	w.mu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

func request(ctx context.Context, w *waiters, send func(context.Context, Message) error, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	ch := w.add(msg.ID)
	defer w.remove(msg.ID)

	if err := send(ctx, msg); err != nil {
		return Message{}, err
	}
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case reply := <-ch:
		if reply.Type == TypeError {
			return reply, &RemoteError{Message: reply.Error}
		}
		return reply, nil
	}
}

func stamp(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

// localPort is an in-process page connection.
type localPort struct {
	hub     *Hub
	id      string
	inbox   *mailbox
	waiters waiters
	once    sync.Once
}

var _ Port = (*localPort)(nil)

func (p *localPort) deliver(msg Message) bool {
	if p.waiters.resolve(msg) {
		return true
	}
	return p.inbox.put(msg)
}

func (p *localPort) Send(ctx context.Context, msg Message) error {
	if !p.hub.connected(p.id) {
		return ErrClosed
	}
	p.hub.Dispatch(ctx, p.id, stamp(msg))
	return nil
}

func (p *localPort) Request(ctx context.Context, msg Message) (Message, error) {
	return request(ctx, &p.waiters, p.Send, msg)
}

func (p *localPort) Messages() <-chan Message { return p.inbox.ch }

func (p *localPort) Close() error {
	p.once.Do(func() { p.hub.disconnect(p.id) })
	return nil
}
