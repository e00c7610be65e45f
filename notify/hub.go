package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/unkn0wn-root/offsync"
)

// Handler processes page -> worker messages. reply answers the sender only; it
// sets the reply ID and may be called at most once.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message, reply func(Message))
}

type HandlerFunc func(ctx context.Context, msg Message, reply func(Message))

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message, reply func(Message)) {
	f(ctx, msg, reply)
}

type HubOptions struct {
	Handler Handler
	Logger  offsync.Logger
	Buffer  int // per-connection queue; 0 => 64
}

// Hub is the worker's end: it fans broadcasts out to every connection and
// routes page messages to the Handler.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*hubConn
	handler Handler
	log     offsync.Logger
	buffer  int
}

type hubConn struct {
	deliver func(Message) bool
	close   func()
}

func NewHub(opts HubOptions) *Hub {
	h := &Hub{
		conns:   make(map[string]*hubConn),
		handler: opts.Handler,
		log:     opts.Logger,
		buffer:  opts.Buffer,
	}
	if h.log == nil {
		h.log = offsync.NopLogger{}
	}
	return h
}

// SetHandler replaces the message handler.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Connect opens an in-process page connection.
func (h *Hub) Connect() Port {
	p := &localPort{hub: h, inbox: newMailbox(h.buffer)}
	p.id = h.register(p.deliver, p.inbox.close)
	return p
}

func (h *Hub) register(deliver func(Message) bool, closeFn func()) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = &hubConn{deliver: deliver, close: closeFn}
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Debug("page connected", offsync.Fields{"conn": id, "clients": n})
	return id
}

func (h *Hub) disconnect(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	n := len(h.conns)
	h.mu.Unlock()
	if ok {
		c.close()
		h.log.Debug("page disconnected", offsync.Fields{"conn": id, "clients": n})
	}
}

func (h *Hub) connected(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[id]
	return ok
}

// Clients is the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues msg on every connection and returns how many accepted it.
// Connections with a full queue miss the message.
func (h *Hub) Broadcast(msg Message) int {
	msg = stamp(msg)
	h.mu.RLock()
	targets := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.deliver(msg) {
			sent++
		}
	}
	if sent < len(targets) {
		h.log.Debug("broadcast dropped for slow pages", offsync.Fields{"type": string(msg.Type), "dropped": len(targets) - sent})
	}
	return sent
}

// Dispatch runs the handler for a message received on connection from.
func (h *Hub) Dispatch(ctx context.Context, from string, msg Message) {
	h.mu.RLock()
	handler := h.handler
	c := h.conns[from]
	h.mu.RUnlock()

	var once sync.Once
	reply := func(r Message) {
		once.Do(func() {
			if c == nil {
				return
			}
			r.ID = msg.ID
			if !c.deliver(stamp(r)) {
				h.log.Warn("reply dropped", offsync.Fields{"conn": from, "type": string(r.Type)})
			}
		})
	}
	if handler == nil {
		if msg.ID != "" {
			reply(Message{Type: TypeError, Error: ErrNoHandler.Error()})
		}
		return
	}
	handler.HandleMessage(ctx, msg, reply)
}

// Close disconnects every page.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*hubConn)
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
