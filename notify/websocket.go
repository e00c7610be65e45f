package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/unkn0wn-root/offsync"
)

const writeTimeout = 5 * time.Second

type ServerOptions struct {
	// OriginPatterns are passed to websocket.Accept. Empty allows same-host only.
	OriginPatterns []string
	Logger         offsync.Logger
}

// Server exposes a Hub over WebSocket. Each connection is one page.
type Server struct {
	hub  *Hub
	opts ServerOptions
	log  offsync.Logger
}

var _ http.Handler = (*Server)(nil)

func NewServer(hub *Hub, opts ServerOptions) *Server {
	s := &Server{hub: hub, opts: opts, log: opts.Logger}
	if s.log == nil {
		s.log = offsync.NopLogger{}
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", offsync.Fields{"remote": r.RemoteAddr, "err": err})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newMailbox(s.hub.buffer)
	id := s.hub.register(out.put, out.close)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, conn, out)
	}()

	s.readLoop(ctx, conn, id)
	cancel()
	s.hub.disconnect(id)
	wg.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, id string) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.log.Debug("websocket read ended", offsync.Fields{"conn": id, "err": err})
			}
			return
		}
		s.hub.Dispatch(ctx, id, stamp(msg))
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, out *mailbox) {
	for msg := range out.ch {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, conn, msg)
		cancel()
		if err != nil {
			s.log.Debug("websocket write failed", offsync.Fields{"type": string(msg.Type), "err": err})
			return
		}
	}
}

// wsPort is a Port connected to a Server.
type wsPort struct {
	conn    *websocket.Conn
	inbox   *mailbox
	waiters waiters
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

var _ Port = (*wsPort)(nil)

// Dial connects a page to the worker's notify endpoint (ws:// or wss:// URL).
func Dial(ctx context.Context, url string) (Port, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("notify: dial %s: %w", url, err)
	}
	rctx, cancel := context.WithCancel(context.Background())
	p := &wsPort{
		conn:   conn,
		inbox:  newMailbox(0),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.readLoop(rctx)
	return p, nil
}

func (p *wsPort) readLoop(ctx context.Context) {
	defer close(p.done)
	defer p.inbox.close()
	for {
		var msg Message
		if err := wsjson.Read(ctx, p.conn, &msg); err != nil {
			return
		}
		if !p.waiters.resolve(msg) {
			p.inbox.put(msg)
		}
	}
}

func (p *wsPort) Send(ctx context.Context, msg Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, p.conn, stamp(msg)); err != nil {
		return fmt.Errorf("notify: send %s: %w", msg.Type, err)
	}
	return nil
}

func (p *wsPort) Request(ctx context.Context, msg Message) (Message, error) {
	return request(ctx, &p.waiters, p.Send, msg)
}

func (p *wsPort) Messages() <-chan Message { return p.inbox.ch }

func (p *wsPort) Close() error {
	var err error
	p.once.Do(func() {
		err = p.conn.Close(websocket.StatusNormalClosure, "")
		p.cancel()
		<-p.done
	})
	return err
}
