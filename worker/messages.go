package worker

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/offsync"
	"github.com/unkn0wn-root/offsync/notify"
)

var _ notify.Handler = (*Host)(nil)

// HandleMessage answers page messages. Requests (messages with an ID) always
// get a reply; fire-and-forget messages only get one on failure.
func (h *Host) HandleMessage(ctx context.Context, msg notify.Message, reply func(notify.Message)) {
	fail := func(err error) {
		h.log.Warn("page message failed", offsync.Fields{"type": string(msg.Type), "err": err})
		reply(notify.Message{Type: notify.TypeError, Error: err.Error()})
	}

	switch msg.Type {
	case notify.TypeGetVersion:
		reply(notify.Message{Type: notify.TypeVersion, Version: h.Version()})

	case notify.TypeSkipWaiting:
		version, err := h.SkipWaiting(ctx)
		if err != nil {
			fail(err)
			return
		}
		if msg.ID != "" {
			reply(notify.Message{Type: notify.TypeVersion, Version: version})
		}

	case notify.TypeSyncRegister:
		if err := h.coord.Register(msg.Tag); err != nil {
			fail(err)
			return
		}
		if msg.ID != "" {
			reply(notify.Message{Type: notify.TypeSyncRegister, Tag: msg.Tag})
		}

	default:
		fail(fmt.Errorf("worker: unsupported message type %q", msg.Type))
	}
}
