// Package notify is the control channel between the worker and every open
// page: broadcasts from the worker (sync completion, available updates) and
// requests from pages (activate the waiting worker, report the version,
// register a background sync).
//
// Messages are plain JSON. Pages connect in-process through Hub.Connect or
// remotely through Server and Dial; both ends behave the same. Nothing is
// persisted: a message for a page that is not connected is lost.
package notify

import (
	"errors"
	"time"
)

type Type string

const (
	TypeSyncComplete    Type = "SYNC_COMPLETE"    // worker -> pages: Category, Synced, Failed
	TypeUpdateAvailable Type = "UPDATE_AVAILABLE" // worker -> pages: Version
	TypeSkipWaiting     Type = "SKIP_WAITING"     // page -> worker
	TypeGetVersion      Type = "GET_VERSION"      // page -> worker, answered with VERSION
	TypeVersion         Type = "VERSION"          // reply: Version
	TypeSyncRegister    Type = "SYNC_REGISTER"    // page -> worker: Tag
	TypeError           Type = "ERROR"            // reply: Error
)

// Message is the single wire shape for every type. A reply carries the ID of
// the request it answers.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Type      Type      `json:"type"`
	Category  string    `json:"category,omitempty"`
	Version   string    `json:"version,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Synced    int       `json:"synced,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	ErrClosed    = errors.New("notify: port closed")
	ErrNoHandler = errors.New("notify: no handler registered")
)

// RemoteError is returned by Port.Request when the worker replied with ERROR.
type RemoteError struct{ Message string }

func (e *RemoteError) Error() string { return "notify: worker error: " + e.Message }
