// Package outbox is the durable queue of mutations made while offline.
//
// Entries are grouped by Kind, one table per kind. Every mutation is a single
// autocommitted statement, so the page process (enqueue) and the worker
// process (drain) can share one database file without cross-process locking
// beyond SQLite's own. Remove is the commit point of a delivery.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind of queued mutation.
type Kind string

const (
	KindTask  Kind = "task"
	KindHabit Kind = "habit"
)

// Kinds lists every kind in drain order.
var Kinds = []Kind{KindTask, KindHabit}

// Category is the plural name used in notifications ("tasks", "habits").
func (k Kind) Category() string { return string(k) + "s" }

func (k Kind) Valid() bool { return k == KindTask || k == KindHabit }

// ParseKind accepts the singular kind or its category.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if s == string(k) || s == k.Category() {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
)

var (
	ErrUnknownKind    = errors.New("outbox: unknown kind")
	ErrInvalidPayload = errors.New("outbox: payload must be a JSON object")
	ErrInvalidStatus  = errors.New("outbox: unknown status")
)

// Entry is one queued mutation. Payload is the request body exactly as it was
// submitted and is replayed verbatim on delivery.
type Entry struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a crash-durable per-kind queue.
type Store interface {
	// Initialize creates the queues if missing. Safe to call concurrently
	// and from several processes.
	Initialize(ctx context.Context) error

	// Enqueue persists a pending entry before returning it.
	Enqueue(ctx context.Context, kind Kind, payload json.RawMessage) (Entry, error)

	// ListPending returns pending entries in insertion order.
	ListPending(ctx context.Context, kind Kind) ([]Entry, error)

	// Remove deletes an entry. Removing a missing id is not an error.
	Remove(ctx context.Context, kind Kind, id string) error

	// UpdateStatus is bookkeeping only; Remove is the real commit point.
	UpdateStatus(ctx context.Context, kind Kind, id string, status Status) error

	// Count returns the number of pending entries.
	Count(ctx context.Context, kind Kind) (int, error)

	Close() error
}

func validPayload(p json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(p, &obj) == nil && obj != nil
}
