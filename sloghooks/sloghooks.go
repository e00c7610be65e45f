// Package sloghooks implements offsync.Hooks on top of log/slog, with
// sampling for the events that can flood (self-heal, offline fallbacks).
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/offsync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	FallbackEvery uint64
	// Optional storage key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	fallbackCtr atomic.Uint64
}

var _ offsync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("offsync.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("offsync.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) WarmFailed(url string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offsync.warm_failed", "url", url, "err", err)
}

func (h *Hooks) GenerationEvicted(name string, keys int) {
	if h.l == nil {
		return
	}
	h.l.Info("offsync.generation_evicted", "generation", name, "keys", keys)
}

func (h *Hooks) OfflineFallback(url, source string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	h.l.Info("offsync.offline_fallback", "url", url, "source", source)
}

func (h *Hooks) EntryDelivered(kind, id string) {
	if h.l == nil {
		return
	}
	h.l.Debug("offsync.entry_delivered", "kind", kind, "id", id)
}

func (h *Hooks) EntryFailed(kind, id string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offsync.entry_failed", "kind", kind, "id", id, "err", err)
}

func (h *Hooks) DrainCompleted(kind string, synced, failed int) {
	if h.l == nil {
		return
	}
	h.l.Info("offsync.drain_completed",
		"kind", kind,
		"synced", synced,
		"failed", failed)
}
