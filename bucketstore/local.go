package bucketstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type localBucket struct {
	keys     map[string]struct{}
	openedAt time.Time
}

// Local keeps bucket metadata in-process. It pairs with in-process providers
// (ristretto, bigcache) whose contents do not outlive the process either.
type Local struct {
	mu      sync.RWMutex
	buckets map[string]*localBucket
}

var _ Store = (*Local)(nil)

func NewLocal() *Local {
	return &Local{buckets: make(map[string]*localBucket)}
}

func (s *Local) Open(_ context.Context, name string) error {
	s.mu.Lock()
	s.open(name)
	s.mu.Unlock()
	return nil
}

// open requires s.mu held for writing.
func (s *Local) open(name string) *localBucket {
	b, ok := s.buckets[name]
	if !ok {
		b = &localBucket{keys: make(map[string]struct{}), openedAt: time.Now()}
		s.buckets[name] = b
	}
	return b
}

func (s *Local) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		out = append(out, name)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *Local) Track(_ context.Context, name, storageKey string) error {
	s.mu.Lock()
	s.open(name).keys[storageKey] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Local) Keys(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[name]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(b.keys))
	for k := range b.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Local) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.buckets, name)
	s.mu.Unlock()
	return nil
}

func (s *Local) Close(_ context.Context) error { return nil }
