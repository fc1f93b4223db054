package replay

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a per-process replay cache. Entries expire lazily and are swept
// once the map grows past sweepThreshold.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

const sweepThreshold = 1024

type Option func(*InMemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if expires, ok := s.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	if len(s.entries) >= sweepThreshold {
		for k, expires := range s.entries {
			if !now.Before(expires) {
				delete(s.entries, k)
			}
		}
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

// Len returns the number of tracked entries, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
