package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store is the byte-level backend behind RefreshCache.
// Get returns (nil, false, nil) on a miss; Set keeps the value at most ttl.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InMemoryStore implements Store using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryStore struct {
	mu    sync.Mutex
	clock clockwork.Clock
	data  map[string]storeEntry
}

type storeEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryStore creates an in-memory store. A nil clock uses wall time.
func NewInMemoryStore(clock clockwork.Clock) *InMemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryStore{
		clock: clock,
		data:  make(map[string]storeEntry),
	}
}

// Get returns the stored bytes if present and not expired.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value until ttl elapses. The slice is copied.
func (s *InMemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = storeEntry{
		value:     buf,
		expiresAt: s.clock.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
