package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	gen      uint64
	payload  []byte
	storedAt time.Time
}

// MemoryStore keeps results in process memory.
type MemoryStore struct {
	ttl time.Duration

	mu      sync.RWMutex
	gen     uint64
	entries map[string]memoryEntry
}

// NewMemoryStore creates an in-memory store. A zero ttl keeps entries until
// the next invalidation.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Generation(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.gen != s.gen {
		return nil, false, nil
	}
	if s.ttl > 0 && time.Since(e.storedAt) >= s.ttl {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, gen uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return nil // Result predates an invalidation
	}
	s.entries[key] = memoryEntry{gen: gen, payload: payload, storedAt: time.Now()}
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
