package retry

import (
	"sync"
	"time"
)

// Entry is the retry state of one operation identity.
type Entry struct {
	Attempts int `json:"attempts"`
	// Scheduled counts retries whose timer has not fired yet.
	Scheduled int `json:"scheduled"`
	// InFlight counts re-issued attempts that have not reported back.
	InFlight int `json:"in_flight"`
	// Closed marks the entry for removal once nothing is outstanding.
	Closed    bool      `json:"closed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outstanding returns the number of retries scheduled or running for the key.
func (e Entry) Outstanding() int {
	return e.Scheduled + e.InFlight
}

// Store holds retry state. It is owned by a single Coordinator and never
// persisted beyond the process.
type Store interface {
	Load(key string) (Entry, bool)
	Save(key string, e Entry)
	Delete(key string)
	Snapshot() map[string]Entry
	Len() int
}

// MemoryStore is a mutex-guarded map implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Load(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) Save(key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MemoryStore) Snapshot() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// keyLocks hands out one mutex per key so updates for a key are sequenced
// without serializing unrelated keys.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
