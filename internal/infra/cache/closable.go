package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Clear once the backend has been detached.
var ErrClosed = errors.New("result cache closed")

// Closable wraps a Store so it can be detached from its backend while
// requests are still running. After Close every read misses and every write
// or clear is dropped without touching the backend.
type Closable struct {
	mu     sync.RWMutex
	store  Store
	closed bool
}

// NewClosable wraps store.
func NewClosable(store Store) *Closable {
	return &Closable{store: store}
}

// Close detaches the backend. It waits for operations already using the
// backend, so the backend can be closed as soon as Close returns.
func (c *Closable) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Closable) Generation(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, nil
	}
	return c.store.Generation(ctx)
}

func (c *Closable) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false, nil
	}
	return c.store.Get(ctx, key)
}

func (c *Closable) Set(ctx context.Context, key string, gen uint64, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.store.Set(ctx, key, gen, payload)
}

func (c *Closable) Clear(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return c.store.Clear(ctx)
}
