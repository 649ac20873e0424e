// Package cache holds the generation-scoped result cache and the invalidator
// that discards it.
//
// Every entry belongs to the generation current when its request was
// dispatched. Invalidation bumps the generation, so older entries can never
// be read again, and writes carrying a stale generation are dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/portalgate/internal/core/domain"
	"github.com/vietddude/portalgate/internal/metrics"
)

// Store is a generation-scoped key/value backend.
type Store interface {
	// Generation returns the current cache generation.
	Generation(ctx context.Context) (uint64, error)
	// Get returns the payload stored for key in the current generation.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores payload for key if gen is still the current generation.
	Set(ctx context.Context, key string, gen uint64, payload []byte) error
	// Clear advances the generation and drops all entries.
	Clear(ctx context.Context) error
}

// Invalidator discards every cached result. InvalidateAll is idempotent and
// best-effort: backend failures are logged, never returned.
type Invalidator struct {
	store Store
	log   *slog.Logger

	mu    sync.Mutex
	count uint64
	last  time.Time
}

// NewInvalidator creates an invalidator for store.
func NewInvalidator(store Store, log *slog.Logger) *Invalidator {
	if log == nil {
		log = slog.Default()
	}
	return &Invalidator{store: store, log: log}
}

// InvalidateAll forces every subsequent read to bypass previously cached
// results. reason labels the trigger in logs and metrics.
func (i *Invalidator) InvalidateAll(ctx context.Context, reason string) {
	if err := i.store.Clear(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			i.log.Debug("Result cache closed, skipping invalidation", "reason", reason)
			return
		}
		i.log.Error("Failed to invalidate result cache", "reason", reason, "error", err)
		return
	}

	i.mu.Lock()
	i.count++
	i.last = time.Now()
	i.mu.Unlock()

	metrics.CacheInvalidations.WithLabelValues(reason).Inc()
	i.log.Info("Result cache invalidated", "reason", reason)
}

// Stats returns how many invalidations succeeded and when the last one ran.
func (i *Invalidator) Stats() (count uint64, last time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.count, i.last
}

// Results stores GraphQL responses in a Store.
type Results struct {
	store Store
	log   *slog.Logger
}

// NewResults wraps store for response caching.
func NewResults(store Store, log *slog.Logger) *Results {
	if log == nil {
		log = slog.Default()
	}
	return &Results{store: store, log: log}
}

type cachedResponse struct {
	Data   json.RawMessage       `json:"data,omitempty"`
	Errors []domain.GraphQLError `json:"errors,omitempty"`
}

// Generation returns the generation to tag an in-flight request with.
func (r *Results) Generation(ctx context.Context) uint64 {
	gen, err := r.store.Generation(ctx)
	if err != nil {
		r.log.Warn("Failed to read cache generation", "error", err)
	}
	return gen
}

// Lookup returns the cached response for key, if any. Backend errors count as
// a miss.
func (r *Results) Lookup(ctx context.Context, key string) (*domain.Response, bool) {
	payload, ok, err := r.store.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		r.log.Warn("Result cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var cr cachedResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		r.log.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &domain.Response{Data: cr.Data, Errors: cr.Errors, StatusCode: 200, FromCache: true}, true
}

// Save stores resp under key for generation gen.
func (r *Results) Save(ctx context.Context, key string, gen uint64, resp *domain.Response) error {
	payload, err := json.Marshal(cachedResponse{Data: resp.Data, Errors: resp.Errors})
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}
	if err := r.store.Set(ctx, key, gen, payload); err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	return nil
}
