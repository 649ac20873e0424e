package classify

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Episode spans one caller request: the original attempt and all of its
// retries. It lets the cache be invalidated at most once per episode no matter
// how many attempts fail or how many heuristics an attempt matches.
type Episode struct {
	ID string

	invalidated atomic.Bool
}

// NewEpisode opens a failure episode with a fresh correlation ID.
func NewEpisode() *Episode {
	return &Episode{ID: uuid.NewString()}
}

// ClaimInvalidation returns true exactly once per episode.
func (e *Episode) ClaimInvalidation() bool {
	return e.invalidated.CompareAndSwap(false, true)
}

// Invalidated reports whether the episode already triggered an invalidation.
func (e *Episode) Invalidated() bool {
	return e.invalidated.Load()
}
