package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/portalgate/internal/core/clock"
)

// Sweeper periodically removes retry state that no terminal transition
// cleaned up.
type Sweeper struct {
	coord      *Coordinator
	interval   time.Duration
	staleAfter time.Duration
	clock      clock.Clock
}

// NewSweeper creates a sweeper for coord.
func NewSweeper(coord *Coordinator, interval, staleAfter time.Duration, clk clock.Clock) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		coord:      coord,
		interval:   interval,
		staleAfter: staleAfter,
		clock:      clk,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 || s.staleAfter <= 0 {
		return // Sweeping disabled
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if n := s.coord.Sweep(s.staleAfter); n > 0 {
				slog.Warn("Swept stale retry state", "removed", n, "remaining", s.coord.Len())
			}
		}
	}
}
