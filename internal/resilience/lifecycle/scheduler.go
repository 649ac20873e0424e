// Package lifecycle resets the result cache on triggers that are independent
// of any single request: a fixed interval, and each return of the host
// process to the foreground.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/portalgate/internal/core/clock"
	"github.com/vietddude/portalgate/internal/metrics"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("lifecycle scheduler already started")

// DefaultInterval is the periodic invalidation interval.
const DefaultInterval = 5 * time.Minute

// Trigger names what caused an invalidation.
type Trigger string

const (
	TriggerForeground Trigger = "foreground"
	TriggerPeriodic   Trigger = "periodic"
)

// Invalidator is the cache reset the scheduler drives.
type Invalidator interface {
	InvalidateAll(ctx context.Context, reason string)
}

// Event is passed to the observer after each invalidation.
type Event struct {
	Trigger Trigger
	At      time.Time
}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration
	Initial  AppState
	Observer func(Event)
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Scheduler owns the periodic timer and the foreground listener.
type Scheduler struct {
	inv      Invalidator
	machine  *Machine
	interval time.Duration
	observer func(Event)
	clock    clock.Clock
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(inv Invalidator, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		inv:      inv,
		machine:  NewMachine(cfg.Initial),
		interval: cfg.Interval,
		observer: cfg.Observer,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}
}

// Start launches the periodic trigger and, when states is non-nil, a listener
// that feeds each received state to Observe. Both stop on Stop or when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context, states <-chan AppState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = runCtx, cancel
	s.running = true

	ticker := s.clock.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C():
				s.fire(runCtx, TriggerPeriodic)
			}
		}
	}()

	if states != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case st, ok := <-states:
					if !ok {
						return
					}
					s.Observe(st)
				}
			}
		}()
	}

	s.log.Info("Lifecycle scheduler started", "interval", s.interval, "state", s.machine.Current())
	return nil
}

// Stop cancels both triggers and waits for their goroutines to exit. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Lifecycle scheduler stopped")
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	_, ok := s.runContext()
	return ok
}

func (s *Scheduler) runContext() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx, s.running
}

// Observe records a host state report and fires the foreground trigger on
// the Inactive -> Active edge. It returns whether an invalidation fired.
// Reports are tracked even while stopped, but only a running scheduler fires.
func (s *Scheduler) Observe(state AppState) bool {
	t, changed := s.machine.Observe(state, s.clock.Now())
	if !changed {
		return false
	}
	metrics.LifecycleTransitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	s.log.Debug("Lifecycle transition", "from", t.From, "to", t.To)

	if !t.Foregrounded() {
		return false
	}
	ctx, running := s.runContext()
	if !running {
		return false
	}
	s.fire(ctx, TriggerForeground)
	return true
}

// State returns the last observed host state.
func (s *Scheduler) State() AppState {
	return s.machine.Current()
}

func (s *Scheduler) fire(ctx context.Context, trigger Trigger) {
	s.inv.InvalidateAll(ctx, string(trigger))

	if s.observer != nil {
		s.observer(Event{Trigger: trigger, At: s.clock.Now()})
	}
}
