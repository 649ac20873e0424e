// Package retry owns per-operation retry counters, computes exponential
// backoff and re-issues failed operations after the computed delay.
package retry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/portalgate/internal/core/clock"
	"github.com/vietddude/portalgate/internal/metrics"
)

// Config defines retry behavior.
type Config struct {
	// Ceiling is the maximum number of retries after the first failure.
	Ceiling int
	// BaseDelay is the delay before the first retry; each later retry doubles it.
	BaseDelay time.Duration
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultConfig provides the documented defaults.
var DefaultConfig = Config{
	Ceiling:   3,
	BaseDelay: 100 * time.Millisecond,
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.Ceiling < 0 {
		return fmt.Errorf("retry ceiling must be >= 0, got %d", c.Ceiling)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive, got %v", c.BaseDelay)
	}
	return nil
}

// Action is the coordinator's answer to a failed attempt.
type Action int

const (
	ActionGiveUp Action = iota
	ActionRetry
)

func (a Action) String() string {
	if a == ActionRetry {
		return "retry"
	}
	return "give_up"
}

// Decision describes what the coordinator did with a failure.
type Decision struct {
	Action Action
	// Retry is the 1-based number of the scheduled retry (0 when giving up).
	Retry int
	Delay time.Duration
}

// Coordinator tracks retry state per operation identity.
type Coordinator struct {
	cfg   Config
	store Store
	clock clock.Clock
	locks keyLocks
	log   *slog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator creates a coordinator with its own retry state.
func NewCoordinator(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:   cfg,
		store: NewMemoryStore(),
		clock: clock.Real(),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempt records a failure for key. When the failure is retryable and the
// ceiling has not been reached, it increments the counter and schedules
// reissue after the backoff delay. Otherwise it returns ActionGiveUp and
// clears the key's state once no other retry for the key is outstanding.
// Until then the counter stays where it is, so concurrent requests for the
// same key give up too instead of starting over.
//
// The scheduled retry is not tied to any caller context and fires even if the
// original caller has stopped waiting. The key stays in flight until reissue
// returns, so reissue must report its outcome synchronously.
func (c *Coordinator) Attempt(key string, retryable bool, reissue func()) Decision {
	unlock := c.locks.lock(key)
	defer unlock()

	entry, ok := c.store.Load(key)
	if !retryable || entry.Attempts >= c.cfg.Ceiling {
		if ok {
			c.release(key, entry)
		}
		return Decision{Action: ActionGiveUp}
	}

	entry.Attempts++
	entry.Scheduled++
	entry.Closed = false
	entry.UpdatedAt = c.clock.Now()
	c.store.Save(key, entry)
	c.observe()

	delay := Backoff(c.cfg, entry.Attempts)
	c.clock.AfterFunc(delay, func() {
		c.fired(key)
		defer c.settled(key)
		reissue()
	})

	c.log.Debug("Retry scheduled", "key", key, "retry", entry.Attempts, "delay", delay)
	return Decision{Action: ActionRetry, Retry: entry.Attempts, Delay: delay}
}

// Succeeded clears key's retry state so a later failure starts from zero.
func (c *Coordinator) Succeeded(key string) {
	unlock := c.locks.lock(key)
	defer unlock()

	entry, ok := c.store.Load(key)
	if !ok {
		return
	}
	entry.Attempts = 0
	c.release(key, entry)
}

// release removes the entry, or marks it closed while retries from other
// requests are still outstanding. Caller holds the key lock.
func (c *Coordinator) release(key string, entry Entry) {
	if entry.Outstanding() == 0 {
		c.store.Delete(key)
	} else {
		entry.Closed = true
		entry.UpdatedAt = c.clock.Now()
		c.store.Save(key, entry)
	}
	c.observe()
}

// Attempts returns the current retry count for key.
func (c *Coordinator) Attempts(key string) int {
	e, _ := c.store.Load(key)
	return e.Attempts
}

// Snapshot returns a copy of all retry state.
func (c *Coordinator) Snapshot() map[string]Entry {
	return c.store.Snapshot()
}

// Len returns the number of keys holding retry state.
func (c *Coordinator) Len() int {
	return c.store.Len()
}

// Config returns the coordinator's configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Sweep removes entries with no outstanding retry that have not been touched
// for longer than staleAfter. It returns the number removed.
func (c *Coordinator) Sweep(staleAfter time.Duration) int {
	cutoff := c.clock.Now().Add(-staleAfter)
	removed := 0

	for key := range c.store.Snapshot() {
		unlock := c.locks.lock(key)
		e, ok := c.store.Load(key)
		if ok && e.Outstanding() == 0 && e.UpdatedAt.Before(cutoff) {
			c.store.Delete(key)
			removed++
		}
		unlock()
	}

	if removed > 0 {
		metrics.RetryStateSwept.Add(float64(removed))
		c.observe()
	}
	return removed
}

func (c *Coordinator) fired(key string) {
	unlock := c.locks.lock(key)
	defer unlock()

	if e, ok := c.store.Load(key); ok {
		e.Scheduled--
		e.InFlight++
		e.UpdatedAt = c.clock.Now()
		c.store.Save(key, e)
	}
}

func (c *Coordinator) settled(key string) {
	unlock := c.locks.lock(key)
	defer unlock()

	e, ok := c.store.Load(key)
	if !ok {
		return
	}
	e.InFlight--
	e.UpdatedAt = c.clock.Now()
	if e.Closed && e.Outstanding() == 0 {
		c.store.Delete(key)
		c.observe()
		return
	}
	c.store.Save(key, e)
}

func (c *Coordinator) observe() {
	metrics.RetryStateEntries.Set(float64(c.store.Len()))
}

// Backoff returns the delay before the given 1-based retry:
// BaseDelay * 2^(retry-1), capped at MaxDelay when set.
func Backoff(cfg Config, retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := cfg.BaseDelay << uint(retry-1)
	if cfg.MaxDelay > 0 && (delay <= 0 || delay > cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return delay
}
