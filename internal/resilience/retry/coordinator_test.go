package retry

import (
	"sync"
	"testing"
	"time"

	"github.com/vietddude/portalgate/internal/core/clock"
)

func newTestCoordinator(clk *clock.Fake) *Coordinator {
	return NewCoordinator(DefaultConfig, WithClock(clk))
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		cfg    Config
		retry  int
		expect time.Duration
	}{
		{DefaultConfig, 1, 100 * time.Millisecond},
		{DefaultConfig, 2, 200 * time.Millisecond},
		{DefaultConfig, 3, 400 * time.Millisecond},
		{DefaultConfig, 0, 100 * time.Millisecond},
		{Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second}, 3, 3 * time.Second},
		{Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second}, 200, 3 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.cfg, tt.retry); got != tt.expect {
			t.Errorf("Backoff(%+v, %d) = %v, want %v", tt.cfg, tt.retry, got, tt.expect)
		}
	}
}

func TestCoordinator_RetriesUpToCeiling(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)
	reissued := 0

	wantDelays := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, want := range wantDelays {
		d := c.Attempt("Q:a", true, func() { reissued++ })
		if d.Action != ActionRetry {
			t.Fatalf("failure %d: expected retry, got %v", i+1, d.Action)
		}
		if d.Retry != i+1 {
			t.Errorf("failure %d: expected retry number %d, got %d", i+1, i+1, d.Retry)
		}
		if d.Delay != want {
			t.Errorf("failure %d: expected delay %v, got %v", i+1, want, d.Delay)
		}
		if c.Attempts("Q:a") > DefaultConfig.Ceiling {
			t.Fatalf("attempt count exceeded ceiling: %d", c.Attempts("Q:a"))
		}
		clk.Advance(want)
	}

	if reissued != 3 {
		t.Errorf("expected 3 reissues, got %d", reissued)
	}

	d := c.Attempt("Q:a", true, func() { reissued++ })
	if d.Action != ActionGiveUp {
		t.Fatalf("expected give up after ceiling, got %v", d.Action)
	}
	if c.Len() != 0 {
		t.Errorf("expected state removed after give up, got %d entries", c.Len())
	}
	if clk.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", clk.Pending())
	}
}

func TestCoordinator_NonRetryableGivesUpImmediately(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	d := c.Attempt("Me:{}", false, func() { t.Error("must not reissue") })
	if d.Action != ActionGiveUp {
		t.Fatalf("expected give up, got %v", d.Action)
	}
	if clk.Pending() != 0 || len(clk.Delays()) != 0 {
		t.Error("no retry should have been scheduled")
	}
}

func TestCoordinator_NonRetryableClearsExistingState(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	c.Attempt("Q", true, func() {})
	clk.Advance(time.Second)
	c.Attempt("Q", false, func() {})

	if c.Len() != 0 {
		t.Errorf("expected state cleared, got %v", c.Snapshot())
	}
}

func TestCoordinator_SuccessResetsCounter(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	c.Attempt("Q", true, func() {})
	clk.Advance(100 * time.Millisecond)
	c.Attempt("Q", true, func() {})
	clk.Advance(200 * time.Millisecond)

	c.Succeeded("Q")
	if _, ok := c.Snapshot()["Q"]; ok {
		t.Fatal("expected state to be absent after success")
	}

	d := c.Attempt("Q", true, func() {})
	if d.Retry != 1 || d.Delay != 100*time.Millisecond {
		t.Errorf("expected counting to restart, got %+v", d)
	}

	// Reset is idempotent once the scheduled retry has settled.
	clk.Advance(100 * time.Millisecond)
	c.Succeeded("Q")
	c.Succeeded("Q")
	if c.Len() != 0 {
		t.Errorf("expected empty store, got %d", c.Len())
	}
}

func TestCoordinator_IndependentKeys(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	for i := 0; i < 3; i++ {
		c.Attempt("Q:a=1", true, func() {})
	}
	if d := c.Attempt("Q:a=1", true, func() {}); d.Action != ActionGiveUp {
		t.Fatalf("expected a=1 to hit ceiling")
	}

	d := c.Attempt("Q:a=2", true, func() {})
	if d.Action != ActionRetry || d.Retry != 1 {
		t.Errorf("a=2 should be unaffected, got %+v", d)
	}
}

func TestCoordinator_ConcurrentSameKeyNeverExceedsCeiling(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	retries := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := c.Attempt("Q", true, func() {})
			if d.Retry > DefaultConfig.Ceiling {
				t.Errorf("retry number %d exceeds ceiling", d.Retry)
			}
			if d.Action == ActionRetry {
				mu.Lock()
				retries++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Serialized sequence: R R R then G for the rest, since the entry stays
	// exhausted while its retries are outstanding.
	if retries != DefaultConfig.Ceiling {
		t.Errorf("expected %d retries from serialized updates, got %d", DefaultConfig.Ceiling, retries)
	}
	if n := c.Attempts("Q"); n > DefaultConfig.Ceiling {
		t.Errorf("counter %d exceeds ceiling", n)
	}
}

func TestCoordinator_Sweep(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	c.Attempt("fired", true, func() {})
	clk.Advance(100 * time.Millisecond)
	c.Attempt("pending", true, func() {})

	clk.Advance(20 * time.Millisecond)
	if n := c.Sweep(10 * time.Minute); n != 0 {
		t.Fatalf("nothing should be stale yet, swept %d", n)
	}

	// Let the outstanding retry fire, then age both entries past staleAfter.
	clk.Advance(11 * time.Minute)
	c.Attempt("pending2", true, func() {})

	removed := c.Sweep(10 * time.Minute)
	if removed != 2 {
		t.Errorf("expected 2 stale entries removed, got %d (%v)", removed, c.Snapshot())
	}
	if _, ok := c.Snapshot()["pending2"]; !ok {
		t.Error("entry with a pending retry must survive the sweep")
	}
}

func TestCoordinator_GiveUpKeepsStateWhileRetriesOutstanding(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	for i := 0; i < 3; i++ {
		c.Attempt("Q", true, func() {})
	}
	if d := c.Attempt("Q", true, func() {}); d.Action != ActionGiveUp {
		t.Fatalf("expected give up at ceiling, got %v", d.Action)
	}

	e, ok := c.Snapshot()["Q"]
	if !ok {
		t.Fatal("entry must survive while retries are scheduled")
	}
	if e.Attempts != 3 || e.Scheduled != 3 || !e.Closed {
		t.Errorf("unexpected entry %+v", e)
	}

	// Another request failing now must not restart the count.
	if d := c.Attempt("Q", true, func() {}); d.Action != ActionGiveUp {
		t.Errorf("expected give up while exhausted, got %+v", d)
	}

	clk.Advance(time.Second)
	if c.Len() != 0 {
		t.Errorf("expected entry removed once retries settled, got %v", c.Snapshot())
	}
}

func TestCoordinator_SlowReissueSurvivesSweep(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	var swept int
	var next Decision
	c.Attempt("Q", true, func() {
		// The re-issued attempt takes longer than staleAfter.
		clk.Advance(10 * time.Second)
		if e := c.Snapshot()["Q"]; e.InFlight != 1 {
			t.Errorf("expected the reissue to be in flight, got %+v", e)
		}
		swept = c.Sweep(5 * time.Second)
		next = c.Attempt("Q", true, func() {})
	})

	clk.Advance(100 * time.Millisecond)

	if swept != 0 {
		t.Errorf("in-flight entry must not be swept, swept %d", swept)
	}
	if next.Action != ActionRetry || next.Retry != 2 {
		t.Errorf("expected retry 2 after the slow attempt, got %+v", next)
	}
	if n := c.Attempts("Q"); n != 2 {
		t.Errorf("expected counter 2, got %d", n)
	}
}

func TestCoordinator_SucceededWhileOtherRetryScheduled(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)

	c.Attempt("Q", true, func() {})
	c.Succeeded("Q")

	e, ok := c.Snapshot()["Q"]
	if !ok || e.Attempts != 0 || !e.Closed {
		t.Fatalf("expected reset entry kept for the scheduled retry, got %+v (ok=%v)", e, ok)
	}

	clk.Advance(100 * time.Millisecond)
	if c.Len() != 0 {
		t.Errorf("expected entry removed after the retry settled, got %v", c.Snapshot())
	}
}
