package retry

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/portalgate/internal/core/clock"
)

func TestSweeper_RemovesStaleEntriesOnTick(t *testing.T) {
	clk := clock.NewFake()
	c := newTestCoordinator(clk)
	c.Attempt("Q", true, func() {})
	clk.Advance(100 * time.Millisecond)

	s := NewSweeper(c, time.Minute, 5*time.Minute, clk)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	clk.BlockUntilTickers(1)
	clk.Advance(6 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Errorf("expected stale entry swept, got %v", c.Snapshot())
	}

	cancel()
	<-done
	if clk.ActiveTickers() != 0 {
		t.Error("sweeper leaked its ticker")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	s := NewSweeper(NewCoordinator(DefaultConfig), 0, time.Minute, nil)
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return")
	}
}
