package lifecycle

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// AppState is the host process's lifecycle state.
type AppState int

const (
	StateActive AppState = iota
	StateInactive
)

func (s AppState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// ParseAppState maps host lifecycle names onto the two-state model. Every
// non-foreground state (background, inactive, suspended...) is Inactive.
func ParseAppState(s string) (AppState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "foreground", "resumed":
		return StateActive, nil
	case "inactive", "background", "paused", "suspended", "hidden":
		return StateInactive, nil
	default:
		return 0, fmt.Errorf("unknown app state %q", s)
	}
}

// Transition is an observed state change.
type Transition struct {
	From      AppState
	To        AppState
	Timestamp time.Time
}

// Foregrounded reports whether this is the Inactive -> Active edge.
func (t Transition) Foregrounded() bool {
	return t.From == StateInactive && t.To == StateActive
}

// Machine tracks the current AppState. Only the Inactive -> Active edge is
// reported as a foreground event; self-transitions are no-ops.
type Machine struct {
	mu      sync.Mutex
	current AppState
}

// NewMachine starts in the given state. Hosts launch in the foreground, so
// StateActive is the usual choice.
func NewMachine(initial AppState) *Machine {
	return &Machine{current: initial}
}

// Current returns the current state.
func (m *Machine) Current() AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Observe feeds a reported state. changed is false when next equals the
// current state.
func (m *Machine) Observe(next AppState, at time.Time) (t Transition, changed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next == m.current {
		return Transition{From: m.current, To: next, Timestamp: at}, false
	}
	t = Transition{From: m.current, To: next, Timestamp: at}
	m.current = next
	return t, true
}
