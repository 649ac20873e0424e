package gql

import (
	"sync"
	"time"

	"github.com/vietddude/portalgate/internal/core/domain"
)

// EndpointStatus represents the health state of the GraphQL endpoint.
type EndpointStatus string

const (
	EndpointHealthy  EndpointStatus = "healthy"  // Endpoint is working normally
	EndpointDegraded EndpointStatus = "degraded" // Slow, or failing a large share of attempts
	EndpointDown     EndpointStatus = "down"     // Recent attempts never reached it
)

// EndpointStats holds monitoring statistics for the endpoint.
type EndpointStats struct {
	Status           EndpointStatus    `json:"status"`
	Attempts         int               `json:"attempts"`
	ErrorRate        float64           `json:"error_rate"`
	AverageLatency   time.Duration     `json:"average_latency"`
	LastFailure      time.Time         `json:"last_failure,omitempty"`
	LastFailureClass domain.ErrorClass `json:"last_failure_class,omitempty"`
}

type sample struct {
	latency time.Duration
	class   domain.ErrorClass
}

// EndpointMonitor tracks the outcome of recent attempts over a fixed-size
// window.
type EndpointMonitor struct {
	mu sync.RWMutex

	recent    []sample
	maxWindow int

	lastFailure      time.Time
	lastFailureClass domain.ErrorClass

	// Thresholds
	slowResponseThreshold time.Duration
	degradedThreshold     float64
	downStreak            int
}

// NewEndpointMonitor creates a new monitor with default settings.
func NewEndpointMonitor() *EndpointMonitor {
	return &EndpointMonitor{
		recent:                make([]sample, 0, 100),
		maxWindow:             100,
		slowResponseThreshold: 3 * time.Second,
		degradedThreshold:     0.3, // 30% error rate
		downStreak:            5,
	}
}

// Record records one attempt with its latency and class.
func (m *EndpointMonitor) Record(latency time.Duration, class domain.ErrorClass) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = append(m.recent, sample{latency: latency, class: class})
	if len(m.recent) > m.maxWindow {
		m.recent = m.recent[1:]
	}

	if class != domain.ClassNone {
		m.lastFailure = time.Now()
		m.lastFailureClass = class
	}
}

// Stats summarizes the window.
func (m *EndpointMonitor) Stats() EndpointStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := EndpointStats{
		Status:           EndpointHealthy,
		Attempts:         len(m.recent),
		LastFailure:      m.lastFailure,
		LastFailureClass: m.lastFailureClass,
	}
	if len(m.recent) == 0 {
		return stats
	}

	var total time.Duration
	failures := 0
	for _, s := range m.recent {
		total += s.latency
		if s.class != domain.ClassNone {
			failures++
		}
	}
	stats.AverageLatency = total / time.Duration(len(m.recent))
	stats.ErrorRate = float64(failures) / float64(len(m.recent))

	switch {
	case m.unreachableStreak():
		stats.Status = EndpointDown
	case stats.ErrorRate > m.degradedThreshold:
		stats.Status = EndpointDegraded
	case len(m.recent) > 10 && stats.AverageLatency > m.slowResponseThreshold:
		stats.Status = EndpointDegraded
	}
	return stats
}

func (m *EndpointMonitor) unreachableStreak() bool {
	if len(m.recent) < m.downStreak {
		return false
	}
	for _, s := range m.recent[len(m.recent)-m.downStreak:] {
		if s.class != domain.ClassUnreachable {
			return false
		}
	}
	return true
}
