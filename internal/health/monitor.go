package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/portalgate/internal/infra/gql"
	"github.com/vietddude/portalgate/internal/resilience/lifecycle"
	"github.com/vietddude/portalgate/internal/resilience/retry"
)

// Retry state size thresholds. Entries only pile up while operations keep
// failing, so a large map means the endpoint is struggling.
const (
	degradedRetryEntries = 100
	criticalRetryEntries = 1000
)

// RetryState exposes the retry coordinator's bookkeeping.
type RetryState interface {
	Len() int
	Snapshot() map[string]retry.Entry
}

// InvalidationStats exposes the cache invalidator's counters.
type InvalidationStats interface {
	Stats() (count uint64, last time.Time)
}

// LifecycleState exposes the last host state seen by the scheduler.
type LifecycleState interface {
	State() lifecycle.AppState
}

// EndpointStats exposes recent attempt outcomes against the GraphQL endpoint.
type EndpointStats interface {
	Stats() gql.EndpointStats
}

// Pinger checks a cache backend connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// MonitorConfig wires the components a Monitor inspects. Nil fields are
// skipped.
type MonitorConfig struct {
	Retries       RetryState
	Invalidations InvalidationStats
	Lifecycle     LifecycleState
	Endpoint      EndpointStats
	CacheBackend  string
	CachePing     Pinger
}

// Monitor aggregates health status from the pipeline components.
type Monitor struct {
	cfg         MonitorConfig
	minInterval time.Duration
	lastCheck   time.Time
	lastReport  *Report
	mu          sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "none"
	}
	return &Monitor{cfg: cfg, minInterval: 10 * time.Second}
}

// CheckHealth builds a health report. Backend pings are rate limited; a
// report younger than the minimum interval is returned as is.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.minInterval {
		return *m.lastReport
	}

	report := Report{
		Status:       StatusHealthy,
		CacheBackend: m.cfg.CacheBackend,
		Lifecycle:    "unknown",
		CheckedAt:    time.Now(),
	}

	if m.cfg.Retries != nil {
		report.RetryEntries = m.cfg.Retries.Len()
	}
	if m.cfg.Invalidations != nil {
		count, last := m.cfg.Invalidations.Stats()
		report.Invalidations = count
		if !last.IsZero() {
			report.LastInvalidation = &last
		}
	}
	if m.cfg.Lifecycle != nil {
		report.Lifecycle = m.cfg.Lifecycle.State().String()
	}
	if m.cfg.Endpoint != nil {
		stats := m.cfg.Endpoint.Stats()
		report.Endpoint = &stats
	}
	if m.cfg.CachePing != nil {
		if err := m.cfg.CachePing.Ping(ctx); err != nil {
			report.CacheError = err.Error()
		}
	}

	endpoint := gql.EndpointHealthy
	if report.Endpoint != nil {
		endpoint = report.Endpoint.Status
	}

	// Worst case wins
	switch {
	case report.RetryEntries >= criticalRetryEntries || endpoint == gql.EndpointDown:
		report.Status = StatusCritical
	case report.RetryEntries >= degradedRetryEntries || endpoint == gql.EndpointDegraded || report.CacheError != "":
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
