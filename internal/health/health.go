// Package health reports the state of the transport layer and serves the
// operational HTTP and gRPC endpoints.
package health

import (
	"time"

	"github.com/vietddude/portalgate/internal/infra/gql"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report is the detailed health of the transport layer.
type Report struct {
	Status           SystemStatus       `json:"status"`
	RetryEntries     int                `json:"retry_entries"`
	Endpoint         *gql.EndpointStats `json:"endpoint,omitempty"`
	CacheBackend     string             `json:"cache_backend"`
	CacheError       string             `json:"cache_error,omitempty"`
	Invalidations    uint64             `json:"invalidations"`
	LastInvalidation *time.Time         `json:"last_invalidation,omitempty"`
	Lifecycle        string             `json:"lifecycle"`
	CheckedAt        time.Time          `json:"checked_at"`
}
