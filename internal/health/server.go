package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/portalgate/internal/resilience/lifecycle"
	"github.com/vietddude/portalgate/internal/resilience/retry"
)

// LifecycleObserver receives host lifecycle reports.
type LifecycleObserver interface {
	Observe(state lifecycle.AppState) bool
	State() lifecycle.AppState
}

// CacheInvalidator discards the result cache on demand.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context, reason string)
}

// Controls are the components the operational endpoints act on. Endpoints
// whose component is nil are not registered.
type Controls struct {
	Retries     RetryState
	Lifecycle   LifecycleObserver
	Invalidator CacheInvalidator
}

// Server provides HTTP endpoints for health monitoring and host control.
type Server struct {
	monitor  *Monitor
	controls Controls
	server   *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, controls Controls, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor:  monitor,
		controls: controls,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	if controls.Retries != nil {
		mux.HandleFunc("GET /debug/retries", s.handleRetries)
	}
	if controls.Lifecycle != nil {
		mux.HandleFunc("POST /lifecycle", s.handleLifecycle)
	}
	if controls.Invalidator != nil {
		mux.HandleFunc("POST /cache/invalidate", s.handleInvalidate)
	}

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if report.Status == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

// RetriesResponse is the body of GET /debug/retries.
type RetriesResponse struct {
	Count   int                    `json:"count"`
	Entries map[string]retry.Entry `json:"entries"`
}

func (s *Server) handleRetries(w http.ResponseWriter, r *http.Request) {
	snapshot := s.controls.Retries.Snapshot()
	writeJSON(w, http.StatusOK, RetriesResponse{Count: len(snapshot), Entries: snapshot})
}

type lifecycleRequest struct {
	State string `json:"state"`
}

// LifecycleResponse is the body of POST /lifecycle.
type LifecycleResponse struct {
	State       string `json:"state"`
	Invalidated bool   `json:"invalidated"`
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	state, err := lifecycle.ParseAppState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fired := s.controls.Lifecycle.Observe(state)
	writeJSON(w, http.StatusOK, LifecycleResponse{
		State:       s.controls.Lifecycle.State().String(),
		Invalidated: fired,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.controls.Invalidator.InvalidateAll(r.Context(), "manual")
	writeJSON(w, http.StatusOK, map[string]bool{"invalidated": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
