package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/vote-aggregator/internal/ports/inbound"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves health check endpoints for ECS/Kubernetes deployments.
//
// Endpoints:
//   - /health/ready  - Returns 200 only when the service is ready (readiness probe)
//   - /health/live   - Returns 200 while the hub is reachable (liveness probe)
//   - /health        - Combined health status for monitoring, cache included
//
// During a rolling deployment the old task sets shuttingDown on SIGTERM and
// every probe returns 503 while in-flight requests drain.
type Health struct {
	checker      inbound.HealthChecker
	pinger       Pinger
	shuttingDown *atomic.Bool
	pingTimeout  time.Duration
	logger       *slog.Logger
}

// NewHealth creates the health endpoints. pinger may be nil.
func NewHealth(checker inbound.HealthChecker, pinger Pinger, shuttingDown *atomic.Bool, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	if shuttingDown == nil {
		shuttingDown = &atomic.Bool{}
	}
	return &Health{
		checker:      checker,
		pinger:       pinger,
		shuttingDown: shuttingDown,
		pingTimeout:  2 * time.Second,
		logger:       logger.With("component", "health"),
	}
}

// RegisterRoutes registers the probe routes with the given mux.
func (hs *Health) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health/ready", hs.handleReady)
	mux.HandleFunc("/health/live", hs.handleLive)
	mux.HandleFunc("/health", hs.handleHealth)
}

// handleReady handles the readiness probe.
// Returns 200 only after the service verified its cache at startup.
func (hs *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if hs.checker.IsReady() {
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	} else {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}

// handleLive handles the liveness probe.
// Returns 503 after repeated consecutive hub read failures.
func (hs *Health) handleLive(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if hs.checker.IsHealthy() {
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	} else {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleHealth handles the combined health check endpoint.
func (hs *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "shutting_down",
			"ready":        false,
			"healthy":      false,
			"cache":        false,
			"shuttingDown": true,
		})
		return
	}

	ready := hs.checker.IsReady()
	healthy := hs.checker.IsHealthy()
	cacheOK := true
	if hs.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), hs.pingTimeout)
		defer cancel()
		if err := hs.pinger.Ping(ctx); err != nil {
			hs.logger.Warn("cache ping failed", "error", err)
			cacheOK = false
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !ready || !healthy || !cacheOK {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	hs.respondJSON(w, statusCode, map[string]any{
		"status":       status,
		"ready":        ready,
		"healthy":      healthy,
		"cache":        cacheOK,
		"shuttingDown": false,
	})
}

func (hs *Health) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode JSON response", "error", err)
	}
}
