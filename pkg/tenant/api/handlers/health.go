package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// HealthCheckTimeout is the maximum time allowed for health check operations.
// This timeout applies to store health checks to prevent a slow database from
// blocking health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// BootstrapChecker reports whether the instance configuration bootstrap
// has completed. Satisfied by *bootstrap.Bootstrapper.
type BootstrapChecker interface {
	Bootstrapped(ctx context.Context) (bool, error)
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the instance bootstrapped and the tenant store healthy?
type HealthHandler struct {
	bootstrap BootstrapChecker
	store     store.Store
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
//
// Either parameter may be nil, in which case the readiness probe reports
// unhealthy until the missing dependency is wired.
func NewHealthHandler(bootstrap BootstrapChecker, store store.Store) *HealthHandler {
	return &HealthHandler{
		bootstrap: bootstrap,
		store:     store,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is designed
// for Kubernetes liveness probes and should always succeed as long as the
// HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"service":    "groundplane",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// The instance is ready once its configuration bootstrap marker exists and
// the tenant store answers a health check. Returns 503 Service Unavailable
// with the failing dependency named otherwise, so orchestrators keep traffic
// away until provisioning has settled.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.bootstrap == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("bootstrap checker not initialized"))
		return
	}
	if h.store == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("tenant store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	bootstrapped, err := h.bootstrap.Bootstrapped(ctx)
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("bootstrap check failed: "+err.Error()))
		return
	}
	if !bootstrapped {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("instance not bootstrapped"))
		return
	}

	start := time.Now()
	if err := h.store.Healthcheck(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("tenant store unhealthy: "+err.Error()))
		return
	}
	latency := time.Since(start)

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"bootstrapped":  true,
		"store":         "healthy",
		"store_latency": latency.String(),
	}))
}
