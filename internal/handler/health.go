package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const readinessTimeout = 5 * time.Second

// HealthChecker is implemented by the repository, the cache and the chain client.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db     HealthChecker
	cache  HealthChecker
	chain  HealthChecker
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Pass nil for any dependency that
// is not configured; chain is nil when blockchain integration is disabled.
func NewHealthHandler(db, cache, chain HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		chain:  chain,
		logger: logger.With("component", "health"),
	}
}

// DependencyStatus is one probed dependency.
type DependencyStatus struct {
	Status    string  `json:"status"`
	Required  bool    `json:"required"`
	LatencyMS float64 `json:"latencyMs,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string                      `json:"status"`
	Checks map[string]DependencyStatus `json:"checks,omitempty"`
}

// Healthz is a liveness probe. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports 200 only when Postgres and Redis answer. The chain RPC is
// reported but not required: issuance and Q&A degrade to the free tier without it.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]DependencyStatus, 3)
	ready := true
	for _, dep := range []struct {
		name     string
		checker  HealthChecker
		required bool
	}{
		{"postgres", h.db, true},
		{"redis", h.cache, true},
		{"chain", h.chain, false},
	} {
		st := h.probe(ctx, dep.name, dep.checker)
		st.Required = dep.required
		checks[dep.name] = st
		if dep.required && st.Status == "unavailable" {
			ready = false
		}
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

// probe pings one dependency. Error text stays in the log; it can carry hosts and credentials.
func (h *HealthHandler) probe(ctx context.Context, name string, c HealthChecker) DependencyStatus {
	if c == nil {
		return DependencyStatus{Status: "not configured"}
	}
	start := time.Now()
	err := c.Ping(ctx)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		h.logger.Warn("readiness probe failed", "dependency", name, "error", err)
		return DependencyStatus{Status: "unavailable", LatencyMS: latency}
	}
	return DependencyStatus{Status: "ok", LatencyMS: latency}
}
