package http

import (
	"encoding/json"
	"net/http"
)

// ReadyCheck probes a dependency the server needs to serve traffic.
type ReadyCheck func() error

// HealthHandler handles health check endpoints. Liveness is unconditional;
// readiness runs the configured dependency checks.
type HealthHandler struct {
	checks []ReadyCheck
}

// NewHealthHandler creates a HealthHandler. With no checks the server is
// always ready.
func NewHealthHandler(checks ...ReadyCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

// Healthz handles the /healthz endpoint.
// Returns 200 OK if the server is alive.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readyz handles the /readyz endpoint.
// Returns 200 OK if every dependency check passes, 503 otherwise.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	for _, check := range h.checks {
		if err := check(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
