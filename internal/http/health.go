// Package http provides the HTTP server that hosts wirekit APIs.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// ReadinessCheck is a named dependency probe run by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	ready  atomic.Bool
	checks []ReadinessCheck
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	h := &HealthHandler{checks: checks}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness status.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Healthz handles the /healthz endpoint.
// Returns 200 OK if the server is alive.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Readyz handles the /readyz endpoint.
// Returns 200 OK if the server is ready and every check passes, 503 otherwise.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	writeStatus(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
