package handler

import (
	"net/http"

	"github.com/clinicmail/clinicmail/internal/notify"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// Health reports dependency status. A mail transport that is not available
// marks the service degraded, not unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	services := make(map[string]string)
	status := "healthy"

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.log.Warn().Err(err).Str("service", c.Name).Msg("health check failed")
			services[c.Name] = "unhealthy"
			status = "unhealthy"
		} else {
			services[c.Name] = "healthy"
		}
	}

	if h.transport != nil {
		state := h.transport.State()
		services["mail"] = state.String()
		if status == "healthy" && state != notify.StateAvailable {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:   status,
		Version:  Version,
		Services: services,
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Ready returns whether the service is ready to accept requests
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			http.Error(w, c.Name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
