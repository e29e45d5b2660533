package router

import (
	"net/http"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/handler"
	"github.com/clinicmail/clinicmail/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	// Patient records
	mux.HandleFunc("GET /api/patients", h.ListPatients)
	mux.HandleFunc("POST /api/patients", h.CreatePatient)
	mux.HandleFunc("GET /api/patients/{id}", h.GetPatient)
	mux.HandleFunc("PUT /api/patients/{id}", h.UpdatePatient)
	mux.HandleFunc("DELETE /api/patients/{id}", h.DeletePatient)
	mux.HandleFunc("POST /api/upload", h.Upload)

	// Sending goes through the relay, so it is rate limited per client
	sendRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Scope:  "send",
		Limit:  cfg.Security.RateLimiting.Limit,
		Window: cfg.Security.RateLimiting.Window,
		KeyFn:  middleware.IPKey,
	})
	mux.Handle("POST /api/patients/send/{id}", sendRateLimit(http.HandlerFunc(h.SendToPatient)))
	mux.Handle("POST /api/patients/send-all", sendRateLimit(http.HandlerFunc(h.SendToAll)))

	// Legacy paths of the first release
	mux.Handle("POST /api/send/{id}", sendRateLimit(http.HandlerFunc(h.SendToPatient)))
	mux.Handle("POST /api/send-all", sendRateLimit(http.HandlerFunc(h.SendToAll)))

	mux.HandleFunc("GET /api/templates", h.ListTemplates)

	// Copy-recipient configuration
	mux.HandleFunc("GET /api/config/email", h.GetEmailConfig)
	mux.HandleFunc("POST /api/config/email", h.SaveEmailConfig)

	// Apply middleware stack
	var handler http.Handler = mux

	handler = mw.CORS(cfg.Server.CORSOrigins)(handler)
	handler = mw.SecurityHeaders(handler)
	handler = mw.Logger(handler)
	handler = mw.Timing(handler)
	handler = mw.ClientIP(handler)
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
