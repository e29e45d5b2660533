package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/middleware"
	"github.com/clinicmail/clinicmail/internal/notify"
	"github.com/clinicmail/clinicmail/internal/service"
)

// TransportStatus reports the mail transport state for health checks
type TransportStatus interface {
	State() notify.State
	Configured() bool
}

// HealthCheck is a named dependency check reported by /health and /ready
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	cfg           *config.Config
	log           *logger.Logger
	patients      *service.PatientService
	notifications *service.NotificationService
	copies        *service.CopyConfigService
	transport     TransportStatus
	checks        []HealthCheck
	writeTimeout  time.Duration
}

// New creates a new Handler instance
func New(
	cfg *config.Config,
	log *logger.Logger,
	patients *service.PatientService,
	notifications *service.NotificationService,
	copies *service.CopyConfigService,
	transport TransportStatus,
	checks ...HealthCheck,
) *Handler {
	return &Handler{
		cfg:           cfg,
		log:           log.WithComponent("handler"),
		patients:      patients,
		notifications: notifications,
		copies:        copies,
		transport:     transport,
		writeTimeout:  WriteTimeout,
		checks:        checks,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	return json.NewDecoder(r.Body).Decode(v)
}

func auditMeta(r *http.Request) service.AuditMeta {
	return service.AuditMeta{
		IPAddress: middleware.RequestClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetRequestID(r.Context()),
	}
}
