package handler

import (
	"errors"
	"net/http"

	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/service"
)

// EmailConfigRequest is the body of POST /api/config/email. Pointers tell a
// missing field apart from an empty one.
type EmailConfigRequest struct {
	DefaultBcc  *string            `json:"defaultBcc"`
	TemplateBcc *map[string]string `json:"templateBcc"`
}

// GetEmailConfig returns the stored copy-recipient configuration
func (h *Handler) GetEmailConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.copies.Get(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load email config")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load email configuration")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SaveEmailConfig replaces the copy-recipient configuration
func (h *Handler) SaveEmailConfig(w http.ResponseWriter, r *http.Request) {
	var req EmailConfigRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "defaultBcc must be a string and templateBcc an object of strings")
		return
	}
	if req.DefaultBcc == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "defaultBcc must be a string")
		return
	}
	if req.TemplateBcc == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "templateBcc must be an object")
		return
	}

	saved, err := h.copies.Save(r.Context(), &model.EmailCopyConfig{
		DefaultBcc:  *req.DefaultBcc,
		TemplateBcc: *req.TemplateBcc,
	}, auditMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.log.Error().Err(err).Msg("failed to save email config")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to save email configuration")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email configuration updated",
		"config":  saved,
	})
}
