package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clinicmail/clinicmail/internal/notify"
	"github.com/clinicmail/clinicmail/internal/service"
)

// WriteTimeout is the server write deadline every response starts with.
// SendToAll moves it out when the dispatch can run longer.
const WriteTimeout = 10 * time.Minute

// bulkWriteSlack leaves room to encode the summary after the last group
const bulkWriteSlack = 30 * time.Second

// SendRequest names the template to send
type SendRequest struct {
	TemplateName string `json:"templateName"`
}

func readSendRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req SendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return "", false
	}
	name := strings.TrimSpace(req.TemplateName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "templateName is required")
		return "", false
	}
	return name, true
}

// SendToPatient sends one template to one patient
func (h *Handler) SendToPatient(w http.ResponseWriter, r *http.Request) {
	templateID, ok := readSendRequest(w, r)
	if !ok {
		return
	}

	result, err := h.notifications.SendOneMessage(r.Context(), r.PathValue("id"), templateID, auditMeta(r))
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusBadGateway, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SendToAll sends one template to every registered patient. Partial failures
// are reported in the summary, not as an error status.
func (h *Handler) SendToAll(w http.ResponseWriter, r *http.Request) {
	templateID, ok := readSendRequest(w, r)
	if !ok {
		return
	}

	h.extendWriteDeadline(w, r)

	summary, err := h.notifications.SendBulk(r.Context(), templateID, auditMeta(r))
	if err != nil {
		h.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) extendWriteDeadline(w http.ResponseWriter, r *http.Request) {
	estimate, err := h.notifications.EstimateBulk(r.Context())
	if err != nil {
		return
	}
	budget := estimate + bulkWriteSlack
	if budget <= h.writeTimeout {
		return
	}
	err = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(budget))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Warn().Err(err).Dur("budget", budget).Msg("could not extend write deadline")
	}
}

// ListTemplates returns the templates operators can send
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.notifications.Templates()
	resp := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, TemplateResponse{ID: t.ID, Subject: t.Subject})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TemplateResponse describes a template in the listing
type TemplateResponse struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

func (h *Handler) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrTemplateNotFound):
		writeError(w, http.StatusBadRequest, "template_not_found", "Template not found")
	case errors.Is(err, service.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Patient not found")
	case errors.Is(err, service.ErrNoPatients), errors.Is(err, notify.ErrNoRecipients):
		writeError(w, http.StatusNotFound, "no_patients", "No patients registered")
	default:
		h.log.Error().Err(err).Msg("failed to send message")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to send message")
	}
}
