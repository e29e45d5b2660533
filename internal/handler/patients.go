package handler

import (
	"errors"
	"net/http"

	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/service"
)

// ListPatients returns every registered patient
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patients.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list patients")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list patients")
		return
	}
	if patients == nil {
		patients = []*model.Patient{}
	}
	writeJSON(w, http.StatusOK, patients)
}

// GetPatient returns one patient by id
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.patients.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writePatientError(w, err, "Failed to get patient")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePatient registers a new patient
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req model.PatientData
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	p, err := h.patients.Create(r.Context(), req, auditMeta(r))
	if err != nil {
		h.writePatientError(w, err, "Failed to create patient")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePatient applies the fields present in the body to a patient
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req model.PatientData
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	p, err := h.patients.Update(r.Context(), r.PathValue("id"), req, auditMeta(r))
	if err != nil {
		h.writePatientError(w, err, "Failed to update patient")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePatient removes a patient and its stored attachments
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.patients.Delete(r.Context(), r.PathValue("id"), auditMeta(r)); err != nil {
		h.writePatientError(w, err, "Failed to delete patient")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Patient deleted",
	})
}

func (h *Handler) writePatientError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Patient not found")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "email_taken", "This email is already registered")
	case errors.Is(err, service.ErrInvalidPatient):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}
