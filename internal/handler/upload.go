package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/clinicmail/clinicmail/internal/service"
	"github.com/clinicmail/clinicmail/internal/storage"
)

// UploadResponse is returned after a file is stored for a patient
type UploadResponse struct {
	Success  bool   `json:"success"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// Upload stores a multipart file for a patient. The form carries the file in
// "file" and the owner in "patientId" ("pacienteId" is also accepted).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.cfg.Server.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "The uploaded file is too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.Server.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "The uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "A multipart form is required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	patientID := strings.TrimSpace(r.FormValue("patientId"))
	if patientID == "" {
		patientID = strings.TrimSpace(r.FormValue("pacienteId"))
	}
	file, header, err := r.FormFile("file")
	if err != nil || patientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "file and patientId are required")
		return
	}
	defer file.Close()

	ref, err := h.patients.Attach(r.Context(), patientID, header.Filename, file, auditMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPatientNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Patient not found")
		case errors.Is(err, storage.ErrInvalidRef):
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid file name")
		default:
			h.log.Error().Err(err).Str("patient_id", patientID).Msg("failed to store upload")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store file")
		}
		return
	}

	_, filename, _ := storage.SplitRef(ref)
	writeJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		Path:     ref,
		Filename: filename,
	})
}
