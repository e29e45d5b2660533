package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/repository"
	"github.com/clinicmail/clinicmail/internal/storage"
	"github.com/google/uuid"
)

// PatientService handles patient records and their attachments
type PatientService struct {
	patients PatientStore
	files    storage.Store
	audit    *auditor
	log      *logger.Logger
	now      func() time.Time
}

// NewPatientService creates a new PatientService
func NewPatientService(patients PatientStore, files storage.Store, audit AuditStore, log *logger.Logger) *PatientService {
	l := log.WithComponent("patient_service")
	return &PatientService{
		patients: patients,
		files:    files,
		audit:    newAuditor(audit, l),
		log:      l,
		now:      time.Now,
	}
}

// List returns every patient
func (s *PatientService) List(ctx context.Context) ([]*model.Patient, error) {
	patients, err := s.patients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

// Get returns one patient
func (s *PatientService) Get(ctx context.Context, id string) (*model.Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// Create registers a new patient. Name and email are required and the email
// must not belong to another patient.
func (s *PatientService) Create(ctx context.Context, data model.PatientData, meta AuditMeta) (*model.Patient, error) {
	data = normalizePatientData(data)
	if err := validatePatientData(data); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, data.Email, ""); err != nil {
		return nil, err
	}

	p := &model.Patient{
		ID:           uuid.New().String(),
		PatientData:  data,
		Attachments:  []string{},
		RegisteredAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if p.Specialties == nil {
		p.Specialties = []string{}
	}

	if err := s.patients.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrEmailConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	s.audit.record(ctx, meta, model.AuditActionPatientCreate, model.AuditResourcePatient, p.ID, map[string]interface{}{
		"email": p.Email,
	})
	s.log.Info().Str("patient_id", p.ID).Msg("patient created")
	return p, nil
}

// Update applies data over the stored patient. Empty fields in data keep the
// stored value, except specialties, which an explicit empty list clears.
func (s *PatientService) Update(ctx context.Context, id string, data model.PatientData, meta AuditMeta) (*model.Patient, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := normalizePatientData(data)
	merged := existing.PatientData
	merged.Specialties = slices.Clone(existing.Specialties)
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge patient data: %w", err)
	}
	if data.Specialties != nil {
		merged.Specialties = patch.Specialties
	}

	if err := validatePatientData(merged); err != nil {
		return nil, err
	}
	if !strings.EqualFold(merged.Email, existing.Email) {
		if err := s.ensureEmailFree(ctx, merged.Email, id); err != nil {
			return nil, err
		}
	}

	updatedAt := s.now().UTC().Truncate(time.Microsecond)
	updated := existing.Clone()
	updated.PatientData = merged
	updated.UpdatedAt = &updatedAt

	if err := s.patients.Update(ctx, updated); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrPatientNotFound
		case errors.Is(err, repository.ErrEmailConflict):
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}

	s.audit.record(ctx, meta, model.AuditActionPatientUpdate, model.AuditResourcePatient, id, nil)
	s.log.Info().Str("patient_id", id).Msg("patient updated")
	return updated, nil
}

// Delete removes a patient and, best effort, its uploaded files
func (s *PatientService) Delete(ctx context.Context, id string, meta AuditMeta) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.patients.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("failed to delete patient: %w", err)
	}

	if s.files != nil {
		for _, ref := range existing.Attachments {
			if err := s.files.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Warn().Err(err).Str("patient_id", id).Str("ref", ref).Msg("failed to delete attachment")
			}
		}
	}

	s.audit.record(ctx, meta, model.AuditActionPatientDelete, model.AuditResourcePatient, id, nil)
	s.log.Info().Str("patient_id", id).Msg("patient deleted")
	return nil
}

// Attach stores an uploaded file for a patient and adds it to the patient's
// attachments. Uploading the same filename again replaces the file.
func (s *PatientService) Attach(ctx context.Context, patientID, filename string, r io.Reader, meta AuditMeta) (string, error) {
	if s.files == nil {
		return "", errors.New("attachment storage is not configured")
	}
	p, err := s.Get(ctx, patientID)
	if err != nil {
		return "", err
	}

	ref, err := s.files.Save(ctx, patientID, filename, r)
	if err != nil {
		return "", fmt.Errorf("failed to store attachment: %w", err)
	}

	if !slices.Contains(p.Attachments, ref) {
		updated := p.Clone()
		updated.Attachments = append(updated.Attachments, ref)
		updatedAt := s.now().UTC().Truncate(time.Microsecond)
		updated.UpdatedAt = &updatedAt
		if err := s.patients.Update(ctx, updated); err != nil {
			return "", fmt.Errorf("failed to record attachment: %w", err)
		}
	}

	s.audit.record(ctx, meta, model.AuditActionAttachmentUpload, model.AuditResourcePatient, patientID, map[string]interface{}{
		"ref": ref,
	})
	s.log.Info().Str("patient_id", patientID).Str("ref", ref).Msg("attachment stored")
	return ref, nil
}

func (s *PatientService) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	other, err := s.patients.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check email: %w", err)
	case other.ID != exceptID:
		return ErrEmailTaken
	}
	return nil
}

func normalizePatientData(d model.PatientData) model.PatientData {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.BirthDate = strings.TrimSpace(d.BirthDate)
	d.Phone = strings.TrimSpace(d.Phone)
	if d.Specialties != nil {
		specialties := make([]string, 0, len(d.Specialties))
		for _, sp := range d.Specialties {
			if sp = strings.TrimSpace(sp); sp != "" {
				specialties = append(specialties, sp)
			}
		}
		d.Specialties = specialties
	}
	return d
}

func validatePatientData(d model.PatientData) error {
	if d.Name == "" || d.Email == "" {
		return fmt.Errorf("%w: name and email are required", ErrInvalidPatient)
	}
	if d.BirthDate != "" {
		if _, err := time.Parse(model.BirthDateLayout, d.BirthDate); err != nil {
			return fmt.Errorf("%w: birthDate must be YYYY-MM-DD", ErrInvalidPatient)
		}
	}
	return nil
}
