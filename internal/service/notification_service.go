package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/notify"
	"github.com/clinicmail/clinicmail/internal/repository"
)

// BirthdayTemplate is the template sent by the daily birthday job
const BirthdayTemplate = "aniversario"

// Dispatcher sends rendered templates to patients
type Dispatcher interface {
	DispatchBulk(ctx context.Context, patients []*model.Patient, templateID string) (*model.DispatchSummary, error)
	SendOne(ctx context.Context, patient *model.Patient, templateID string) (bool, error)
	Estimate(n int) time.Duration
}

// SendResult is the outcome of a single send
type SendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NotificationService sends templates to one patient, every patient, or the
// patients whose birthday is today.
type NotificationService struct {
	patients   PatientStore
	dispatcher Dispatcher
	templates  *notify.Registry
	audit      *auditor
	log        *logger.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(patients PatientStore, dispatcher Dispatcher, templates *notify.Registry, audit AuditStore, log *logger.Logger) *NotificationService {
	l := log.WithComponent("notification_service")
	return &NotificationService{
		patients:   patients,
		dispatcher: dispatcher,
		templates:  templates,
		audit:      newAuditor(audit, l),
		log:        l,
	}
}

// Templates lists the available templates
func (s *NotificationService) Templates() []notify.Template {
	return s.templates.List()
}

// SendOneMessage sends templateID to one patient
func (s *NotificationService) SendOneMessage(ctx context.Context, patientID, templateID string, meta AuditMeta) (*SendResult, error) {
	if !s.templates.Has(templateID) {
		return nil, fmt.Errorf("%w: %q", notify.ErrTemplateNotFound, templateID)
	}

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	ok, err := s.dispatcher.SendOne(ctx, p, templateID)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, meta, model.AuditActionMessageSend, model.AuditResourcePatient, patientID, map[string]interface{}{
		"template": templateID,
		"success":  ok,
	})

	if !ok {
		return &SendResult{Success: false, Message: "Falha ao enviar e-mail"}, nil
	}
	return &SendResult{Success: true, Message: "E-mail enviado com sucesso"}, nil
}

// SendBulk sends templateID to every registered patient
func (s *NotificationService) SendBulk(ctx context.Context, templateID string, meta AuditMeta) (*model.DispatchSummary, error) {
	if !s.templates.Has(templateID) {
		return nil, fmt.Errorf("%w: %q", notify.ErrTemplateNotFound, templateID)
	}

	patients, err := s.patients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	if len(patients) == 0 {
		return nil, ErrNoPatients
	}

	summary, err := s.dispatcher.DispatchBulk(ctx, patients, templateID)
	if err != nil {
		return nil, err
	}

	s.recordBulk(ctx, meta, model.AuditActionMessageBulkSend, templateID, summary)
	return summary, nil
}

// EstimateBulk returns how long sending to every current patient can take
func (s *NotificationService) EstimateBulk(ctx context.Context) (time.Duration, error) {
	patients, err := s.patients.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return s.dispatcher.Estimate(len(patients)), nil
}

// SendBirthdays sends the birthday template to every patient whose birth day
// and month match now. It returns an empty summary when nobody has a birthday.
func (s *NotificationService) SendBirthdays(ctx context.Context, now time.Time) (*model.DispatchSummary, error) {
	patients, err := s.patients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	var birthdays []*model.Patient
	for _, p := range patients {
		if p.HasBirthdayOn(now) {
			birthdays = append(birthdays, p)
		}
	}

	if len(birthdays) == 0 {
		s.log.Info().Str("date", now.Format(model.BirthDateLayout)).Msg("no birthdays today")
		return model.NewDispatchSummary([]model.DispatchOutcome{}), nil
	}

	s.log.Info().Int("count", len(birthdays)).Msg("sending birthday messages")
	summary, err := s.dispatcher.DispatchBulk(ctx, birthdays, BirthdayTemplate)
	if err != nil {
		return nil, err
	}

	s.recordBulk(ctx, AuditMeta{}, model.AuditActionBirthdayDispatch, BirthdayTemplate, summary)
	return summary, nil
}

func (s *NotificationService) recordBulk(ctx context.Context, meta AuditMeta, action, templateID string, summary *model.DispatchSummary) {
	s.audit.record(ctx, meta, action, model.AuditResourceTemplate, templateID, map[string]interface{}{
		"total":     summary.Total,
		"succeeded": summary.SucceededCount,
		"failed":    summary.FailedCount,
	})
	s.log.Info().
		Str("template", templateID).
		Int("total", summary.Total).
		Int("succeeded", summary.SucceededCount).
		Int("failed", summary.FailedCount).
		Msg("bulk send finished")
}
