package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/google/uuid"
)

// Service errors
var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrEmailTaken      = errors.New("email is already registered")
	ErrInvalidPatient  = errors.New("invalid patient data")
	ErrNoPatients      = errors.New("no patients registered")
	ErrInvalidConfig   = errors.New("invalid email configuration")
)

// PatientStore persists patient records
type PatientStore interface {
	List(ctx context.Context) ([]*model.Patient, error)
	GetByID(ctx context.Context, id string) (*model.Patient, error)
	GetByEmail(ctx context.Context, email string) (*model.Patient, error)
	Create(ctx context.Context, p *model.Patient) error
	Update(ctx context.Context, p *model.Patient) error
	Delete(ctx context.Context, id string) error
}

// CopyConfigStore persists the operator's blind-copy configuration
type CopyConfigStore interface {
	Get(ctx context.Context) (*model.EmailCopyConfig, error)
	Save(ctx context.Context, cfg *model.EmailCopyConfig) error
}

// AuditStore records audit entries
type AuditStore interface {
	Create(ctx context.Context, log *model.AuditLog) error
}

// AuditMeta identifies the client behind a change
type AuditMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type auditor struct {
	repo AuditStore
	log  *logger.Logger
}

func newAuditor(repo AuditStore, log *logger.Logger) *auditor {
	return &auditor{repo: repo, log: log}
}

// record writes an audit entry. Failures are logged, never returned.
func (a *auditor) record(ctx context.Context, meta AuditMeta, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if a == nil || a.repo == nil {
		return
	}
	if meta.RequestID != "" {
		tagged := make(map[string]interface{}, len(metadata)+1)
		for k, v := range metadata {
			tagged[k] = v
		}
		tagged["request_id"] = meta.RequestID
		metadata = tagged
	}
	entry := &model.AuditLog{
		ID:           generateID("aud"),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   optional(resourceID),
		IPAddress:    optional(meta.IPAddress),
		UserAgent:    optional(meta.UserAgent),
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		a.log.Error().Err(err).Str("action", action).Msg("failed to create audit log")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func generateID(prefix string) string {
	id := uuid.New().String()
	// Remove hyphens and take first 26 chars to fit varchar(32) with prefix
	clean := strings.ReplaceAll(id, "-", "")
	if len(prefix) > 0 {
		return prefix + "_" + clean[:min(26, len(clean))]
	}
	return clean
}
