package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinicmail/clinicmail/internal/database"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
)

// AuditRepository handles audit log persistence
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	metadataJSON, err := json.Marshal(log.Metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (id, action, resource_type, resource_id,
		    ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.IPAddress,
		log.UserAgent,
		metadataJSON,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// LogAuditRepository writes audit entries to the application log only.
// Used with the file data driver, where there is no database.
type LogAuditRepository struct {
	log *logger.Logger
}

// NewLogAuditRepository creates a new LogAuditRepository
func NewLogAuditRepository(log *logger.Logger) *LogAuditRepository {
	return &LogAuditRepository{log: log.WithComponent("audit")}
}

// Create logs the entry
func (r *LogAuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	resourceID := ""
	if entry.ResourceID != nil {
		resourceID = *entry.ResourceID
	}
	r.log.AuditLog(entry.Action, entry.ResourceType, resourceID, entry.Metadata)
	return nil
}
