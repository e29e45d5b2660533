package model

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           string                 `json:"id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resourceType"`
	ResourceID   *string                `json:"resourceId,omitempty"`
	IPAddress    *string                `json:"ipAddress,omitempty"`
	UserAgent    *string                `json:"userAgent,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// Audit action constants
const (
	AuditActionPatientCreate     = "patient.create"
	AuditActionPatientUpdate     = "patient.update"
	AuditActionPatientDelete     = "patient.delete"
	AuditActionAttachmentUpload  = "patient.attachment_upload"
	AuditActionMessageSend       = "message.send"
	AuditActionMessageBulkSend   = "message.bulk_send"
	AuditActionBirthdayDispatch  = "message.birthday_dispatch"
	AuditActionCopyConfigUpdated = "config.email_updated"
)

// Audit resource types
const (
	AuditResourcePatient    = "patient"
	AuditResourceTemplate   = "template"
	AuditResourceCopyConfig = "email_config"
)
