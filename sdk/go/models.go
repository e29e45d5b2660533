package clinicmail

import "time"

// Patient is a patient record returned by the API.
type Patient struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	BirthDate    string     `json:"birthDate,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Specialties  []string   `json:"specialties,omitempty"`
	Attachments  []string   `json:"attachments,omitempty"`
	RegisteredAt time.Time  `json:"registeredAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// PatientInput holds the editable patient fields. On update, empty fields
// keep the stored value; a non-nil empty Specialties clears the list.
type PatientInput struct {
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	BirthDate   string   `json:"birthDate,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Specialties []string `json:"specialties"`
}

// UploadResult is returned after an attachment upload.
type UploadResult struct {
	Success  bool   `json:"success"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

type sendRequest struct {
	TemplateName string `json:"templateName"`
}

// SendResult is the outcome of a single send.
type SendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DispatchOutcome is the result for one patient of a bulk send.
type DispatchOutcome struct {
	PatientID string `json:"id"`
	Email     string `json:"email"`
	Success   bool   `json:"success"`
}

// DispatchSummary is returned after a bulk send.
type DispatchSummary struct {
	Success        bool              `json:"success"`
	Total          int               `json:"total"`
	SucceededCount int               `json:"successCount"`
	FailedCount    int               `json:"failureCount"`
	Outcomes       []DispatchOutcome `json:"results"`
}

// Template describes a message template.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// EmailConfig is the blind-copy configuration. Values are comma-separated
// address lists.
type EmailConfig struct {
	DefaultBcc  string            `json:"defaultBcc"`
	TemplateBcc map[string]string `json:"templateBcc"`
}

// Health is the server health report.
type Health struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}
