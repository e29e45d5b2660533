package model

import (
	"time"
)

// BirthDateLayout is the storage format of Patient.BirthDate
const BirthDateLayout = "2006-01-02"

// PatientData holds the fields a clinic operator edits on a patient record
type PatientData struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	BirthDate   string   `json:"birthDate,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Specialties []string `json:"specialties,omitempty"`
}

// Patient represents a stored patient contact record
type Patient struct {
	ID string `json:"id"`
	PatientData
	// Attachments are storage refs of files uploaded for this patient
	Attachments  []string   `json:"attachments,omitempty"`
	RegisteredAt time.Time  `json:"registeredAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Birthday returns the birth month and day, and false when the birth date is
// missing or malformed.
func (p *Patient) Birthday() (time.Month, int, bool) {
	if p.BirthDate == "" {
		return 0, 0, false
	}
	t, err := time.Parse(BirthDateLayout, p.BirthDate)
	if err != nil {
		return 0, 0, false
	}
	return t.Month(), t.Day(), true
}

// HasBirthdayOn reports whether the patient's birth day and month match day.
func (p *Patient) HasBirthdayOn(day time.Time) bool {
	month, d, ok := p.Birthday()
	return ok && month == day.Month() && d == day.Day()
}

// Clone returns a deep copy so callers can hand the record to concurrent code
func (p *Patient) Clone() *Patient {
	c := *p
	c.Specialties = append([]string(nil), p.Specialties...)
	c.Attachments = append([]string(nil), p.Attachments...)
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}
