package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinicmail/clinicmail/internal/database"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/lib/pq"
)

// pqUniqueViolation is the SQLSTATE for unique_violation
const pqUniqueViolation = "23505"

const patientColumns = `id, name, email, birth_date, phone, specialties, attachments, registered_at, updated_at`

// PatientRepository handles patient persistence in PostgreSQL
type PatientRepository struct {
	db *database.Postgres
}

// NewPatientRepository creates a new PatientRepository
func NewPatientRepository(db *database.Postgres) *PatientRepository {
	return &PatientRepository{db: db}
}

// List returns every patient ordered by registration time
func (r *PatientRepository) List(ctx context.Context) ([]*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY registered_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	patients := make([]*model.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}
	return patients, nil
}

// GetByID retrieves a patient by ID
func (r *PatientRepository) GetByID(ctx context.Context, id string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	return scanPatient(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a patient by email, ignoring case
func (r *PatientRepository) GetByEmail(ctx context.Context, email string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE LOWER(email) = LOWER($1)`
	return scanPatient(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts a new patient
func (r *PatientRepository) Create(ctx context.Context, p *model.Patient) error {
	query := `
		INSERT INTO patients (id, name, email, birth_date, phone, specialties, attachments, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		nullString(p.BirthDate),
		nullString(p.Phone),
		pq.Array(nonNil(p.Specialties)),
		pq.Array(nonNil(p.Attachments)),
		p.RegisteredAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailConflict
		}
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of an existing patient
func (r *PatientRepository) Update(ctx context.Context, p *model.Patient) error {
	query := `
		UPDATE patients
		SET name = $1, email = $2, birth_date = $3, phone = $4,
		    specialties = $5, attachments = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := r.db.ExecContext(ctx, query,
		p.Name,
		p.Email,
		nullString(p.BirthDate),
		nullString(p.Phone),
		pq.Array(nonNil(p.Specialties)),
		pq.Array(nonNil(p.Attachments)),
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailConflict
		}
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return expectAffected(result)
}

// Delete removes a patient
func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return expectAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*model.Patient, error) {
	var (
		p         model.Patient
		birthDate sql.NullTime
		phone     sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&birthDate,
		&phone,
		pq.Array(&p.Specialties),
		pq.Array(&p.Attachments),
		&p.RegisteredAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan patient: %w", err)
	}
	if birthDate.Valid {
		p.BirthDate = birthDate.Time.Format(model.BirthDateLayout)
	}
	p.Phone = phone.String
	return &p, nil
}

func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

