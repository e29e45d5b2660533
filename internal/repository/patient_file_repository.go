package repository

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
)

// PatientsFileName is the patient document inside the data directory
const PatientsFileName = "patients.json"

// PatientFileRepository keeps patients in a single JSON array on disk.
// Every call re-reads the file so hand edits are picked up.
type PatientFileRepository struct {
	mu   sync.Mutex
	file *jsonFile
}

// NewPatientFileRepository opens (creating when needed) <dir>/patients.json
func NewPatientFileRepository(dir string, log *logger.Logger) (*PatientFileRepository, error) {
	f, err := newJSONFile(filepath.Join(dir, PatientsFileName), []byte("[]"), log.WithComponent("patient_file_repository"))
	if err != nil {
		return nil, err
	}
	return &PatientFileRepository{file: f}, nil
}

func (r *PatientFileRepository) load() ([]*model.Patient, error) {
	var patients []*model.Patient
	if err := r.file.read(&patients); err != nil {
		return nil, err
	}
	if patients == nil {
		patients = make([]*model.Patient, 0)
	}
	return patients, nil
}

// List returns every patient in file order
func (r *PatientFileRepository) List(ctx context.Context) ([]*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// GetByID retrieves a patient by ID
func (r *PatientFileRepository) GetByID(ctx context.Context, id string) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	patients, err := r.load()
	if err != nil {
		return nil, err
	}
	if i := indexByID(patients, id); i >= 0 {
		return patients[i], nil
	}
	return nil, ErrNotFound
}

// GetByEmail retrieves a patient by email, ignoring case
func (r *PatientFileRepository) GetByEmail(ctx context.Context, email string) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	patients, err := r.load()
	if err != nil {
		return nil, err
	}
	if i := indexByEmail(patients, email, ""); i >= 0 {
		return patients[i], nil
	}
	return nil, ErrNotFound
}

// Create appends a new patient
func (r *PatientFileRepository) Create(ctx context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patients, err := r.load()
	if err != nil {
		return err
	}
	if indexByID(patients, p.ID) >= 0 || indexByEmail(patients, p.Email, "") >= 0 {
		return ErrEmailConflict
	}
	return r.file.write(append(patients, p))
}

// Update replaces an existing patient in place
func (r *PatientFileRepository) Update(ctx context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patients, err := r.load()
	if err != nil {
		return err
	}
	i := indexByID(patients, p.ID)
	if i < 0 {
		return ErrNotFound
	}
	if indexByEmail(patients, p.Email, p.ID) >= 0 {
		return ErrEmailConflict
	}
	patients[i] = p
	return r.file.write(patients)
}

// Delete removes a patient
func (r *PatientFileRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patients, err := r.load()
	if err != nil {
		return err
	}
	i := indexByID(patients, id)
	if i < 0 {
		return ErrNotFound
	}
	patients = append(patients[:i], patients[i+1:]...)
	return r.file.write(patients)
}

func indexByID(patients []*model.Patient, id string) int {
	for i, p := range patients {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// indexByEmail finds a patient with the given email other than exceptID
func indexByEmail(patients []*model.Patient, email, exceptID string) int {
	for i, p := range patients {
		if p.ID != exceptID && strings.EqualFold(p.Email, email) {
			return i
		}
	}
	return -1
}
