package service

import (
	"context"
	"sync"
	"testing"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/notify"
	"github.com/clinicmail/clinicmail/internal/repository"
	"github.com/clinicmail/clinicmail/internal/storage"
	"github.com/stretchr/testify/require"
)

type memoryAudit struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (a *memoryAudit) Create(ctx context.Context, entry *model.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

func (a *memoryAudit) last(action string) *model.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Action == action {
			return a.entries[i]
		}
	}
	return nil
}

type recordingMailer struct {
	mu      sync.Mutex
	sent    []*notify.Message
	failFor map[string]bool
}

func (m *recordingMailer) Name() string                     { return "recording" }
func (m *recordingMailer) Configured() error                { return nil }
func (m *recordingMailer) Verify(ctx context.Context) error { return nil }

func (m *recordingMailer) Send(ctx context.Context, msg *notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.To] {
		return &notify.SendError{Recipient: msg.To, Cause: notify.KindOther}
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, msg := range m.sent {
		out[i] = msg.To
	}
	return out
}

type fixture struct {
	patients      *PatientService
	notifications *NotificationService
	copies        *CopyConfigService
	store         *repository.PatientFileRepository
	files         *storage.Local
	mailer        *recordingMailer
	audit         *memoryAudit
}

func newFixture(t *testing.T, emailCfg config.EmailConfig) *fixture {
	t.Helper()
	log := logger.Nop()
	dir := t.TempDir()

	store, err := repository.NewPatientFileRepository(dir, log)
	require.NoError(t, err)
	copyStore, err := repository.NewCopyConfigFileRepository(dir, log)
	require.NoError(t, err)
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	registry, err := notify.LoadRegistry("")
	require.NoError(t, err)

	audit := &memoryAudit{}
	mailer := &recordingMailer{}
	copies := NewCopyConfigService(copyStore, emailCfg, audit, log)
	renderer := notify.NewRenderer(registry, notify.NewFiles(notify.Assets(), files), log)
	transport := notify.NewTransport(mailer, 0, log)
	dispatcher := notify.NewDispatcher(config.DispatchConfig{BatchSize: 5}, registry, renderer, transport, copies, log)

	return &fixture{
		patients:      NewPatientService(store, files, audit, log),
		notifications: NewNotificationService(store, dispatcher, registry, audit, log),
		copies:        copies,
		store:         store,
		files:         files,
		mailer:        mailer,
		audit:         audit,
	}
}

func (f *fixture) mustCreate(t *testing.T, name, email, birthDate string, specialties ...string) *model.Patient {
	t.Helper()
	p, err := f.patients.Create(context.Background(), model.PatientData{
		Name:        name,
		Email:       email,
		BirthDate:   birthDate,
		Specialties: specialties,
	}, AuditMeta{})
	require.NoError(t, err)
	return p
}
