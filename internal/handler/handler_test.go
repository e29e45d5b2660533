package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/middleware"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/notify"
	"github.com/clinicmail/clinicmail/internal/repository"
	"github.com/clinicmail/clinicmail/internal/service"
	"github.com/clinicmail/clinicmail/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMailer struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]bool
	delay time.Duration
}

func (m *stubMailer) Name() string                     { return "stub" }
func (m *stubMailer) Configured() error                { return nil }
func (m *stubMailer) Verify(ctx context.Context) error { return nil }

func (m *stubMailer) Send(ctx context.Context, msg *notify.Message) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return errors.New("550 mailbox unavailable")
	}
	m.sent = append(m.sent, msg.To)
	return nil
}

type testServer struct {
	mux      *http.ServeMux
	handler  *Handler
	mailer   *stubMailer
	patients *service.PatientService
}

func newTestServer(t *testing.T, checks ...HealthCheck) *testServer {
	t.Helper()
	log := logger.Nop()
	dir := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{MaxUploadSize: 1 << 20},
		Email:  config.EmailConfig{BCC: "env-bcc@clinic.example"},
	}

	store, err := repository.NewPatientFileRepository(dir, log)
	require.NoError(t, err)
	copyStore, err := repository.NewCopyConfigFileRepository(dir, log)
	require.NoError(t, err)
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	registry, err := notify.LoadRegistry("")
	require.NoError(t, err)

	audit := repository.NewLogAuditRepository(log)
	mailer := &stubMailer{fail: map[string]bool{}}
	copies := service.NewCopyConfigService(copyStore, cfg.Email, audit, log)
	renderer := notify.NewRenderer(registry, notify.NewFiles(notify.Assets(), files), log)
	transport := notify.NewTransport(mailer, 0, log)
	dispatcher := notify.NewDispatcher(config.DispatchConfig{BatchSize: 5}, registry, renderer, transport, copies, log)
	patients := service.NewPatientService(store, files, audit, log)
	notifications := service.NewNotificationService(store, dispatcher, registry, audit, log)

	h := New(cfg, log, patients, notifications, copies, transport, checks...)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /api/patients", h.ListPatients)
	mux.HandleFunc("POST /api/patients", h.CreatePatient)
	mux.HandleFunc("GET /api/patients/{id}", h.GetPatient)
	mux.HandleFunc("PUT /api/patients/{id}", h.UpdatePatient)
	mux.HandleFunc("DELETE /api/patients/{id}", h.DeletePatient)
	mux.HandleFunc("POST /api/patients/send/{id}", h.SendToPatient)
	mux.HandleFunc("POST /api/patients/send-all", h.SendToAll)
	mux.HandleFunc("GET /api/templates", h.ListTemplates)
	mux.HandleFunc("GET /api/config/email", h.GetEmailConfig)
	mux.HandleFunc("POST /api/config/email", h.SaveEmailConfig)
	mux.HandleFunc("POST /api/upload", h.Upload)

	return &testServer{mux: mux, handler: h, mailer: mailer, patients: patients}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createPatient(t *testing.T, body string) *model.Patient {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/patients", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p model.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return &p
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestPatientLifecycle(t *testing.T) {
	s := newTestServer(t)

	created := s.createPatient(t, `{"name":"Ana","email":"ana@example.com","birthDate":"1990-03-14","specialties":["Cardiologia"]}`)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.RegisteredAt.IsZero())

	rec := s.do(t, http.MethodPost, "/api/patients", `{"name":"Outra Ana","email":"ANA@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email_taken", errorCode(t, rec))

	rec = s.do(t, http.MethodPut, "/api/patients/"+created.ID, `{"name":"Ana Souza"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Ana Souza", updated.Name)
	assert.Equal(t, "ana@example.com", updated.Email)
	assert.Equal(t, []string{"Cardiologia"}, updated.Specialties)
	assert.NotNil(t, updated.UpdatedAt)

	rec = s.do(t, http.MethodGet, "/api/patients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Souza", list[0].Name)

	rec = s.do(t, http.MethodDelete, "/api/patients/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/patients/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))

	rec = s.do(t, http.MethodDelete, "/api/patients/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPatients_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/patients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreatePatient_Invalid(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"email":"a@example.com"}`},
		{name: "missing email", body: `{"name":"A"}`},
		{name: "bad birth date", body: `{"name":"A","email":"a@example.com","birthDate":"14/03/1990"}`},
		{name: "malformed json", body: `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/patients", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", errorCode(t, rec))
		})
	}
}

func TestSendToPatient(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Bruno","email":"bruno@example.com"}`)

	rec := s.do(t, http.MethodPost, "/api/patients/send/"+p.ID, `{"templateName":"resultadoExame"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"E-mail enviado com sucesso"}`, rec.Body.String())
	assert.Equal(t, []string{"bruno@example.com"}, s.mailer.sent)
}

func TestSendToPatient_Errors(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Bruno","email":"bruno@example.com"}`)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "missing template", path: "/api/patients/send/" + p.ID, body: `{}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown template", path: "/api/patients/send/" + p.ID, body: `{"templateName":"nope"}`, status: http.StatusBadRequest, code: "template_not_found"},
		{name: "unknown patient", path: "/api/patients/send/missing", body: `{"templateName":"aniversario"}`, status: http.StatusNotFound, code: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
	assert.Empty(t, s.mailer.sent)
}

func TestSendToPatient_DeliveryFailure(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Bruno","email":"bruno@example.com"}`)
	s.mailer.fail["bruno@example.com"] = true

	rec := s.do(t, http.MethodPost, "/api/patients/send/"+p.ID, `{"templateName":"resultadoExame"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Falha ao enviar e-mail"}`, rec.Body.String())
}

func TestSendToAll(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/patients/send-all", `{"templateName":"avisoClinica"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_patients", errorCode(t, rec))

	first := s.createPatient(t, `{"name":"Carla","email":"carla@example.com"}`)
	second := s.createPatient(t, `{"name":"Davi","email":"davi@example.com"}`)
	s.mailer.fail["davi@example.com"] = true

	rec = s.do(t, http.MethodPost, "/api/patients/send-all", `{"templateName":"avisoClinica"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary model.DispatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.False(t, summary.Success)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.SucceededCount)
	assert.Equal(t, 1, summary.FailedCount)
	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, model.DispatchOutcome{PatientID: first.ID, Email: "carla@example.com", Success: true}, summary.Outcomes[0])
	assert.Equal(t, model.DispatchOutcome{PatientID: second.ID, Email: "davi@example.com", Success: false}, summary.Outcomes[1])
}

func TestSendToAll_OutlivesServerWriteTimeout(t *testing.T) {
	s := newTestServer(t)
	s.createPatient(t, `{"name":"Carla","email":"carla@example.com"}`)
	s.mailer.delay = 300 * time.Millisecond
	s.handler.writeTimeout = 100 * time.Millisecond

	srv := httptest.NewUnstartedServer(s.mux)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Post(srv.URL+"/api/patients/send-all", "application/json",
		strings.NewReader(`{"templateName":"avisoClinica"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary model.DispatchSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.SucceededCount)
}

func TestListTemplates(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var templates []TemplateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &templates))
	ids := make([]string, len(templates))
	for i, tpl := range templates {
		ids[i] = tpl.ID
	}
	assert.Contains(t, ids, "aniversario")
	assert.Contains(t, ids, "lembreteConsulta")
}

func TestEmailConfig(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/config/email", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"defaultBcc":"","templateBcc":{}}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/config/email", `{"defaultBcc":" gestao@clinic.example ","templateBcc":{"aniversario":" rh@clinic.example "}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/config/email", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"defaultBcc":"gestao@clinic.example","templateBcc":{"aniversario":"rh@clinic.example"}}`, rec.Body.String())
}

func TestSaveEmailConfig_Invalid(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "defaultBcc not a string", body: `{"defaultBcc":3,"templateBcc":{}}`},
		{name: "templateBcc not an object", body: `{"defaultBcc":"","templateBcc":"x"}`},
		{name: "missing defaultBcc", body: `{"templateBcc":{}}`},
		{name: "missing templateBcc", body: `{"defaultBcc":""}`},
		{name: "empty template id", body: `{"defaultBcc":"","templateBcc":{" ":"a@example.com"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/config/email", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", errorCode(t, rec))
		})
	}
}

func uploadRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Eva","email":"eva@example.com"}`)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, uploadRequest(t, map[string]string{"patientId": p.ID}, "exame.pdf", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, p.ID+"/exame.pdf", resp.Path)
	assert.Equal(t, "exame.pdf", resp.Filename)

	stored, err := s.patients.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID + "/exame.pdf"}, stored.Attachments)
}

func TestUpload_LegacyFieldName(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Eva","email":"eva@example.com"}`)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, uploadRequest(t, map[string]string{"pacienteId": p.ID}, "receita.txt", []byte("ok")))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUpload_Errors(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Eva","email":"eva@example.com"}`)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		status   int
	}{
		{name: "missing patient", fields: map[string]string{}, filename: "a.txt", status: http.StatusBadRequest},
		{name: "missing file", fields: map[string]string{"patientId": p.ID}, status: http.StatusBadRequest},
		{name: "unknown patient", fields: map[string]string{"patientId": "missing"}, filename: "a.txt", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.mux.ServeHTTP(rec, uploadRequest(t, tt.fields, tt.filename, []byte("x")))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t)
	p := s.createPatient(t, `{"name":"Eva","email":"eva@example.com"}`)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, uploadRequest(t, map[string]string{"patientId": p.ID}, "big.bin", bytes.Repeat([]byte("x"), 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Run("mail not verified yet degrades", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, notify.StateUninitialized.String(), resp.Services["mail"])
	})

	t.Run("healthy after a send", func(t *testing.T) {
		s := newTestServer(t, HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }})
		p := s.createPatient(t, `{"name":"Eva","email":"eva@example.com"}`)
		s.do(t, http.MethodPost, "/api/patients/send/"+p.ID, `{"templateName":"aniversario"}`)

		rec := s.do(t, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "healthy", resp.Services["postgres"])
	})

	t.Run("failing dependency", func(t *testing.T) {
		s := newTestServer(t, HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }})

		rec := s.do(t, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = s.do(t, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAuditMeta_UsesResolvedClient(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{TrustedProxies: []string{"10.0.0.0/8"}}}
	mw := middleware.New(nil, logger.Nop(), cfg)

	var meta service.AuditMeta
	h := mw.RequestID(mw.ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = auditMeta(r)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/patients/send-all", nil)
	req.RemoteAddr = "10.0.0.3:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Request-ID", "req-9")
	req.Header.Set("User-Agent", "clinicctl")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, service.AuditMeta{IPAddress: "203.0.113.7", UserAgent: "clinicctl", RequestID: "req-9"}, meta)
}
