// Package clinicmail is a Go client for the clinicmail HTTP API.
package clinicmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the configuration for the clinicmail client.
type Config struct {
	// BaseURL is the root URL of the clinicmail server.
	// Examples: "http://localhost:3000" or "https://mail.clinic.example/api"
	// The "/api" suffix is appended automatically if missing.
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a client with a 10 minute timeout is used: a bulk send to a
	// large patient list holds the request open for the whole dispatch.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api") {
		c.BaseURL = c.BaseURL + "/api"
	}
}

// Client is the clinicmail SDK client.
type Client struct {
	cfg  Config
	root string
}

// NewClient creates a new clinicmail client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:  cfg,
		root: strings.TrimSuffix(cfg.BaseURL, "/api"),
	}
}

// ListPatients returns every registered patient.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var patients []Patient
	if err := c.do(ctx, http.MethodGet, "/patients", nil, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// GetPatient returns one patient.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	if err := c.do(ctx, http.MethodGet, "/patients/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePatient registers a patient. Name and email are required.
func (c *Client) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	var p Patient
	if err := c.do(ctx, http.MethodPost, "/patients", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePatient changes the fields set in in and keeps the others.
func (c *Client) UpdatePatient(ctx context.Context, id string, in PatientInput) (*Patient, error) {
	var p Patient
	if err := c.do(ctx, http.MethodPut, "/patients/"+url.PathEscape(id), in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePatient removes a patient and the files uploaded for it.
func (c *Client) DeletePatient(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/patients/"+url.PathEscape(id), nil, nil)
}

// UploadAttachment stores a file for a patient. Later messages to the
// patient carry it as an attachment.
func (c *Client) UploadAttachment(ctx context.Context, patientID, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("patientId", patientID); err != nil {
		return nil, fmt.Errorf("clinicmail: failed to build form: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("clinicmail: failed to build form: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("clinicmail: failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("clinicmail: failed to build form: %w", err)
	}

	status, body, err := c.send(ctx, http.MethodPost, c.cfg.BaseURL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseAPIError(status, body)
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("clinicmail: failed to parse upload response: %w", err)
	}
	return &result, nil
}

// SendMessage sends one template to one patient. A delivery failure is
// reported through SendResult.Success, not as an error.
func (c *Client) SendMessage(ctx context.Context, patientID, templateName string) (*SendResult, error) {
	payload, err := json.Marshal(sendRequest{TemplateName: templateName})
	if err != nil {
		return nil, fmt.Errorf("clinicmail: failed to marshal request: %w", err)
	}

	status, body, err := c.send(ctx, http.MethodPost, c.cfg.BaseURL+"/patients/send/"+url.PathEscape(patientID), "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if status >= 400 && status != http.StatusBadGateway {
		return nil, parseAPIError(status, body)
	}

	var result SendResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("clinicmail: failed to parse send response: %w", err)
	}
	return &result, nil
}

// SendAll sends one template to every registered patient and waits for the
// whole dispatch to finish.
func (c *Client) SendAll(ctx context.Context, templateName string) (*DispatchSummary, error) {
	var summary DispatchSummary
	if err := c.do(ctx, http.MethodPost, "/patients/send-all", sendRequest{TemplateName: templateName}, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListTemplates returns the templates the server can send.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	if err := c.do(ctx, http.MethodGet, "/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// GetEmailConfig returns the blind-copy configuration.
func (c *Client) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	var cfg EmailConfig
	if err := c.do(ctx, http.MethodGet, "/config/email", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveEmailConfig replaces the blind-copy configuration.
func (c *Client) SaveEmailConfig(ctx context.Context, cfg EmailConfig) error {
	if cfg.TemplateBcc == nil {
		cfg.TemplateBcc = map[string]string{}
	}
	return c.do(ctx, http.MethodPost, "/config/email", cfg, nil)
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	status, body, err := c.send(ctx, http.MethodGet, c.root+"/health", "", nil)
	if err != nil {
		return nil, err
	}

	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		if status >= 400 {
			return nil, parseAPIError(status, body)
		}
		return nil, fmt.Errorf("clinicmail: failed to parse health response: %w", err)
	}
	return &h, nil
}

// do sends a JSON request to the API and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var bodyReader io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("clinicmail: failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	status, body, err := c.send(ctx, method, c.cfg.BaseURL+path, contentType, bodyReader)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseAPIError(status, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("clinicmail: failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, target, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("clinicmail: failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("clinicmail: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("clinicmail: failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
