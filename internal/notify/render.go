package notify

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/storage"
)

// AttachmentSource tells where an attachment's bytes live
type AttachmentSource string

// Attachment sources
const (
	SourceAsset  AttachmentSource = "asset"
	SourceUpload AttachmentSource = "upload"
)

// Attachment is a file carried by a message. Locator is the asset path or
// the storage ref, depending on Source.
type Attachment struct {
	Filename  string
	Locator   string
	Source    AttachmentSource
	ContentID string
}

// Inline reports whether the attachment is embedded for the HTML body
func (a Attachment) Inline() bool {
	return a.ContentID != ""
}

// Message is a fully rendered email for one recipient
type Message struct {
	PatientID   string
	To          string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Files opens attachment contents for both template assets and uploads
type Files struct {
	assets fs.FS
	store  storage.Store
}

// NewFiles creates a Files. store may be nil when uploads are not used.
func NewFiles(assets fs.FS, store storage.Store) *Files {
	return &Files{assets: assets, store: store}
}

// Open returns the attachment's contents
func (f *Files) Open(ctx context.Context, a Attachment) (io.ReadCloser, error) {
	switch a.Source {
	case SourceAsset:
		return f.assets.Open(a.Locator)
	case SourceUpload:
		if f.store == nil {
			return nil, storage.ErrNotFound
		}
		return f.store.Open(ctx, a.Locator)
	default:
		return nil, fmt.Errorf("unknown attachment source %q", a.Source)
	}
}

func (f *Files) uploadExists(ctx context.Context, ref string) (bool, error) {
	if f.store == nil {
		return false, nil
	}
	return f.store.Exists(ctx, ref)
}

// Renderer turns a patient and a template into a Message
type Renderer struct {
	registry *Registry
	files    *Files
	log      *logger.Logger
}

// NewRenderer creates a new Renderer
func NewRenderer(registry *Registry, files *Files, log *logger.Logger) *Renderer {
	return &Renderer{
		registry: registry,
		files:    files,
		log:      log.WithComponent("renderer"),
	}
}

// Render builds the message for patient. The patient is only read.
func (r *Renderer) Render(ctx context.Context, patient *model.Patient, templateID string, overrides model.RecipientOverrides) (*Message, error) {
	tmpl, err := r.registry.Get(templateID)
	if err != nil {
		return nil, err
	}

	specialties := FormatSpecialties(patient.Specialties)
	subject := fillPlaceholders(tmpl.Subject, "", patient.Name, specialties)
	body := fillPlaceholders(tmpl.Body, tmpl.SpecialtiesQualifier, patient.Name, specialties)

	copies := ResolveCopies(overrides, templateID)

	return &Message{
		PatientID:   patient.ID,
		To:          patient.Email,
		Cc:          copies.Cc,
		Bcc:         copies.Bcc,
		Subject:     subject,
		TextBody:    body,
		HTMLBody:    HTMLBody(body),
		Attachments: r.attachments(ctx, patient, tmpl),
	}, nil
}

func (r *Renderer) attachments(ctx context.Context, patient *model.Patient, tmpl Template) []Attachment {
	out := make([]Attachment, 0, len(tmpl.Assets)+len(patient.Attachments))
	for _, a := range tmpl.Assets {
		out = append(out, Attachment{
			Filename:  a.File,
			Locator:   a.File,
			Source:    SourceAsset,
			ContentID: a.ContentID,
		})
	}

	for _, ref := range patient.Attachments {
		_, filename, err := storage.SplitRef(ref)
		if err != nil {
			r.skipAttachment(patient.ID, ref, err, "skipping attachment with invalid reference")
			continue
		}
		ok, err := r.files.uploadExists(ctx, ref)
		if err != nil {
			r.skipAttachment(patient.ID, ref, err, "skipping attachment that could not be checked")
			continue
		}
		if !ok {
			r.skipAttachment(patient.ID, ref, nil, "skipping missing attachment")
			continue
		}
		out = append(out, Attachment{Filename: filename, Locator: ref, Source: SourceUpload})
	}
	return out
}

func (r *Renderer) skipAttachment(patientID, ref string, err error, msg string) {
	r.log.Warn().Err(err).Str("patient_id", patientID).Str("ref", ref).Msg(msg)
}

// FormatSpecialties joins specialties as "A, B e C". The input is not modified.
func FormatSpecialties(specialties []string) string {
	switch len(specialties) {
	case 0:
		return ""
	case 1:
		return specialties[0]
	}
	last := len(specialties) - 1
	return strings.Join(specialties[:last], ", ") + " e " + specialties[last]
}

func fillPlaceholders(text, qualifier, name, specialties string) string {
	if specialties == "" && qualifier != "" {
		text = strings.ReplaceAll(text, qualifier, "")
	}
	// One pass, so placeholder text inside a name is never expanded.
	return strings.NewReplacer(PlaceholderName, name, PlaceholderSpecialties, specialties).Replace(text)
}

// HTMLBody returns body unchanged when it is already an HTML document,
// otherwise body with newlines turned into <br>.
func HTMLBody(body string) string {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return body
	}
	return strings.ReplaceAll(body, "\n", "<br>")
}
