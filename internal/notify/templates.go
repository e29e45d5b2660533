package notify

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml assets
var embedded embed.FS

// Placeholders recognised in template subjects and bodies
const (
	PlaceholderName        = "{{nome}}"
	PlaceholderSpecialties = "{{especialidades}}"
)

// Template is an immutable message template
type Template struct {
	ID      string `yaml:"id" json:"id"`
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
	// SpecialtiesQualifier is the phrase removed from the body when the
	// patient has no specialties
	SpecialtiesQualifier string  `yaml:"specialtiesQualifier" json:"-"`
	Assets               []Asset `yaml:"assets" json:"-"`
}

// Asset is a static file shipped with a template. A non-empty ContentID
// embeds it inline so the HTML body can reference it as cid:<ContentID>.
type Asset struct {
	File      string `yaml:"file"`
	ContentID string `yaml:"contentId"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// Registry is a read-only lookup of templates by id
type Registry struct {
	templates map[string]Template
}

// NewRegistry builds a registry from templates; later entries replace earlier
// ones with the same id.
func NewRegistry(templates ...Template) *Registry {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		r.templates[t.ID] = t
	}
	return r
}

// LoadRegistry loads the built-in templates, then the entries of the YAML
// file at overridePath (when not empty), which replace or extend them.
func LoadRegistry(overridePath string) (*Registry, error) {
	defaults, err := parseTemplates(mustRead(embedded, "templates.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in templates: %w", err)
	}
	r := NewRegistry(defaults...)

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read templates file: %w", err)
		}
		overrides, err := parseTemplates(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse templates file %s: %w", overridePath, err)
		}
		for _, t := range overrides {
			r.templates[t.ID] = t
		}
	}

	assets := Assets()
	for _, t := range r.templates {
		for _, a := range t.Assets {
			if _, err := fs.Stat(assets, a.File); err != nil {
				return nil, fmt.Errorf("template %s: asset %s: %w", t.ID, a.File, err)
			}
		}
	}
	return r, nil
}

func parseTemplates(data []byte) ([]Template, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, t := range f.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template #%d has no id", i+1)
		}
		if t.Subject == "" || t.Body == "" {
			return nil, fmt.Errorf("template %s needs a subject and a body", t.ID)
		}
	}
	return f.Templates, nil
}

// Get returns the template with the given id
func (r *Registry) Get(id string) (Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	t.Assets = append([]Asset(nil), t.Assets...)
	return t, nil
}

// Has reports whether id names a template
func (r *Registry) Has(id string) bool {
	_, ok := r.templates[id]
	return ok
}

// List returns every template sorted by id
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		t.Assets = append([]Asset(nil), t.Assets...)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Assets returns the embedded template asset files
func Assets() fs.FS {
	sub, err := fs.Sub(embedded, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

func mustRead(fsys fs.FS, name string) []byte {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		panic(err)
	}
	return data
}
