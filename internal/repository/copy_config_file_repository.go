package repository

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
)

// CopyConfigFileName is the copy configuration document inside the data directory
const CopyConfigFileName = "email-config.json"

// CopyConfigFileRepository keeps the blind-copy configuration in a JSON file
type CopyConfigFileRepository struct {
	mu   sync.Mutex
	file *jsonFile
}

// NewCopyConfigFileRepository opens (creating when needed) <dir>/email-config.json
func NewCopyConfigFileRepository(dir string, log *logger.Logger) (*CopyConfigFileRepository, error) {
	empty := []byte(`{"defaultBcc":"","templateBcc":{}}`)
	f, err := newJSONFile(filepath.Join(dir, CopyConfigFileName), empty, log.WithComponent("copy_config_file_repository"))
	if err != nil {
		return nil, err
	}
	return &CopyConfigFileRepository{file: f}, nil
}

// Get returns the stored configuration
func (r *CopyConfigFileRepository) Get(ctx context.Context) (*model.EmailCopyConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cfg model.EmailCopyConfig
	if err := r.file.read(&cfg); err != nil {
		return nil, err
	}
	if cfg.TemplateBcc == nil {
		cfg.TemplateBcc = map[string]string{}
	}
	return &cfg, nil
}

// Save replaces the stored configuration
func (r *CopyConfigFileRepository) Save(ctx context.Context, cfg *model.EmailCopyConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.write(cfg)
}
