package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicmail/clinicmail/internal/database"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	copyConfigKey          = "clinicmail:email_config"
	copyConfigDefaultField = "defaultBcc"
	copyConfigTemplatePfx  = "template:"
)

// CopyConfigRepository stores the blind-copy configuration as a Redis hash:
// one field for the default list and one "template:<id>" field per template.
type CopyConfigRepository struct {
	rdb *database.Redis
}

// NewCopyConfigRepository creates a new CopyConfigRepository
func NewCopyConfigRepository(rdb *database.Redis) *CopyConfigRepository {
	return &CopyConfigRepository{rdb: rdb}
}

// Get returns the stored configuration, or an empty one when nothing was saved
func (r *CopyConfigRepository) Get(ctx context.Context) (*model.EmailCopyConfig, error) {
	fields, err := r.rdb.HGetAll(ctx, copyConfigKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read email config: %w", err)
	}

	cfg := &model.EmailCopyConfig{TemplateBcc: map[string]string{}}
	for field, value := range fields {
		if field == copyConfigDefaultField {
			cfg.DefaultBcc = value
			continue
		}
		if id, ok := strings.CutPrefix(field, copyConfigTemplatePfx); ok {
			cfg.TemplateBcc[id] = value
		}
	}
	return cfg, nil
}

// Save replaces the stored configuration atomically
func (r *CopyConfigRepository) Save(ctx context.Context, cfg *model.EmailCopyConfig) error {
	values := map[string]any{copyConfigDefaultField: cfg.DefaultBcc}
	for id, bcc := range cfg.TemplateBcc {
		values[copyConfigTemplatePfx+id] = bcc
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, copyConfigKey)
		pipe.HSet(ctx, copyConfigKey, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save email config: %w", err)
	}
	return nil
}
