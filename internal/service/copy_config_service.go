package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/notify"
)

// CopyConfigService manages copy recipients. It merges the operator's stored
// blind-copy lists with the CC/BCC lists from the environment.
type CopyConfigService struct {
	store CopyConfigStore
	cfg   config.EmailConfig
	audit *auditor
	log   *logger.Logger
}

// NewCopyConfigService creates a new CopyConfigService
func NewCopyConfigService(store CopyConfigStore, cfg config.EmailConfig, audit AuditStore, log *logger.Logger) *CopyConfigService {
	l := log.WithComponent("copy_config_service")
	return &CopyConfigService{
		store: store,
		cfg:   cfg,
		audit: newAuditor(audit, l),
		log:   l,
	}
}

// Get returns the stored configuration
func (s *CopyConfigService) Get(ctx context.Context) (*model.EmailCopyConfig, error) {
	cfg, err := s.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load email config: %w", err)
	}
	if cfg.TemplateBcc == nil {
		cfg.TemplateBcc = map[string]string{}
	}
	return cfg, nil
}

// Save trims and stores the configuration
func (s *CopyConfigService) Save(ctx context.Context, in *model.EmailCopyConfig, meta AuditMeta) (*model.EmailCopyConfig, error) {
	if in == nil {
		return nil, ErrInvalidConfig
	}

	cfg := &model.EmailCopyConfig{
		DefaultBcc:  strings.TrimSpace(in.DefaultBcc),
		TemplateBcc: make(map[string]string, len(in.TemplateBcc)),
	}
	for id, bcc := range in.TemplateBcc {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: template id must not be empty", ErrInvalidConfig)
		}
		cfg.TemplateBcc[id] = strings.TrimSpace(bcc)
	}

	if err := s.store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save email config: %w", err)
	}

	s.audit.record(ctx, meta, model.AuditActionCopyConfigUpdated, model.AuditResourceCopyConfig, "", map[string]interface{}{
		"templates": len(cfg.TemplateBcc),
	})
	s.log.Info().Int("templates", len(cfg.TemplateBcc)).Msg("email config updated")
	return cfg, nil
}

// Overrides resolves the copy recipients in effect now. CC comes from the
// environment only. The global BCC is the stored default when set, otherwise
// the environment list.
func (s *CopyConfigService) Overrides(ctx context.Context) (model.RecipientOverrides, error) {
	o := model.RecipientOverrides{
		GlobalCc:       notify.SplitAddresses(s.cfg.CC),
		GlobalBcc:      notify.SplitAddresses(s.cfg.BCC),
		PerTemplateBcc: map[string][]string{},
	}

	stored, err := s.store.Get(ctx)
	if err != nil {
		return o, fmt.Errorf("failed to load email config: %w", err)
	}

	if bcc := notify.SplitAddresses(stored.DefaultBcc); len(bcc) > 0 {
		o.GlobalBcc = bcc
	}
	for id, list := range stored.TemplateBcc {
		if bcc := notify.SplitAddresses(list); len(bcc) > 0 {
			o.PerTemplateBcc[id] = bcc
		}
	}
	return o, nil
}
