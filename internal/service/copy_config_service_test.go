package service

import (
	"context"
	"testing"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyConfigService_SaveTrims(t *testing.T) {
	f := newFixture(t, config.EmailConfig{})
	ctx := context.Background()

	saved, err := f.copies.Save(ctx, &model.EmailCopyConfig{
		DefaultBcc:  "  arquivo@clinica.com ",
		TemplateBcc: map[string]string{"aniversario": " marketing@clinica.com "},
	}, AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, "arquivo@clinica.com", saved.DefaultBcc)

	got, err := f.copies.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Contains(t, f.audit.actions(), model.AuditActionCopyConfigUpdated)
}

func TestCopyConfigService_SaveRejectsEmptyTemplateID(t *testing.T) {
	f := newFixture(t, config.EmailConfig{})
	_, err := f.copies.Save(context.Background(), &model.EmailCopyConfig{
		TemplateBcc: map[string]string{" ": "x@clinica.com"},
	}, AuditMeta{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = f.copies.Save(context.Background(), nil, AuditMeta{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCopyConfigService_Overrides(t *testing.T) {
	f := newFixture(t, config.EmailConfig{CC: "a@clinica.com, b@clinica.com", BCC: "env@clinica.com"})
	ctx := context.Background()

	o, err := f.copies.Overrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@clinica.com", "b@clinica.com"}, o.GlobalCc)
	assert.Equal(t, []string{"env@clinica.com"}, o.GlobalBcc, "environment BCC is the fallback")
	assert.Empty(t, o.PerTemplateBcc)

	_, err = f.copies.Save(ctx, &model.EmailCopyConfig{
		DefaultBcc: "stored@clinica.com",
		TemplateBcc: map[string]string{
			"aniversario":    "m1@clinica.com,m2@clinica.com",
			"resultadoExame": "  ",
		},
	}, AuditMeta{})
	require.NoError(t, err)

	o, err = f.copies.Overrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stored@clinica.com"}, o.GlobalBcc, "stored default wins over the environment")
	assert.Equal(t, []string{"m1@clinica.com", "m2@clinica.com"}, o.PerTemplateBcc["aniversario"])
	_, ok := o.PerTemplateBcc["resultadoExame"]
	assert.False(t, ok, "blank template lists are ignored")
}
