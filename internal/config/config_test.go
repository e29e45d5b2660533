package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000, MaxUploadSize: 1 << 20},
		Security: SecurityConfig{RateLimiting: RateLimitingConfig{
			Enabled: true,
			Limit:   10,
			Window:  time.Minute,
		}},
		Data:    DataConfig{Driver: DataDriverFile, Dir: "data"},
		Storage: StorageConfig{Driver: StorageDriverLocal, Local: LocalStorageCfg{Dir: "uploads"}},
		Email: EmailConfig{
			Provider: EmailProviderSMTP,
			Timeout:  30 * time.Second,
		},
		Dispatch: DispatchConfig{BatchSize: 5, Cooldown: 3 * time.Second},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			BirthdaySpec: "0 9 * * *",
			Timezone:     "America/Sao_Paulo",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "postgres driver needs no dir", mutate: func(c *Config) { c.Data = DataConfig{Driver: DataDriverPostgres} }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "bad data driver", mutate: func(c *Config) { c.Data.Driver = "mongo" }, wantErr: "data.driver"},
		{name: "file driver without dir", mutate: func(c *Config) { c.Data.Dir = "" }, wantErr: "data.dir"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Driver = StorageDriverS3 }, wantErr: "storage.s3.bucket"},
		{name: "unknown provider", mutate: func(c *Config) { c.Email.Provider = "sendgrid" }, wantErr: "email.provider"},
		{name: "zero batch", mutate: func(c *Config) { c.Dispatch.BatchSize = 0 }, wantErr: "dispatch.batch_size"},
		{name: "negative cooldown", mutate: func(c *Config) { c.Dispatch.Cooldown = -time.Second }, wantErr: "dispatch.cooldown"},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: "scheduler.timezone"},
		{name: "disabled scheduler skips timezone", mutate: func(c *Config) {
			c.Scheduler.Enabled = false
			c.Scheduler.Timezone = "Mars/Olympus"
		}},
		{name: "trusted proxies", mutate: func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} }},
		{name: "bad trusted proxy", mutate: func(c *Config) { c.Server.TrustedProxies = []string{"load-balancer"} }, wantErr: "server.trusted_proxies"},
		{name: "rate limit without window", mutate: func(c *Config) { c.Security.RateLimiting.Window = 0 }, wantErr: "security.rate_limiting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.1.2.3/8", " 192.0.2.1 ", "::ffff:198.51.100.1", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, prefixes, 4)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())
	assert.Equal(t, "198.51.100.1/32", prefixes[2].String())
	assert.Equal(t, "2001:db8::/32", prefixes[3].String())

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}

func TestValidate_IncompleteRelayIsAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Email.SMTP = SMTPConfig{Host: "smtp.example.com"}

	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Email.SMTP.Complete())
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMAIL_HOST", "smtp.example.com")
	t.Setenv("EMAIL_PORT", "465")
	t.Setenv("EMAIL_SECURE", "true")
	t.Setenv("EMAIL_USER", "clinica@example.com")
	t.Setenv("EMAIL_PASS", "s3cret")
	t.Setenv("EMAIL_BCC", "arquivo@example.com")
	t.Setenv("CLINICMAIL_DISPATCH_BATCH_SIZE", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	assert.Equal(t, 465, cfg.Email.SMTP.Port)
	assert.True(t, cfg.Email.SMTP.Secure)
	assert.Equal(t, "clinica@example.com", cfg.Email.From())
	assert.True(t, cfg.Email.SMTP.Complete())
	assert.Equal(t, "arquivo@example.com", cfg.Email.BCC)
	assert.Equal(t, 3, cfg.Dispatch.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Email.Timeout)
	assert.Equal(t, DataDriverFile, cfg.Data.Driver)
}

func TestEmailConfig_From(t *testing.T) {
	assert.Equal(t, "a@example.com", EmailConfig{SenderAddress: "a@example.com", SMTP: SMTPConfig{Username: "u@example.com"}}.From())
	assert.Equal(t, "u@example.com", EmailConfig{Provider: EmailProviderSMTP, SMTP: SMTPConfig{Username: "u@example.com"}}.From())
	assert.Equal(t, "g@example.com", EmailConfig{Provider: EmailProviderGmail, Gmail: GmailEmailConfig{SenderAddress: "g@example.com"}}.From())
}

type fakeSecrets struct {
	value *string
	err   error
	asked string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(params.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestResolveSecrets(t *testing.T) {
	t.Run("no secret configured", func(t *testing.T) {
		cfg := validConfig()
		client := &fakeSecrets{err: errors.New("must not be called")}

		require.NoError(t, ResolveSecrets(context.Background(), cfg, client))
		assert.Empty(t, client.asked)
	})

	t.Run("fills missing credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Email.SMTP.PasswordSecret = "clinicmail/smtp"
		client := &fakeSecrets{value: aws.String(`{"username":"relay@example.com","password":"pw"}`)}

		require.NoError(t, ResolveSecrets(context.Background(), cfg, client))
		assert.Equal(t, "clinicmail/smtp", client.asked)
		assert.Equal(t, "relay@example.com", cfg.Email.SMTP.Username)
		assert.Equal(t, "pw", cfg.Email.SMTP.Password)
	})

	t.Run("configured values win", func(t *testing.T) {
		cfg := validConfig()
		cfg.Email.SMTP.PasswordSecret = "clinicmail/smtp"
		cfg.Email.SMTP.Username = "local@example.com"
		client := &fakeSecrets{value: aws.String(`{"username":"relay@example.com","password":"pw"}`)}

		require.NoError(t, ResolveSecrets(context.Background(), cfg, client))
		assert.Equal(t, "local@example.com", cfg.Email.SMTP.Username)
		assert.Equal(t, "pw", cfg.Email.SMTP.Password)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			client *fakeSecrets
		}{
			{name: "fetch fails", client: &fakeSecrets{err: errors.New("access denied")}},
			{name: "binary secret", client: &fakeSecrets{}},
			{name: "not json", client: &fakeSecrets{value: aws.String("pw")}},
			{name: "no password", client: &fakeSecrets{value: aws.String(`{"username":"u"}`)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cfg := validConfig()
				cfg.Email.SMTP.PasswordSecret = "clinicmail/smtp"
				assert.Error(t, ResolveSecrets(context.Background(), cfg, tt.client))
			})
		}
	})
}
