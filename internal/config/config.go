package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Data drivers
const (
	DataDriverPostgres = "postgres"
	DataDriverFile     = "file"
)

// Storage drivers
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// Email providers
const (
	EmailProviderSMTP  = "smtp"
	EmailProviderGmail = "gmail"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Data      DataConfig      `mapstructure:"data"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Email     EmailConfig     `mapstructure:"email"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Templates TemplatesConfig `mapstructure:"templates"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// MaxUploadSize limits multipart uploads, in bytes
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
	// CORSOrigins lists the browser origins allowed to call the API
	CORSOrigins []string `mapstructure:"cors_origins"`
	// TrustedProxies lists the proxy addresses or CIDRs whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// peer address is always the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// ParseTrustedProxies turns addresses and CIDRs into prefixes. A bare
// address becomes a single-host prefix.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", e)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration for the send endpoints
type RateLimitingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// DataConfig selects where patients and the copy-recipient configuration live.
type DataConfig struct {
	// Driver is "postgres" (patients in PostgreSQL, copy config in Redis)
	// or "file" (JSON files under Dir).
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	Driver string          `mapstructure:"driver"`
	Local  LocalStorageCfg `mapstructure:"local"`
	S3     S3StorageCfg    `mapstructure:"s3"`
}

// LocalStorageCfg holds filesystem storage settings
type LocalStorageCfg struct {
	Dir string `mapstructure:"dir"`
}

// S3StorageCfg holds S3 (or S3-compatible) storage settings
type S3StorageCfg struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Prefix         string `mapstructure:"prefix"`
	AccessKeyID    string `mapstructure:"access_key_id"`
	SecretKey      string `mapstructure:"secret_key"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// EmailConfig holds email sending configuration
type EmailConfig struct {
	// Provider is the mail transport to use: "smtp" or "gmail"
	Provider string `mapstructure:"provider"`
	// SenderName is the display name in the From header
	SenderName string `mapstructure:"sender_name"`
	// SenderAddress is the From address. Defaults to the SMTP username.
	SenderAddress string `mapstructure:"sender_address"`
	// Timeout bounds the connection, greeting and every send
	Timeout time.Duration `mapstructure:"timeout"`
	// CC is a comma-separated list copied on every message
	CC string `mapstructure:"cc"`
	// BCC is the comma-separated fallback blind-copy list
	BCC   string           `mapstructure:"bcc"`
	SMTP  SMTPConfig       `mapstructure:"smtp"`
	Gmail GmailEmailConfig `mapstructure:"gmail"`
}

// From returns the configured sender address, falling back to the SMTP user.
func (c EmailConfig) From() string {
	if c.SenderAddress != "" {
		return c.SenderAddress
	}
	if c.Provider == EmailProviderGmail {
		return c.Gmail.SenderAddress
	}
	return c.SMTP.Username
}

// SMTPConfig holds SMTP relay settings
type SMTPConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Secure bool   `mapstructure:"secure"`
	// Username and Password authenticate against the relay
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// PasswordSecret names an AWS Secrets Manager secret holding the credentials
	PasswordSecret     string `mapstructure:"password_secret"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Complete reports whether every field needed to reach the relay is set.
func (c SMTPConfig) Complete() bool {
	return c.Host != "" && c.Port > 0 && c.Username != "" && c.Password != ""
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
}

// DispatchConfig holds bulk dispatch throttling
type DispatchConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// SchedulerConfig holds the daily birthday job settings
type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	BirthdaySpec string `mapstructure:"birthday_spec"`
	Timezone     string `mapstructure:"timezone"`
}

// TemplatesConfig points at an optional YAML file overriding built-in templates
type TemplatesConfig struct {
	File string `mapstructure:"file"`
}

// Load reads configuration from .env, file and environment variables
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/clinicmail")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CLINICMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindLegacyEnv accepts the plain EMAIL_* variables used by existing deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"email.smtp.host":     {"CLINICMAIL_EMAIL_SMTP_HOST", "EMAIL_HOST"},
		"email.smtp.port":     {"CLINICMAIL_EMAIL_SMTP_PORT", "EMAIL_PORT"},
		"email.smtp.secure":   {"CLINICMAIL_EMAIL_SMTP_SECURE", "EMAIL_SECURE"},
		"email.smtp.username": {"CLINICMAIL_EMAIL_SMTP_USERNAME", "EMAIL_USER"},
		"email.smtp.password": {"CLINICMAIL_EMAIL_SMTP_PASSWORD", "EMAIL_PASS", "EMAIL_PASSWORD"},
		"email.cc":            {"CLINICMAIL_EMAIL_CC", "EMAIL_CC"},
		"email.bcc":           {"CLINICMAIL_EMAIL_BCC", "EMAIL_BCC"},
		"server.port":         {"CLINICMAIL_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.max_upload_size", 10<<20)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.trusted_proxies", []string{})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "clinicmail")
	v.SetDefault("database.user", "clinicmail")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.limit", 10)
	v.SetDefault("security.rate_limiting.window", "1m")

	// Data defaults
	v.SetDefault("data.driver", DataDriverFile)
	v.SetDefault("data.dir", "data")

	// Storage defaults
	v.SetDefault("storage.driver", StorageDriverLocal)
	v.SetDefault("storage.local.dir", "uploads")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.force_path_style", false)

	// Email defaults. Relay fields stay empty: a missing field leaves the
	// transport unavailable instead of failing startup.
	v.SetDefault("email.provider", EmailProviderSMTP)
	v.SetDefault("email.sender_name", "Sistema de Pacientes")
	v.SetDefault("email.sender_address", "")
	v.SetDefault("email.timeout", "30s")
	v.SetDefault("email.cc", "")
	v.SetDefault("email.bcc", "")
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 0)
	v.SetDefault("email.smtp.secure", false)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.password_secret", "")
	v.SetDefault("email.smtp.insecure_skip_verify", false)
	v.SetDefault("email.gmail.credentials_json", "")
	v.SetDefault("email.gmail.client_id", "")
	v.SetDefault("email.gmail.client_secret", "")
	v.SetDefault("email.gmail.refresh_token", "")
	v.SetDefault("email.gmail.sender_address", "")

	// Dispatch defaults
	v.SetDefault("dispatch.batch_size", 5)
	v.SetDefault("dispatch.cooldown", "3s")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.birthday_spec", "0 9 * * *")
	v.SetDefault("scheduler.timezone", "America/Sao_Paulo")

	v.SetDefault("templates.file", "")
}
