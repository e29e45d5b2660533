package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks structural settings. Email relay fields are deliberately not
// validated here: an incomplete relay only disables sending.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("server.max_upload_size must be positive"))
	}

	if _, err := ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
	}

	if c.Security.RateLimiting.Enabled && (c.Security.RateLimiting.Limit <= 0 || c.Security.RateLimiting.Window <= 0) {
		errs = append(errs, errors.New("security.rate_limiting limit and window must be positive when enabled"))
	}

	switch c.Data.Driver {
	case DataDriverPostgres:
	case DataDriverFile:
		if c.Data.Dir == "" {
			errs = append(errs, errors.New("data.dir is required for the file driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.driver must be %q or %q", DataDriverPostgres, DataDriverFile))
	}

	switch c.Storage.Driver {
	case StorageDriverLocal:
		if c.Storage.Local.Dir == "" {
			errs = append(errs, errors.New("storage.local.dir is required"))
		}
	case StorageDriverS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
			errs = append(errs, errors.New("storage.s3.bucket and storage.s3.region are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q", StorageDriverLocal, StorageDriverS3))
	}

	if c.Email.Provider != EmailProviderSMTP && c.Email.Provider != EmailProviderGmail {
		errs = append(errs, fmt.Errorf("email.provider must be %q or %q", EmailProviderSMTP, EmailProviderGmail))
	}

	if c.Email.Timeout <= 0 {
		errs = append(errs, errors.New("email.timeout must be positive"))
	}

	if c.Dispatch.BatchSize <= 0 {
		errs = append(errs, errors.New("dispatch.batch_size must be positive"))
	}

	if c.Dispatch.Cooldown < 0 {
		errs = append(errs, errors.New("dispatch.cooldown must not be negative"))
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.BirthdaySpec == "" {
			errs = append(errs, errors.New("scheduler.birthday_spec is required when the scheduler is enabled"))
		}
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}

	return nil
}
