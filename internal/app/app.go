// Package app wires the configured stores, mail transport and services.
// The server and the standalone birthday job share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/database"
	"github.com/clinicmail/clinicmail/internal/handler"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/middleware"
	"github.com/clinicmail/clinicmail/internal/notify"
	"github.com/clinicmail/clinicmail/internal/repository"
	"github.com/clinicmail/clinicmail/internal/service"
	"github.com/clinicmail/clinicmail/internal/storage"
)

// App holds the wired components
type App struct {
	Config        *config.Config
	Log           *logger.Logger
	DB            *database.Postgres
	Redis         *database.Redis
	Transport     *notify.Transport
	Patients      *service.PatientService
	Notifications *service.NotificationService
	Copies        *service.CopyConfigService
}

// New resolves secrets, opens the stores selected by cfg.Data.Driver and
// builds the services. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg.Email.SMTP.PasswordSecret != "" {
		client, err := config.NewSecretsManagerClient(ctx)
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, cfg, client); err != nil {
			return nil, err
		}
		log.Info().Str("secret", cfg.Email.SMTP.PasswordSecret).Msg("SMTP credentials loaded from Secrets Manager")
	}

	a := &App{Config: cfg, Log: log}

	var (
		patients service.PatientStore
		copies   service.CopyConfigStore
		audit    service.AuditStore
	)

	switch cfg.Data.Driver {
	case config.DataDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		log.Info().Msg("connected to PostgreSQL")

		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.Redis = rdb
		log.Info().Msg("connected to Redis")

		patients = repository.NewPatientRepository(db)
		copies = repository.NewCopyConfigRepository(rdb)
		audit = repository.NewAuditRepository(db)

	case config.DataDriverFile:
		fileStore, err := repository.NewPatientFileRepository(cfg.Data.Dir, log)
		if err != nil {
			return nil, err
		}
		copyStore, err := repository.NewCopyConfigFileRepository(cfg.Data.Dir, log)
		if err != nil {
			return nil, err
		}
		patients, copies = fileStore, copyStore
		audit = repository.NewLogAuditRepository(log)
		log.Info().Str("dir", cfg.Data.Dir).Msg("using JSON file data store")

	default:
		return nil, fmt.Errorf("unknown data driver %q", cfg.Data.Driver)
	}

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open attachment storage: %w", err)
	}

	registry, err := notify.LoadRegistry(cfg.Templates.File)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	attachments := notify.NewFiles(notify.Assets(), files)
	a.Transport = notify.NewTransport(notify.NewMailer(cfg.Email, attachments), cfg.Email.Timeout, log)

	a.Copies = service.NewCopyConfigService(copies, cfg.Email, audit, log)
	renderer := notify.NewRenderer(registry, attachments, log)
	dispatcher := notify.NewDispatcher(cfg.Dispatch, registry, renderer, a.Transport, a.Copies, log)

	a.Patients = service.NewPatientService(patients, files, audit, log)
	a.Notifications = service.NewNotificationService(patients, dispatcher, registry, audit, log)

	return a, nil
}

// HealthChecks returns the dependency checks for /health and /ready
func (a *App) HealthChecks() []handler.HealthCheck {
	var checks []handler.HealthCheck
	if a.DB != nil {
		checks = append(checks, handler.HealthCheck{Name: "postgres", Check: a.DB.HealthCheck})
	}
	if a.Redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: a.Redis.HealthCheck})
	}
	return checks
}

// RateCounter returns the rate limit counter, or nil without Redis
func (a *App) RateCounter() middleware.Counter {
	if a.Redis == nil {
		return nil
	}
	return a.Redis
}

// Close releases database connections
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
