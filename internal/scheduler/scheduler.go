// Package scheduler runs the daily birthday dispatch inside the server process.
package scheduler

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/robfig/cron/v3"
)

// BirthdaySender sends the birthday template to the patients born on now's day and month
type BirthdaySender interface {
	SendBirthdays(ctx context.Context, now time.Time) (*model.DispatchSummary, error)
}

// Scheduler triggers the birthday job on a cron expression evaluated in the
// clinic's timezone.
type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	sender BirthdaySender
	loc    *time.Location
	log    *logger.Logger
	now    func() time.Time
}

// New creates a Scheduler for cfg. The job is registered but not started.
func New(cfg config.SchedulerConfig, sender BirthdaySender, log *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler timezone %q: %w", cfg.Timezone, err)
	}

	l := log.WithComponent("scheduler")
	cl := cronLogger{log: l}
	s := &Scheduler{
		sender: sender,
		loc:    loc,
		log:    l,
		now:    time.Now,
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s.entry, err = s.cron.AddFunc(cfg.BirthdaySpec, s.runBirthdays)
	if err != nil {
		return nil, fmt.Errorf("invalid birthday schedule %q: %w", cfg.BirthdaySpec, err)
	}
	return s, nil
}

// Start runs the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Time("next_run", s.Next()).Msg("birthday job scheduled")
}

// Stop stops scheduling and waits for a running job until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("birthday job still running: %w", ctx.Err())
	}
}

// Next returns the next activation time, or the zero time before Start
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunOnce sends today's birthday messages, with today taken in the
// scheduler's timezone.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.DispatchSummary, error) {
	return s.RunAt(ctx, s.now())
}

// RunAt sends the birthday messages for the clinic-local day containing t
func (s *Scheduler) RunAt(ctx context.Context, t time.Time) (*model.DispatchSummary, error) {
	now := t.In(s.loc)
	summary, err := s.sender.SendBirthdays(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("birthday dispatch failed: %w", err)
	}

	s.log.Info().
		Str("date", now.Format(model.BirthDateLayout)).
		Int("total", summary.Total).
		Int("succeeded", summary.SucceededCount).
		Int("failed", summary.FailedCount).
		Msg("birthday job finished")
	return summary, nil
}

func (s *Scheduler) runBirthdays() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("birthday job failed")
	}
}

// cronLogger adapts the zerolog wrapper to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
