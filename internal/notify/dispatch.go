package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"golang.org/x/sync/errgroup"
)

// Default throttling of bulk sends
const (
	DefaultBatchSize = 5
	DefaultCooldown  = 3 * time.Second
)

// MessageRenderer builds the message for one patient
type MessageRenderer interface {
	Render(ctx context.Context, patient *model.Patient, templateID string, overrides model.RecipientOverrides) (*Message, error)
}

// MessageSender delivers rendered messages
type MessageSender interface {
	EnsureReady(ctx context.Context) bool
	SendOne(ctx context.Context, msg *Message) bool
}

// CopySource provides the copy recipients in effect for a dispatch
type CopySource interface {
	Overrides(ctx context.Context) (model.RecipientOverrides, error)
}

// Dispatcher sends a template to many patients in throttled groups
type Dispatcher struct {
	registry  *Registry
	renderer  MessageRenderer
	sender    MessageSender
	copies    CopySource
	batchSize int
	cooldown  time.Duration
	sleep     func(time.Duration)
	log       *logger.Logger
}

// NewDispatcher creates a new Dispatcher. copies may be nil.
func NewDispatcher(cfg config.DispatchConfig, registry *Registry, renderer MessageRenderer, sender MessageSender, copies CopySource, log *logger.Logger) *Dispatcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cooldown := cfg.Cooldown
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &Dispatcher{
		registry:  registry,
		renderer:  renderer,
		sender:    sender,
		copies:    copies,
		batchSize: batchSize,
		cooldown:  cooldown,
		sleep:     time.Sleep,
		log:       log.WithComponent("dispatcher"),
	}
}

// Estimate returns the longest a dispatch to n patients can take: one
// verification, every group hitting the send timeout, and the cooldowns
// between groups.
func (d *Dispatcher) Estimate(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	timeout := DefaultTimeout
	if ts, ok := d.sender.(interface{ Timeout() time.Duration }); ok {
		timeout = ts.Timeout()
	}
	groups := (n + d.batchSize - 1) / d.batchSize
	return time.Duration(groups+1)*timeout + time.Duration(groups-1)*d.cooldown
}

// DispatchBulk sends templateID to every patient. Patients are processed in
// groups of the batch size: sends inside a group run concurrently, groups run
// one after another with a cooldown in between. Outcomes follow the order of
// patients. Individual failures are reported in the summary, never as an
// error; the only errors are an empty patient list and an unknown template.
//
// Cancelling ctx does not stop a dispatch that has started.
func (d *Dispatcher) DispatchBulk(ctx context.Context, patients []*model.Patient, templateID string) (*model.DispatchSummary, error) {
	if len(patients) == 0 {
		return nil, ErrNoRecipients
	}
	if !d.registry.Has(templateID) {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}

	ctx = context.WithoutCancel(ctx)
	outcomes := make([]model.DispatchOutcome, len(patients))

	if !d.sender.EnsureReady(ctx) {
		d.log.Warn().
			Str("template", templateID).
			Int("total", len(patients)).
			Msg("email service unavailable, failing every recipient")
		for i, p := range patients {
			outcomes[i] = outcomeFor(p, false)
		}
		return model.NewDispatchSummary(outcomes), nil
	}

	overrides := d.overrides(ctx)
	groups := (len(patients) + d.batchSize - 1) / d.batchSize

	for g := 0; g < groups; g++ {
		if g > 0 && d.cooldown > 0 {
			d.sleep(d.cooldown)
		}

		start := g * d.batchSize
		end := min(start+d.batchSize, len(patients))
		d.log.Info().
			Str("template", templateID).
			Int("group", g+1).
			Int("groups", groups).
			Int("size", end-start).
			Msg("processing group")

		var eg errgroup.Group
		for i := start; i < end; i++ {
			eg.Go(func() error {
				outcomes[i] = outcomeFor(patients[i], d.deliver(ctx, patients[i], templateID, overrides))
				return nil
			})
		}
		_ = eg.Wait()
	}

	summary := model.NewDispatchSummary(outcomes)
	d.log.Info().
		Str("template", templateID).
		Int("total", summary.Total).
		Int("succeeded", summary.SucceededCount).
		Int("failed", summary.FailedCount).
		Msg("bulk dispatch finished")
	return summary, nil
}

// SendOne renders and sends templateID to a single patient
func (d *Dispatcher) SendOne(ctx context.Context, patient *model.Patient, templateID string) (bool, error) {
	if !d.registry.Has(templateID) {
		return false, fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}
	ctx = context.WithoutCancel(ctx)
	return d.deliver(ctx, patient, templateID, d.overrides(ctx)), nil
}

func (d *Dispatcher) deliver(ctx context.Context, patient *model.Patient, templateID string, overrides model.RecipientOverrides) bool {
	if patient == nil {
		return false
	}
	msg, err := d.renderer.Render(ctx, patient, templateID, overrides)
	if err != nil {
		d.log.Error().Err(err).Str("patient_id", patient.ID).Str("template", templateID).Msg("failed to render message")
		return false
	}
	return d.sender.SendOne(ctx, msg)
}

func (d *Dispatcher) overrides(ctx context.Context) model.RecipientOverrides {
	if d.copies == nil {
		return model.RecipientOverrides{}
	}
	// on error the source still returns whatever it could resolve
	o, err := d.copies.Overrides(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to load stored copy recipients")
	}
	return o
}

func outcomeFor(p *model.Patient, ok bool) model.DispatchOutcome {
	if p == nil {
		return model.DispatchOutcome{Success: false}
	}
	return model.DispatchOutcome{PatientID: p.ID, Email: p.Email, Success: ok}
}
