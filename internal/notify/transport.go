package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clinicmail/clinicmail/internal/logger"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds every verification and send when none is configured
const DefaultTimeout = 30 * time.Second

// State is the transport's availability
type State int

// Transport states
const (
	StateUninitialized State = iota
	StateProbing
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProbing:
		return "probing"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Transport wraps a Mailer with availability tracking. A transport whose
// mailer is not configured stays unavailable for its whole life; otherwise
// it verifies the mailer on first use and again whenever a send finds it unavailable.
// Sends are never retried.
type Transport struct {
	mailer  Mailer
	timeout time.Duration
	log     *logger.Logger

	mu        sync.Mutex
	state     State
	configErr error
	inflight  singleflight.Group
}

// NewTransport creates a new Transport
func NewTransport(mailer Mailer, timeout time.Duration, log *logger.Logger) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Transport{
		mailer:  mailer,
		timeout: timeout,
		log:     &logger.Logger{Logger: log.WithComponent("transport").With().Str("provider", mailer.Name()).Logger()},
	}
	if err := mailer.Configured(); err != nil {
		t.configErr = err
		t.state = StateUnavailable
		t.log.Warn().Err(err).Msg("email settings incomplete, sending is disabled")
	}
	return t
}

// State returns the current availability state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Timeout bounds each verification and send
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// Available reports whether the last verification succeeded
func (t *Transport) Available() bool {
	return t.State() == StateAvailable
}

// Configured reports whether the mailer has every setting it needs
func (t *Transport) Configured() bool {
	return t.configErr == nil
}

// EnsureReady verifies the mailer unless it is already known to be available.
// Concurrent callers share a single in-flight verification.
func (t *Transport) EnsureReady(ctx context.Context) bool {
	if t.configErr != nil {
		return false
	}

	t.mu.Lock()
	if t.state == StateAvailable {
		t.mu.Unlock()
		return true
	}
	t.mu.Unlock()

	// a caller going away must not fail the verification for the others sharing it
	verifyCtx := context.WithoutCancel(ctx)
	v, _, _ := t.inflight.Do("verify", func() (any, error) {
		return t.verify(verifyCtx), nil
	})
	return v.(bool)
}

func (t *Transport) verify(ctx context.Context) bool {
	t.setState(StateProbing)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	if err := t.mailer.Verify(ctx); err != nil {
		kind := Classify(err)
		t.setState(StateUnavailable)
		t.log.Error().
			Err(err).
			Str("cause", string(kind)).
			Str("hint", kind.Hint()).
			Dur("duration", time.Since(start)).
			Msg("email service could not be verified")
		return false
	}

	t.setState(StateAvailable)
	t.log.Info().Dur("duration", time.Since(start)).Msg("email service ready")
	return true
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// SendOne delivers msg, reporting only success or failure. Failures are
// logged with their classified cause.
func (t *Transport) SendOne(ctx context.Context, msg *Message) bool {
	if !t.EnsureReady(ctx) {
		t.log.Warn().
			Err(t.unavailableErr()).
			Str("patient_id", msg.PatientID).
			Str("to", msg.To).
			Msg("cannot send email, service unavailable")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	if err := t.mailer.Send(ctx, msg); err != nil {
		sendErr := &SendError{Recipient: msg.To, Cause: Classify(err), Err: err}
		t.log.Error().
			Err(sendErr).
			Str("patient_id", msg.PatientID).
			Str("cause", string(sendErr.Cause)).
			Str("hint", sendErr.Cause.Hint()).
			Dur("duration", time.Since(start)).
			Msg("email send failed")
		return false
	}

	t.log.Info().
		Str("patient_id", msg.PatientID).
		Str("to", msg.To).
		Int("cc", len(msg.Cc)).
		Int("bcc", len(msg.Bcc)).
		Int("attachments", len(msg.Attachments)).
		Dur("duration", time.Since(start)).
		Msg("email sent")
	return true
}

func (t *Transport) unavailableErr() error {
	if t.configErr != nil {
		return errors.Join(ErrTransportUnavailable, t.configErr)
	}
	return ErrTransportUnavailable
}
