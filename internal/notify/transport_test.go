package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	configErr error

	mu        sync.Mutex
	verifyErr error
	sendErr   error
	sent      []*Message

	verifies    atomic.Int32
	verifyGate  chan struct{}
	verifyDelay time.Duration
	deadline    atomic.Bool
}

func (f *fakeMailer) Name() string      { return "fake" }
func (f *fakeMailer) Configured() error { return f.configErr }

func (f *fakeMailer) Verify(ctx context.Context) error {
	f.verifies.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}
	if f.verifyGate != nil {
		<-f.verifyGate
	}
	if f.verifyDelay > 0 {
		select {
		case <-time.After(f.verifyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyErr
}

func (f *fakeMailer) Send(ctx context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) setVerifyErr(err error) {
	f.mu.Lock()
	f.verifyErr = err
	f.mu.Unlock()
}

func TestTransport_NotConfigured(t *testing.T) {
	m := &fakeMailer{configErr: fmt.Errorf("%w: missing smtp host", ErrTransportNotConfigured)}
	tr := NewTransport(m, time.Second, logger.Nop())

	assert.Equal(t, StateUnavailable, tr.State())
	assert.False(t, tr.Configured())
	assert.False(t, tr.EnsureReady(context.Background()))
	assert.False(t, tr.SendOne(context.Background(), &Message{To: "a@x.com"}))
	assert.Equal(t, int32(0), m.verifies.Load(), "an unconfigured transport never verifies")
	assert.Empty(t, m.sent)
}

func TestTransport_VerifiesOnFirstUse(t *testing.T) {
	m := &fakeMailer{}
	tr := NewTransport(m, time.Second, logger.Nop())
	assert.Equal(t, StateUninitialized, tr.State())

	assert.True(t, tr.EnsureReady(context.Background()))
	assert.True(t, tr.Available())
	assert.True(t, m.deadline.Load(), "verification runs under a timeout")

	assert.True(t, tr.EnsureReady(context.Background()))
	assert.Equal(t, int32(1), m.verifies.Load(), "an available transport is not verified again")
}

func TestTransport_ConcurrentCallersShareVerification(t *testing.T) {
	m := &fakeMailer{verifyGate: make(chan struct{})}
	tr := NewTransport(m, time.Second, logger.Nop())

	const callers = 10
	results := make(chan bool, callers)
	for range callers {
		go func() { results <- tr.EnsureReady(context.Background()) }()
	}

	require.Eventually(t, func() bool { return tr.State() == StateProbing }, time.Second, time.Millisecond)
	// give the remaining callers time to join the in-flight verification
	time.Sleep(50 * time.Millisecond)
	close(m.verifyGate)

	for range callers {
		assert.True(t, <-results)
	}
	assert.Equal(t, int32(1), m.verifies.Load())
}

func TestTransport_ReverifiesWhenUnavailable(t *testing.T) {
	m := &fakeMailer{verifyErr: errors.New("connection refused")}
	tr := NewTransport(m, time.Second, logger.Nop())

	assert.False(t, tr.EnsureReady(context.Background()))
	assert.Equal(t, StateUnavailable, tr.State())

	m.setVerifyErr(nil)
	assert.True(t, tr.SendOne(context.Background(), &Message{To: "a@x.com"}))
	assert.Equal(t, int32(2), m.verifies.Load())
	assert.Equal(t, StateAvailable, tr.State())
	assert.Len(t, m.sent, 1)
}

func TestTransport_VerifyTimeout(t *testing.T) {
	m := &fakeMailer{verifyDelay: time.Second}
	tr := NewTransport(m, 20*time.Millisecond, logger.Nop())

	start := time.Now()
	assert.False(t, tr.EnsureReady(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StateUnavailable, tr.State())
}

func TestTransport_SendFailureIsNotRetried(t *testing.T) {
	m := &fakeMailer{sendErr: errors.New("550 mailbox unavailable")}
	tr := NewTransport(m, time.Second, logger.Nop())

	assert.False(t, tr.SendOne(context.Background(), &Message{To: "a@x.com"}))
	assert.Empty(t, m.sent)
	assert.Equal(t, StateAvailable, tr.State(), "a rejected message does not mark the relay down")
}

func TestNewTransport_DefaultTimeout(t *testing.T) {
	tr := NewTransport(&fakeMailer{}, 0, logger.Nop())
	assert.Equal(t, DefaultTimeout, tr.timeout)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"smtp 535", fmt.Errorf("smtp send: %w", &textproto.Error{Code: 535, Msg: "bad credentials"}), KindAuth},
		{"auth message", errors.New("failed to authenticate: auth rejected"), KindAuth},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "smtp.invalid"}, KindConnection},
		{"other", errors.New("550 mailbox unavailable"), KindOther},
		{"nil", nil, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSendError(t *testing.T) {
	cause := errors.New("boom")
	err := &SendError{Recipient: "a@x.com", Cause: KindOther, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "a@x.com")
}
