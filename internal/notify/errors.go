package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
)

// Dispatch errors
var (
	ErrTemplateNotFound       = errors.New("template not found")
	ErrNoRecipients           = errors.New("no recipients to send to")
	ErrTransportUnavailable   = errors.New("mail transport unavailable")
	ErrTransportNotConfigured = errors.New("mail transport is not configured")
)

// ErrorKind groups transport failures for operator-facing logs
type ErrorKind string

// Transport failure kinds
const (
	KindAuth       ErrorKind = "auth"
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindOther      ErrorKind = "other"
)

// Hint returns what an operator should check for this kind of failure
func (k ErrorKind) Hint() string {
	switch k {
	case KindAuth:
		return "check the relay username and password"
	case KindTimeout:
		return "check that the relay is reachable"
	case KindConnection:
		return "check the relay host and port"
	default:
		return ""
	}
}

// SendError is the failure of one recipient's send
type SendError struct {
	Recipient string
	Cause     ErrorKind
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed (%s): %v", e.Recipient, e.Cause, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Classify maps a transport error onto an ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535, 538:
			return KindAuth
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "auth"), strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "credentials"):
		return KindAuth
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "eof"):
		return KindConnection
	}
	return KindOther
}
