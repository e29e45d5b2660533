package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/wneessen/go-mail"
)

// Mailer delivers messages through one mail provider
type Mailer interface {
	// Name identifies the provider in logs
	Name() string
	// Configured returns an error wrapping ErrTransportNotConfigured when
	// settings needed to reach the provider are missing
	Configured() error
	// Verify checks that the provider accepts our credentials
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg *Message) error
}

// NewMailer returns the mailer for cfg.Provider
func NewMailer(cfg config.EmailConfig, files *Files) Mailer {
	if cfg.Provider == config.EmailProviderGmail {
		return NewGmailMailer(cfg, files)
	}
	return NewSMTPMailer(cfg, files)
}

// buildMsg assembles the MIME message for msg, reading attachment contents
// through files.
func buildMsg(ctx context.Context, senderName, from string, msg *Message, files *Files) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(senderName, from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc list: %w", err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc list: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)

	for _, a := range msg.Attachments {
		data, err := readAttachment(ctx, files, a)
		if err != nil {
			return nil, err
		}
		if a.Inline() {
			err = m.EmbedReader(a.Filename, bytes.NewReader(data), mail.WithFileContentID(contentID(a.ContentID)))
		} else {
			err = m.AttachReader(a.Filename, bytes.NewReader(data))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
	}
	return m, nil
}

// contentID returns id in the <id> form RFC 2392 requires for cid: links.
func contentID(id string) string {
	return "<" + strings.Trim(strings.TrimSpace(id), "<>") + ">"
}

func readAttachment(ctx context.Context, files *Files, a Attachment) ([]byte, error) {
	rc, err := files.Open(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment %s: %w", a.Locator, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %s: %w", a.Locator, err)
	}
	return data, nil
}
