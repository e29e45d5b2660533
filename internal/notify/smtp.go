package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/wneessen/go-mail"
)

// SMTPMailer sends through an SMTP relay, dialing once per message
type SMTPMailer struct {
	cfg        config.SMTPConfig
	senderName string
	from       string
	timeout    time.Duration
	files      *Files
}

// NewSMTPMailer creates a new SMTPMailer
func NewSMTPMailer(cfg config.EmailConfig, files *Files) *SMTPMailer {
	return &SMTPMailer{
		cfg:        cfg.SMTP,
		senderName: cfg.SenderName,
		from:       cfg.From(),
		timeout:    cfg.Timeout,
		files:      files,
	}
}

// Name implements Mailer
func (s *SMTPMailer) Name() string {
	return "smtp"
}

// Configured implements Mailer
func (s *SMTPMailer) Configured() error {
	var missing []string
	if s.cfg.Host == "" {
		missing = append(missing, "host")
	}
	if s.cfg.Port <= 0 {
		missing = append(missing, "port")
	}
	if s.cfg.Username == "" {
		missing = append(missing, "username")
	}
	if s.cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing smtp %s", ErrTransportNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

func (s *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}),
	}
	if s.timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.timeout))
	}
	if s.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return c, nil
}

// Verify connects and authenticates without sending anything
func (s *SMTPMailer) Verify(ctx context.Context) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}
	return c.Close()
}

// Send implements Mailer
func (s *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	m, err := buildMsg(ctx, s.senderName, s.from, msg, s.files)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
