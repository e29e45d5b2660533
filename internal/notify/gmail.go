package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/clinicmail/clinicmail/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailMailer sends through the Gmail API, either as a service account with
// domain-wide delegation or with an OAuth2 refresh token.
type GmailMailer struct {
	cfg        config.GmailEmailConfig
	senderName string
	from       string
	files      *Files

	// endpoint is the OAuth2 token endpoint for refresh-token credentials
	endpoint oauth2.Endpoint
	// httpClient bounds every token and API request
	httpClient *http.Client

	once        sync.Once
	tokenSource func(ctx context.Context) oauth2.TokenSource
	service     *gmail.Service
	setupErr    error
}

// NewGmailMailer creates a new GmailMailer. Credentials are parsed lazily.
func NewGmailMailer(cfg config.EmailConfig, files *Files) *GmailMailer {
	return &GmailMailer{
		cfg:        cfg.Gmail,
		senderName: cfg.SenderName,
		from:       cfg.From(),
		files:      files,
		endpoint:   google.Endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Name implements Mailer
func (g *GmailMailer) Name() string {
	return "gmail"
}

// Configured implements Mailer
func (g *GmailMailer) Configured() error {
	if g.from == "" {
		return fmt.Errorf("%w: missing gmail sender address", ErrTransportNotConfigured)
	}
	if g.cfg.CredentialsJSON == "" && (g.cfg.ClientID == "" || g.cfg.ClientSecret == "" || g.cfg.RefreshToken == "") {
		return fmt.Errorf("%w: gmail needs credentials JSON or client id, secret and refresh token", ErrTransportNotConfigured)
	}
	return nil
}

func (g *GmailMailer) setup() error {
	g.once.Do(func() {
		if g.cfg.CredentialsJSON != "" {
			jwtConfig, err := google.JWTConfigFromJSON([]byte(g.cfg.CredentialsJSON), gmail.GmailSendScope)
			if err != nil {
				g.setupErr = fmt.Errorf("gmail: failed to parse credentials: %w", err)
				return
			}
			// impersonate the sender mailbox
			jwtConfig.Subject = g.from
			g.tokenSource = jwtConfig.TokenSource
		} else {
			oauthCfg := &oauth2.Config{
				ClientID:     g.cfg.ClientID,
				ClientSecret: g.cfg.ClientSecret,
				Endpoint:     g.endpoint,
				Scopes:       []string{gmail.GmailSendScope},
			}
			g.tokenSource = func(ctx context.Context) oauth2.TokenSource {
				return oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: g.cfg.RefreshToken})
			}
		}

		ctx := g.clientContext(context.Background())
		svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, g.tokenSource(ctx))))
		if err != nil {
			g.setupErr = fmt.Errorf("gmail: failed to create service: %w", err)
			return
		}
		g.service = svc
	})
	return g.setupErr
}

// clientContext makes oauth2 use the bounded client for token requests.
func (g *GmailMailer) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// Verify fetches a fresh access token, which proves the credentials work.
// The token request is bound to ctx and ends with it.
func (g *GmailMailer) Verify(ctx context.Context) error {
	if err := g.setup(); err != nil {
		return err
	}
	if _, err := g.tokenSource(g.clientContext(ctx)).Token(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("gmail: auth check: %w", ctxErr)
		}
		return fmt.Errorf("gmail: auth failed: %w", err)
	}
	return nil
}

// Send implements Mailer
func (g *GmailMailer) Send(ctx context.Context, msg *Message) error {
	if err := g.setup(); err != nil {
		return err
	}

	m, err := buildMsg(ctx, g.senderName, g.from, msg, g.files)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("gmail: failed to encode message: %w", err)
	}
	raw := withBccHeader(buf.Bytes(), msg.Bcc)

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}
	if _, err := g.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}

// withBccHeader makes sure the raw message names its blind copies; Gmail
// reads them from the header and strips it before delivery.
func withBccHeader(raw []byte, bcc []string) []byte {
	if len(bcc) == 0 {
		return raw
	}
	headers, _, found := bytes.Cut(raw, []byte("\r\n\r\n"))
	if !found {
		headers = raw
	}
	for _, line := range bytes.Split(headers, []byte("\r\n")) {
		if bytes.HasPrefix(bytes.ToLower(line), []byte("bcc:")) {
			return raw
		}
	}
	header := "Bcc: " + strings.Join(bcc, ", ") + "\r\n"
	return append([]byte(header), raw...)
}

