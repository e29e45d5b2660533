package middleware

import (
	"context"
	"net/netip"
	"time"

	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
)

// Counter is the windowed counter store behind rate limiting.
// *database.Redis satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Middleware holds all HTTP middleware
type Middleware struct {
	counter Counter
	log     *logger.Logger
	cfg     *config.Config
	trusted []netip.Prefix
}

// New creates a new Middleware instance. A nil counter disables rate limiting,
// which is the case when the service runs without Redis.
func New(counter Counter, log *logger.Logger, cfg *config.Config) *Middleware {
	m := &Middleware{
		counter: counter,
		log:     log.WithComponent("http"),
		cfg:     cfg,
	}
	if cfg != nil {
		trusted, err := config.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			m.log.Warn().Err(err).Msg("ignoring trusted proxies, forwarding headers will not be used")
		}
		m.trusted = trusted
	}
	return m
}
