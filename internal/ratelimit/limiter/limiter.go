// Package limiter is the rate barrier: it caps authentication attempts per
// credential and per client IP.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strand/internal/ratelimit/store/bucket"
	strandmodels "strand/internal/strand/models"
)

// Store is a sliding-window counter.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (bucket.Result, error)
}

// Config bounds attempts inside Window. A zero IPLimit disables the per-IP
// check.
type Config struct {
	CredentialLimit int
	IPLimit         int
	Window          time.Duration
}

// DefaultConfig allows 10 attempts per credential and 100 per IP a minute.
func DefaultConfig() Config {
	return Config{CredentialLimit: 10, IPLimit: 100, Window: time.Minute}
}

type Limiter struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

func New(store Store, cfg Config, logger *slog.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, cfg: cfg, logger: logger}
}

// Allow consumes one attempt for the credential and, when known, the
// client IP. Both must have room.
func (l *Limiter) Allow(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (bool, error) {
	if l.cfg.CredentialLimit > 0 {
		res, err := l.store.AllowN(ctx, "cred:"+credentialID, 1, l.cfg.CredentialLimit, l.cfg.Window)
		if err != nil {
			return false, fmt.Errorf("credential rate limit: %w", err)
		}
		if !res.Allowed {
			l.logger.InfoContext(ctx, "credential rate limited", "credential_id", credentialID)
			return false, nil
		}
	}
	if l.cfg.IPLimit > 0 && authCtx.ClientIP != "" {
		res, err := l.store.AllowN(ctx, "ip:"+authCtx.ClientIP, 1, l.cfg.IPLimit, l.cfg.Window)
		if err != nil {
			return false, fmt.Errorf("ip rate limit: %w", err)
		}
		if !res.Allowed {
			l.logger.InfoContext(ctx, "client ip rate limited", "credential_id", credentialID)
			return false, nil
		}
	}
	return true, nil
}
