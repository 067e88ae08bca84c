package vauth

import (
	"context"
	"time"

	"go.velum.dev/vauth/domain"
	applog "go.velum.dev/vauth/log"
)

// Sweeper periodically deletes expired authorization codes, tokens, device
// authorizations and pushed requests. Backends with native TTL eviction make
// the corresponding sweep a no-op; running it anyway is harmless.
type Sweeper struct {
	codes    domain.AuthorizationCodeRepository
	tokens   domain.TokenRepository
	devices  domain.DeviceAuthorizationRepository
	par      *PARService
	interval time.Duration
	logger   applog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(codes domain.AuthorizationCodeRepository, tokens domain.TokenRepository, devices domain.DeviceAuthorizationRepository, par *PARService, interval time.Duration, logger applog.Logger) *Sweeper {
	return &Sweeper{
		codes:    codes,
		tokens:   tokens,
		devices:  devices,
		par:      par,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. A failed sweep
// is logged and retried on the next tick; it never stops the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.codes.DeleteExpiredAuthCodes(ctx); err != nil {
		s.logger.Warn(ctx, "failed to sweep expired authorization codes", map[string]any{"error": err.Error()})
	}
	if err := s.tokens.DeleteExpiredTokens(ctx); err != nil {
		s.logger.Warn(ctx, "failed to sweep expired tokens", map[string]any{"error": err.Error()})
	}
	if err := s.devices.DeleteExpiredDeviceAuths(ctx); err != nil {
		s.logger.Warn(ctx, "failed to sweep expired device authorizations", map[string]any{"error": err.Error()})
	}
	if err := s.par.RemoveExpired(ctx); err != nil {
		s.logger.Warn(ctx, "failed to sweep expired pushed requests", map[string]any{"error": err.Error()})
	}
}
