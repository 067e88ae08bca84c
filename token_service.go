package vauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.velum.dev/vauth/cache"
	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// TokenManager issues, looks up, rotates and revokes access/refresh tokens.
// Implementations own the backing store exclusively; the engine never holds
// tokens beyond the current flow.
type TokenManager interface {
	GenerateAccessRefreshTokens(ctx context.Context, clientID, userID, scope string, accessTTL time.Duration) (*TokenResponse, error)
	GenerateAccessToken(ctx context.Context, clientID, userID, scope string, accessTTL time.Duration) (*TokenResponse, error)
	GetAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error)
	GetRefreshToken(ctx context.Context, tokenValue string) (*domain.Token, error)
	// UpdateRefreshToken replaces the scope of an existing refresh token in
	// place, used when a refresh grant narrows scope. Escalation beyond the
	// token's original scope is rejected by the grant orchestrator, not here.
	UpdateRefreshToken(ctx context.Context, tokenValue, scope string) error
	// Revocation is idempotent; revoking an unknown token string is not an error.
	RevokeAccessToken(ctx context.Context, tokenValue string) error
	RevokeRefreshToken(ctx context.Context, tokenValue string) error
}

// TokenService is the default TokenManager over a TokenRepository, with a
// cache-aside layer for access token lookups.
type TokenService struct {
	repo   domain.TokenRepository
	cache  cache.TokenStore
	logger applog.Logger
}

// NewTokenService creates a TokenService instance.
func NewTokenService(repo domain.TokenRepository, tokenCache cache.TokenStore, logger applog.Logger) *TokenService {
	return &TokenService{
		repo:   repo,
		cache:  tokenCache,
		logger: logger,
	}
}

// GenerateAccessRefreshTokens mints a bound access/refresh token pair. The
// refresh token carries no expiry; its lifecycle ends only in revocation.
func (s *TokenService) GenerateAccessRefreshTokens(ctx context.Context, clientID, userID, scope string, accessTTL time.Duration) (*TokenResponse, error) {
	accessToken, err := s.mintToken(ctx, domain.TokenTypeAccess, clientID, userID, scope, accessTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.mintToken(ctx, domain.TokenTypeRefresh, clientID, userID, scope, 0)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken.TokenValue,
		TokenType:    "Bearer",
		ExpiresIn:    int(accessTTL.Seconds()),
		RefreshToken: refreshToken.TokenValue,
		Scope:        scope,
	}, nil
}

// GenerateAccessToken issues an access token without rotating a refresh token,
// for the client-credentials grant and refresh exchanges.
func (s *TokenService) GenerateAccessToken(ctx context.Context, clientID, userID, scope string, accessTTL time.Duration) (*TokenResponse, error) {
	accessToken, err := s.mintToken(ctx, domain.TokenTypeAccess, clientID, userID, scope, accessTTL)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: accessToken.TokenValue,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessTTL.Seconds()),
		Scope:       scope,
	}, nil
}

func (s *TokenService) mintToken(ctx context.Context, tokenType, clientID, userID, scope string, ttl time.Duration) (*domain.Token, error) {
	value, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", tokenType, err)
	}

	now := time.Now().UTC()
	token := &domain.Token{
		ID:         uuid.NewString(),
		TokenType:  tokenType,
		TokenValue: value,
		ClientID:   clientID,
		UserID:     userID,
		Scope:      scope,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if ttl > 0 {
		token.ExpiresAt = now.Add(ttl)
	}

	if err := s.repo.StoreToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", tokenType, err)
	}

	if tokenType == domain.TokenTypeAccess {
		if err := s.cache.Set(ctx, cache.NewTokenEntry(token)); err != nil {
			s.logger.Warn(ctx, "failed to cache access token", map[string]any{"error": err.Error()})
		}
	}

	return token, nil
}

// GetAccessToken looks up an access token by its opaque value. A cache hit
// skips the repository; a miss falls through.
func (s *TokenService) GetAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	if entry, err := s.cache.Get(ctx, tokenValue); err == nil {
		return entry.Token(), nil
	}

	token, err := s.repo.GetAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cache.NewTokenEntry(token)); err != nil {
		s.logger.Warn(ctx, "failed to cache access token", map[string]any{"error": err.Error()})
	}

	return token, nil
}

// GetRefreshToken looks up a refresh token by its opaque value. Refresh tokens
// are never cached: rotation and revocation must always see the store.
func (s *TokenService) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return s.repo.GetRefreshToken(ctx, tokenValue)
}

// ValidateAccessToken returns the token when it exists and is not expired.
func (s *TokenService) ValidateAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	token, err := s.GetAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if token.Expired(time.Now().UTC()) {
		return nil, serrors.ErrTokenNotFound
	}
	return token, nil
}

// UpdateRefreshToken replaces the scope set of a stored refresh token.
func (s *TokenService) UpdateRefreshToken(ctx context.Context, tokenValue, scope string) error {
	return s.repo.UpdateRefreshTokenScope(ctx, tokenValue, scope)
}

// RevokeAccessToken removes the token from cache and store. Unknown values
// succeed silently.
func (s *TokenService) RevokeAccessToken(ctx context.Context, tokenValue string) error {
	if err := s.cache.Delete(ctx, tokenValue); err != nil {
		s.logger.Warn(ctx, "failed to evict access token from cache", map[string]any{"error": err.Error()})
	}
	return s.revoke(ctx, tokenValue)
}

// RevokeRefreshToken removes the refresh token from the store. After
// revocation a lookup of the same value misses.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, tokenValue string) error {
	return s.revoke(ctx, tokenValue)
}

func (s *TokenService) revoke(ctx context.Context, tokenValue string) error {
	err := s.repo.RevokeToken(ctx, tokenValue)
	if err != nil && !errors.Is(err, serrors.ErrTokenNotFound) {
		return err
	}
	return nil
}
