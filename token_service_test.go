package vauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.velum.dev/vauth/cache"
	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	"go.velum.dev/vauth/internal/memstore"
	"go.velum.dev/vauth/log"
)

func newTokenService() (*TokenService, cache.TokenStore) {
	tokenCache := cache.NewMemoryTokenStore(time.Hour)
	svc := NewTokenService(memstore.NewTokenStore(), tokenCache, log.NewNopLogger())
	return svc, tokenCache
}

func TestGenerateAccessRefreshTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService()

	resp, err := svc.GenerateAccessRefreshTokens(ctx, "client-1", "user-1", "openid profile", time.Hour)
	assert.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEqual(t, resp.AccessToken, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "openid profile", resp.Scope)

	access, err := svc.GetAccessToken(ctx, resp.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, domain.TokenTypeAccess, access.TokenType)
	assert.Equal(t, "user-1", access.UserID)
	assert.False(t, access.ExpiresAt.IsZero())

	refresh, err := svc.GetRefreshToken(ctx, resp.RefreshToken)
	assert.NoError(t, err)
	assert.Equal(t, domain.TokenTypeRefresh, refresh.TokenType)
	// Refresh tokens carry no expiry; their lifecycle ends in revocation.
	assert.True(t, refresh.ExpiresAt.IsZero())
}

func TestGetAccessToken_FallsThroughCacheMiss(t *testing.T) {
	ctx := context.Background()
	svc, tokenCache := newTokenService()

	resp, err := svc.GenerateAccessToken(ctx, "client-1", "user-1", "openid", time.Hour)
	assert.NoError(t, err)

	// Drop the cache; the lookup must still succeed from the repository and
	// re-populate the cache.
	assert.NoError(t, tokenCache.Clear(ctx))
	assert.Equal(t, 0, tokenCache.Count(ctx))

	token, err := svc.GetAccessToken(ctx, resp.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", token.UserID)
	assert.Equal(t, 1, tokenCache.Count(ctx))
}

func TestRevokeAccessToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService()

	resp, err := svc.GenerateAccessToken(ctx, "client-1", "user-1", "openid", time.Hour)
	assert.NoError(t, err)

	assert.NoError(t, svc.RevokeAccessToken(ctx, resp.AccessToken))

	// A revoked token is indistinguishable from one that never existed.
	_, err = svc.GetAccessToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)

	_, err = svc.ValidateAccessToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService()

	resp, err := svc.GenerateAccessRefreshTokens(ctx, "client-1", "user-1", "openid", time.Hour)
	assert.NoError(t, err)

	assert.NoError(t, svc.RevokeRefreshToken(ctx, resp.RefreshToken))

	_, err = svc.GetRefreshToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)

	// The bound access token is untouched; revocation is per token.
	_, err = svc.GetAccessToken(ctx, resp.AccessToken)
	assert.NoError(t, err)
}

func TestRevoke_UnknownTokenSucceeds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService()

	assert.NoError(t, svc.RevokeAccessToken(ctx, "never-issued"))
	assert.NoError(t, svc.RevokeRefreshToken(ctx, "never-issued"))
}

func TestUpdateRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService()

	resp, err := svc.GenerateAccessRefreshTokens(ctx, "client-1", "user-1", "openid profile email", time.Hour)
	assert.NoError(t, err)

	assert.NoError(t, svc.UpdateRefreshToken(ctx, resp.RefreshToken, "openid"))

	refresh, err := svc.GetRefreshToken(ctx, resp.RefreshToken)
	assert.NoError(t, err)
	assert.Equal(t, "openid", refresh.Scope)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService()

	resp, err := svc.GenerateAccessToken(ctx, "client-1", "user-1", "openid", time.Millisecond)
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.ValidateAccessToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
}
