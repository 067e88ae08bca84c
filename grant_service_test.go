package vauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.velum.dev/vauth/cache"
	"go.velum.dev/vauth/client"
	serrors "go.velum.dev/vauth/errors"
	"go.velum.dev/vauth/internal/memstore"
	"go.velum.dev/vauth/log"
)

type grantFixture struct {
	grants    *GrantService
	authorize *AuthorizeService
	devices   *DeviceCodeService
	clients   *client.MemoryStore
}

func newGrantFixture(t *testing.T) *grantFixture {
	t.Helper()

	logger := log.NewNopLogger()
	clients := client.NewMemoryStore()
	extensions := NewExtensionManager(logger)

	codes := NewCodeService(memstore.NewAuthCodeStore(), 10*time.Minute, logger)
	tokens := NewTokenService(memstore.NewTokenStore(), cache.NewMemoryTokenStore(time.Hour), logger)
	devices := NewDeviceCodeService(memstore.NewDeviceAuthStore(), 15*time.Minute, 5, logger)
	par := NewPARService(cache.NewMemoryPARStore(), time.Minute, 4096, logger)

	return &grantFixture{
		grants:    NewGrantService(clients, codes, tokens, devices, extensions, time.Hour, "https://auth.example.com/device", logger),
		authorize: NewAuthorizeService(codes, par, clients, extensions, logger),
		devices:   devices,
		clients:   clients,
	}
}

// issueCode drives the authorize flow to a real code bound to user-1.
func (f *grantFixture) issueCode(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	reqObj, err := f.authorize.Authorize(ctx, validAuthorizeRequest())
	assert.NoError(t, err)

	resp, err := f.authorize.Grant(ctx, reqObj, "user-1")
	assert.NoError(t, err)
	return resp.Code
}

func TestExchange_AuthorizationCode(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)
	code := f.issueCode(t)

	resp, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("v", 43),
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "openid profile", resp.Scope)
}

func TestExchange_AuthorizationCodeDoubleSpend(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)
	code := f.issueCode(t)

	req := &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("v", 43),
	}

	_, err := f.grants.Exchange(context.Background(), req)
	assert.NoError(t, err)

	_, err = f.grants.Exchange(context.Background(), req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "used")
}

func TestExchange_WrongVerifierRejected(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)
	code := f.issueCode(t)

	_, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("w", 43),
	})
	assert.Error(t, err)

	// A failed PKCE check must not consume the code.
	resp, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("v", 43),
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestExchange_BadClientSecret(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	_, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         "irrelevant",
		ClientID:     "client-1",
		ClientSecret: "wrong",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestExchange_UnsupportedGrantType(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	_, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    "password",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized_client")
}

func TestExchange_RefreshToken(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)
	code := f.issueCode(t)

	initial, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("v", 43),
	})
	assert.NoError(t, err)

	refreshed, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: initial.RefreshToken,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, initial.AccessToken, refreshed.AccessToken)
	// The refresh token is retained, not rotated.
	assert.Equal(t, initial.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, "openid profile", refreshed.Scope)
}

func TestExchange_RefreshTokenScopeNarrowing(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)
	code := f.issueCode(t)

	initial, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("v", 43),
	})
	assert.NoError(t, err)

	narrowed, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: initial.RefreshToken,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Scope:        "openid",
	})
	assert.NoError(t, err)
	assert.Equal(t, "openid", narrowed.Scope)

	// Escalating back beyond the narrowed scope now fails.
	_, err = f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: initial.RefreshToken,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Scope:        "openid profile",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_scope")
}

func TestExchange_RevokedRefreshTokenRejected(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)
	code := f.issueCode(t)

	initial, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/callback",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		CodeVerifier: strings.Repeat("v", 43),
	})
	assert.NoError(t, err)

	err = f.grants.Revoke(context.Background(), &TokenRequest{
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}, initial.RefreshToken, "refresh_token")
	assert.NoError(t, err)

	_, err = f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: initial.RefreshToken,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestExchange_ClientCredentials(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	resp, err := f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeClientCredentials,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Scope:        "openid",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	// No refresh token: the client can always re-authenticate.
	assert.Empty(t, resp.RefreshToken)
}

func TestExchange_ClientCredentialsRequiresConfidential(t *testing.T) {
	f := newGrantFixture(t)

	err := f.clients.CreateClient(context.Background(), &client.Client{
		ID:                "spa-1",
		Type:              client.Public,
		AllowedScopes:     []string{"openid"},
		AllowedGrantTypes: []string{GrantTypeClientCredentials},
	})
	assert.NoError(t, err)

	_, err = f.grants.Exchange(context.Background(), &TokenRequest{
		GrantType: GrantTypeClientCredentials,
		ClientID:  "spa-1",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized_client")
}

func TestDeviceFlow_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	begin, err := f.grants.BeginDeviceAuthorization(ctx, "client-1", "openid")
	assert.NoError(t, err)
	assert.NotEmpty(t, begin.DeviceCode)
	assert.NotEmpty(t, begin.UserCode)
	assert.Equal(t, 5, begin.Interval)

	pollReq := &TokenRequest{
		GrantType:    GrantTypeDeviceCode,
		DeviceCode:   begin.DeviceCode,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}

	_, err = f.grants.Exchange(ctx, pollReq)
	assert.ErrorIs(t, err, serrors.ErrAuthorizationPending)

	_, err = f.devices.AuthorizeDeviceCode(ctx, begin.UserCode, "user-7")
	assert.NoError(t, err)

	resp, err := f.grants.Exchange(ctx, pollReq)
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	// The redeemed device code is gone; replaying the poll reports expired.
	_, err = f.grants.Exchange(ctx, pollReq)
	assert.ErrorIs(t, err, serrors.ErrDeviceFlowTokenExpired)
}

func TestDeviceFlow_ConcurrentRedemptionSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	begin, err := f.grants.BeginDeviceAuthorization(ctx, "client-1", "openid")
	assert.NoError(t, err)

	_, err = f.devices.AuthorizeDeviceCode(ctx, begin.UserCode, "user-7")
	assert.NoError(t, err)

	// Two redemptions race on the same device code. The claim is atomic, so
	// exactly one mints a token pair and the other sees the code as spent.
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.grants.Exchange(ctx, &TokenRequest{
				GrantType:    GrantTypeDeviceCode,
				DeviceCode:   begin.DeviceCode,
				ClientID:     "client-1",
				ClientSecret: "s3cret",
			})
		}(i)
	}
	wg.Wait()

	var issued, spent int
	for _, res := range results {
		switch {
		case res == nil:
			issued++
		case errors.Is(res, serrors.ErrDeviceFlowTokenExpired):
			spent++
		}
	}
	assert.Equal(t, 1, issued)
	assert.Equal(t, 1, spent)
}

func TestDeviceFlow_DeniedByUser(t *testing.T) {
	ctx := context.Background()
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	begin, err := f.grants.BeginDeviceAuthorization(ctx, "client-1", "openid")
	assert.NoError(t, err)

	_, err = f.devices.DenyDeviceCode(ctx, begin.UserCode)
	assert.NoError(t, err)

	_, err = f.grants.Exchange(ctx, &TokenRequest{
		GrantType:    GrantTypeDeviceCode,
		DeviceCode:   begin.DeviceCode,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	})
	assert.ErrorIs(t, err, serrors.ErrDeviceFlowAccessDenied)
}

func TestRevoke_AccessTokenWithoutHint(t *testing.T) {
	ctx := context.Background()
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	resp, err := f.grants.Exchange(ctx, &TokenRequest{
		GrantType:    GrantTypeClientCredentials,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Scope:        "openid",
	})
	assert.NoError(t, err)

	err = f.grants.Revoke(ctx, &TokenRequest{
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}, resp.AccessToken, "")
	assert.NoError(t, err)

	// Revoking an unknown value still succeeds.
	err = f.grants.Revoke(ctx, &TokenRequest{
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}, "never-issued", "")
	assert.NoError(t, err)
}

// responseTagger marks token responses without touching requests.
type responseTagger struct{ id string }

func (e *responseTagger) ID() string          { return e.id }
func (e *responseTagger) Name() string        { return "response tagger" }
func (e *responseTagger) SpecVersion() string { return "1.0" }
func (e *responseTagger) Stages() []InterceptionPoint {
	return []InterceptionPoint{InterceptTokenResponse}
}

func (e *responseTagger) ProcessTokenResponse(_ context.Context, resp *TokenResponse) (*TokenResponse, error) {
	modified := *resp
	modified.Scope = modified.Scope + " " + e.id
	return &modified, nil
}

func TestExchange_ExtensionPipelineWrapsGrant(t *testing.T) {
	f := newGrantFixture(t)
	registerConfidentialClient(t, f.clients)

	// Re-register the fixture services with an extension that tags responses.
	logger := log.NewNopLogger()
	extensions := NewExtensionManager(logger)
	extensions.Register(&responseTagger{id: "audit"})

	codes := NewCodeService(memstore.NewAuthCodeStore(), 10*time.Minute, logger)
	tokens := NewTokenService(memstore.NewTokenStore(), cache.NewMemoryTokenStore(time.Hour), logger)
	devices := NewDeviceCodeService(memstore.NewDeviceAuthStore(), 15*time.Minute, 5, logger)
	grants := NewGrantService(f.clients, codes, tokens, devices, extensions, time.Hour, "https://auth.example.com/device", logger)

	resp, err := grants.Exchange(context.Background(), &TokenRequest{
		GrantType:    GrantTypeClientCredentials,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Scope:        "openid",
	})
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp.Scope, " audit"))
}
