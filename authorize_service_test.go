package vauth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.velum.dev/vauth/cache"
	"go.velum.dev/vauth/client"
	"go.velum.dev/vauth/internal/memstore"
	"go.velum.dev/vauth/log"
)

func newAuthorizeFixture(t *testing.T) (*AuthorizeService, *PARService, *client.MemoryStore) {
	t.Helper()

	logger := log.NewNopLogger()
	clients := client.NewMemoryStore()
	codes := NewCodeService(memstore.NewAuthCodeStore(), 10*time.Minute, logger)
	par := NewPARService(cache.NewMemoryPARStore(), time.Minute, 4096, logger)
	svc := NewAuthorizeService(codes, par, clients, NewExtensionManager(logger), logger)
	return svc, par, clients
}

func registerConfidentialClient(t *testing.T, clients *client.MemoryStore) {
	t.Helper()

	hash, err := client.HashSecret("s3cret")
	assert.NoError(t, err)

	err = clients.CreateClient(context.Background(), &client.Client{
		ID:                "client-1",
		SecretHash:        hash,
		Type:              client.Confidential,
		Name:              "Test App",
		RedirectURIs:      []string{"https://app.example.com/callback"},
		AllowedScopes:     []string{"openid", "profile", "email"},
		AllowedGrantTypes: []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken, GrantTypeClientCredentials, GrantTypeDeviceCode},
	})
	assert.NoError(t, err)
}

func validAuthorizeRequest() *AuthorizeRequest {
	return &AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "client-1",
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "openid profile",
		State:               "abc123",
		CodeChallenge:       s256Challenge(strings.Repeat("v", 43)),
		CodeChallengeMethod: "S256",
	}
}

func TestAuthorize_Success(t *testing.T) {
	svc, _, clients := newAuthorizeFixture(t)
	registerConfidentialClient(t, clients)

	reqObj, err := svc.Authorize(context.Background(), validAuthorizeRequest())
	assert.NoError(t, err)
	assert.Equal(t, "client-1", reqObj.ClientID)
	assert.Equal(t, "abc123", reqObj.State)
	assert.NotEmpty(t, reqObj.CSRFToken)
}

func TestAuthorize_FreshCSRFTokenPerRequest(t *testing.T) {
	svc, _, clients := newAuthorizeFixture(t)
	registerConfidentialClient(t, clients)

	first, err := svc.Authorize(context.Background(), validAuthorizeRequest())
	assert.NoError(t, err)
	second, err := svc.Authorize(context.Background(), validAuthorizeRequest())
	assert.NoError(t, err)

	assert.NotEqual(t, first.CSRFToken, second.CSRFToken)
}

func TestAuthorize_UnknownClient(t *testing.T) {
	svc, _, _ := newAuthorizeFixture(t)

	_, err := svc.Authorize(context.Background(), validAuthorizeRequest())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestAuthorize_UnregisteredRedirectURI(t *testing.T) {
	svc, _, clients := newAuthorizeFixture(t)
	registerConfidentialClient(t, clients)

	req := validAuthorizeRequest()
	req.RedirectURI = "https://app.example.com/callback/extra"
	_, err := svc.Authorize(context.Background(), req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redirect_uri")
}

func TestAuthorize_ScopeEscalationRejected(t *testing.T) {
	svc, _, clients := newAuthorizeFixture(t)
	registerConfidentialClient(t, clients)

	req := validAuthorizeRequest()
	req.Scope = "openid admin"
	_, err := svc.Authorize(context.Background(), req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_scope")
}

func TestAuthorize_PublicClientRequiresPKCE(t *testing.T) {
	svc, _, clients := newAuthorizeFixture(t)

	err := clients.CreateClient(context.Background(), &client.Client{
		ID:                "spa-1",
		Type:              client.Public,
		RedirectURIs:      []string{"https://spa.example.com/cb"},
		AllowedScopes:     []string{"openid"},
		AllowedGrantTypes: []string{GrantTypeAuthorizationCode},
	})
	assert.NoError(t, err)

	req := &AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "spa-1",
		RedirectURI:  "https://spa.example.com/cb",
		Scope:        "openid",
	}
	_, err = svc.Authorize(context.Background(), req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PKCE")
}

func TestAuthorize_PARResolutionIsOneShot(t *testing.T) {
	ctx := context.Background()
	svc, par, clients := newAuthorizeFixture(t)
	registerConfidentialClient(t, clients)

	pushed, err := par.Push(ctx, url.Values{
		"response_type":         {"code"},
		"client_id":             {"client-1"},
		"redirect_uri":          {"https://app.example.com/callback"},
		"scope":                 {"openid"},
		"state":                 {"par-state"},
		"code_challenge":        {s256Challenge(strings.Repeat("v", 43))},
		"code_challenge_method": {"S256"},
	})
	assert.NoError(t, err)

	reqObj, err := svc.Authorize(ctx, &AuthorizeRequest{RequestURI: pushed.RequestURI})
	assert.NoError(t, err)
	assert.Equal(t, "client-1", reqObj.ClientID)
	assert.Equal(t, "par-state", reqObj.State)
	assert.NotEmpty(t, reqObj.CSRFToken)

	// The handle was spent on resolution; a second dereference fails without
	// falling back to inline parameters.
	_, err = svc.Authorize(ctx, &AuthorizeRequest{RequestURI: pushed.RequestURI})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "request_uri")
}

func TestGrant_IssuesCodeAndRunsPostProcessors(t *testing.T) {
	ctx := context.Background()
	svc, _, clients := newAuthorizeFixture(t)
	registerConfidentialClient(t, clients)

	issuer, err := NewIssuerIdentification("https://auth.example.com")
	assert.NoError(t, err)
	svc.AddResponsePostProcessor(issuer)

	reqObj, err := svc.Authorize(ctx, validAuthorizeRequest())
	assert.NoError(t, err)

	resp, err := svc.Grant(ctx, reqObj, "user-1")
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.Code)
	assert.Equal(t, "abc123", resp.State)
	assert.Equal(t, "https://auth.example.com", resp.ExtraParams["iss"])

	location, err := resp.RedirectLocation()
	assert.NoError(t, err)

	parsed, err := url.Parse(location)
	assert.NoError(t, err)
	assert.Equal(t, resp.Code, parsed.Query().Get("code"))
	assert.Equal(t, "abc123", parsed.Query().Get("state"))
	assert.Equal(t, "https://auth.example.com", parsed.Query().Get("iss"))
}

func TestNewIssuerIdentification_Validation(t *testing.T) {
	_, err := NewIssuerIdentification("https://auth.example.com")
	assert.NoError(t, err)

	_, err = NewIssuerIdentification("not a url")
	assert.Error(t, err)

	_, err = NewIssuerIdentification("/relative/path")
	assert.Error(t, err)

	_, err = NewIssuerIdentification("https://auth.example.com?x=1")
	assert.Error(t, err)

	_, err = NewIssuerIdentification("https://auth.example.com#frag")
	assert.Error(t, err)
}
