package vauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.velum.dev/vauth/client"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// Grant type identifiers accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// GrantService is the token endpoint orchestrator. It authenticates the
// client, dispatches on grant_type, and folds the request and response through
// the extension pipeline.
type GrantService struct {
	clients         client.ClientStore
	codes           *CodeService
	tokens          TokenManager
	devices         DeviceCodeManager
	extensions      *ExtensionManager
	accessTokenTTL  time.Duration
	verificationURI string
	logger          applog.Logger
}

// NewGrantService creates a GrantService. verificationURI is handed to devices
// starting the device authorization grant.
func NewGrantService(clients client.ClientStore, codes *CodeService, tokens TokenManager, devices DeviceCodeManager, extensions *ExtensionManager, accessTokenTTL time.Duration, verificationURI string, logger applog.Logger) *GrantService {
	return &GrantService{
		clients:         clients,
		codes:           codes,
		tokens:          tokens,
		devices:         devices,
		extensions:      extensions,
		accessTokenTTL:  accessTokenTTL,
		verificationURI: verificationURI,
		logger:          logger,
	}
}

// Exchange processes one token endpoint request end to end: extension
// pre-processing, client authentication, the grant itself, then extension
// post-processing of the response.
func (s *GrantService) Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	req, err := s.extensions.OnTokenRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	cli, err := s.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	if !cli.HasGrantType(req.GrantType) {
		return nil, serrors.NewUnauthorizedClient("client is not authorized for this grant type")
	}

	var resp *TokenResponse
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		resp, err = s.exchangeAuthorizationCode(ctx, cli, req)
	case GrantTypeRefreshToken:
		resp, err = s.exchangeRefreshToken(ctx, cli, req)
	case GrantTypeClientCredentials:
		resp, err = s.exchangeClientCredentials(ctx, cli, req)
	case GrantTypeDeviceCode:
		resp, err = s.exchangeDeviceCode(ctx, cli, req)
	default:
		return nil, serrors.NewUnsupportedGrantType()
	}
	if err != nil {
		return nil, err
	}

	return s.extensions.OnTokenResponse(ctx, resp)
}

// BeginDeviceAuthorization starts the device authorization grant for a client
// and returns the RFC 8628 payload the device displays to the user.
func (s *GrantService) BeginDeviceAuthorization(ctx context.Context, clientID, scope string) (*DeviceAuthResponse, error) {
	cli, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, serrors.ErrClientNotFound) {
			return nil, serrors.NewInvalidClient("unknown client")
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if !cli.HasGrantType(GrantTypeDeviceCode) {
		return nil, serrors.NewUnauthorizedClient("client is not authorized for the device grant")
	}
	if !cli.AllowsScope(strings.Fields(scope)) {
		return nil, serrors.NewInvalidScope("requested scope exceeds the client's registration")
	}

	auth, err := s.devices.GenerateDeviceCode(ctx, clientID, scope, s.verificationURI)
	if err != nil {
		return nil, err
	}

	return &DeviceAuthResponse{
		DeviceCode:              auth.DeviceCode,
		UserCode:                auth.UserCode,
		VerificationURI:         auth.VerificationURI,
		VerificationURIComplete: auth.VerificationURIComplete,
		ExpiresIn:               int(time.Until(auth.ExpiresAt).Seconds()),
		Interval:                auth.Interval,
	}, nil
}

// Revoke implements RFC 7009 semantics: the token, whichever type it is, stops
// working. Unknown token values succeed so callers learn nothing from probing.
func (s *GrantService) Revoke(ctx context.Context, req *TokenRequest, tokenValue, tokenTypeHint string) error {
	if _, err := s.authenticateClient(ctx, req); err != nil {
		return err
	}

	// The hint only orders the attempts; both stores are tried either way.
	if tokenTypeHint == "refresh_token" {
		if err := s.tokens.RevokeRefreshToken(ctx, tokenValue); err != nil {
			return err
		}
		return s.tokens.RevokeAccessToken(ctx, tokenValue)
	}
	if err := s.tokens.RevokeAccessToken(ctx, tokenValue); err != nil {
		return err
	}
	return s.tokens.RevokeRefreshToken(ctx, tokenValue)
}

func (s *GrantService) authenticateClient(ctx context.Context, req *TokenRequest) (*client.Client, error) {
	if req.ClientID == "" {
		return nil, serrors.NewInvalidClient("client_id is required")
	}
	cli, err := s.clients.ValidateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		var oauthErr *serrors.OAuth2Error
		if errors.As(err, &oauthErr) {
			return nil, oauthErr
		}
		if errors.Is(err, serrors.ErrClientNotFound) {
			return nil, serrors.NewInvalidClient("unknown client")
		}
		return nil, fmt.Errorf("failed to authenticate client: %w", err)
	}
	return cli, nil
}

// exchangeAuthorizationCode validates the code's bindings, consumes it, and
// mints the token pair. Validation is pure; consumption happens only after it
// passes, and the repository's atomic flag flip arbitrates concurrent
// exchanges of the same code.
func (s *GrantService) exchangeAuthorizationCode(ctx context.Context, cli *client.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, serrors.NewInvalidRequest("code is required")
	}

	authCode, err := s.codes.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, serrors.ErrAuthCodeNotFound) {
			return nil, serrors.NewInvalidGrant("authorization code is invalid")
		}
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}

	if err := ValidateCode(authCode, cli.ID, req.RedirectURI, req.CodeVerifier); err != nil {
		return nil, err
	}

	if err := s.codes.ConsumeAuthorizationCode(ctx, req.Code); err != nil {
		if errors.Is(err, serrors.ErrAuthCodeUsed) {
			return nil, serrors.NewInvalidGrant("authorization code has already been used")
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	return s.tokens.GenerateAccessRefreshTokens(ctx, cli.ID, authCode.UserID, authCode.Scope, s.accessTokenTTL)
}

// exchangeRefreshToken issues a fresh access token against a live refresh
// token. The requested scope may only narrow the token's scope; the refresh
// token itself is kept, with its scope updated in place when narrowed.
func (s *GrantService) exchangeRefreshToken(ctx context.Context, cli *client.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, serrors.NewInvalidRequest("refresh_token is required")
	}

	refreshToken, err := s.tokens.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, serrors.ErrTokenNotFound) {
			return nil, serrors.NewInvalidGrant("refresh token is invalid or has been revoked")
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if refreshToken.ClientID != cli.ID {
		return nil, serrors.NewInvalidGrant("refresh token was issued to another client")
	}
	if refreshToken.Expired(time.Now().UTC()) {
		return nil, serrors.NewInvalidGrant("refresh token has expired")
	}

	scope := refreshToken.Scope
	if req.Scope != "" {
		if !scopeSubset(req.Scope, refreshToken.Scope) {
			return nil, serrors.NewInvalidScope("requested scope exceeds the scope of the refresh token")
		}
		scope = req.Scope
		if scope != refreshToken.Scope {
			if err := s.tokens.UpdateRefreshToken(ctx, req.RefreshToken, scope); err != nil {
				return nil, fmt.Errorf("failed to narrow refresh token scope: %w", err)
			}
		}
	}

	resp, err := s.tokens.GenerateAccessToken(ctx, cli.ID, refreshToken.UserID, scope, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}
	resp.RefreshToken = req.RefreshToken
	return resp, nil
}

// exchangeClientCredentials issues an access token for the client itself.
// No refresh token: the client can always re-authenticate.
func (s *GrantService) exchangeClientCredentials(ctx context.Context, cli *client.Client, req *TokenRequest) (*TokenResponse, error) {
	if cli.Type != client.Confidential {
		return nil, serrors.NewUnauthorizedClient("client_credentials requires a confidential client")
	}
	if !cli.AllowsScope(strings.Fields(req.Scope)) {
		return nil, serrors.NewInvalidScope("requested scope exceeds the client's registration")
	}

	return s.tokens.GenerateAccessToken(ctx, cli.ID, "", req.Scope, s.accessTokenTTL)
}

// exchangeDeviceCode runs one poll of the device grant. An authorized code is
// claimed (atomically removed) before any token is minted, so concurrent
// redemptions of the same device_code issue at most one token pair, and a
// replayed poll fails as expired.
func (s *GrantService) exchangeDeviceCode(ctx context.Context, cli *client.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.DeviceCode == "" {
		return nil, serrors.NewInvalidRequest("device_code is required")
	}

	if _, err := s.devices.PollDeviceCode(ctx, req.DeviceCode, cli.ID); err != nil {
		return nil, err
	}

	auth, err := s.devices.ClaimDeviceCode(ctx, req.DeviceCode)
	if err != nil {
		return nil, err
	}

	return s.tokens.GenerateAccessRefreshTokens(ctx, cli.ID, auth.UserID, auth.Scope, s.accessTokenTTL)
}

// scopeSubset reports whether every scope token of requested appears in granted.
func scopeSubset(requested, granted string) bool {
	grantedSet := make(map[string]struct{})
	for _, sc := range strings.Fields(granted) {
		grantedSet[sc] = struct{}{}
	}
	for _, sc := range strings.Fields(requested) {
		if _, ok := grantedSet[sc]; !ok {
			return false
		}
	}
	return true
}
