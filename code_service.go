package vauth

import (
	"context"
	"fmt"
	"time"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// CodeService issues and consumes single-use authorization codes.
type CodeService struct {
	repo    domain.AuthorizationCodeRepository
	codeTTL time.Duration
	logger  applog.Logger
}

// NewCodeService creates a CodeService. codeTTL bounds how long an issued code
// stays exchangeable regardless of use.
func NewCodeService(repo domain.AuthorizationCodeRepository, codeTTL time.Duration, logger applog.Logger) *CodeService {
	return &CodeService{
		repo:    repo,
		codeTTL: codeTTL,
		logger:  logger,
	}
}

// GenerateAuthorizationCode mints a fresh code bound to the validated request
// and the authorizing user, carrying over the PKCE challenge when present.
func (s *CodeService) GenerateAuthorizationCode(ctx context.Context, req *domain.AuthorizationRequestObject, userID string) (*domain.AuthorizationCode, error) {
	value, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := time.Now().UTC()
	authCode := &domain.AuthorizationCode{
		Code:                value,
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		ExpiresAt:           now.Add(s.codeTTL),
		CreatedAt:           now,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}

	if err := s.repo.SaveAuthCode(ctx, authCode); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug(ctx, "authorization code issued", map[string]any{
		"client_id": req.ClientID,
		"user_id":   userID,
	})

	return authCode, nil
}

// GetAuthorizationCode looks up a code by value.
func (s *CodeService) GetAuthorizationCode(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	return s.repo.GetAuthCode(ctx, code)
}

// ConsumeAuthorizationCode marks a code used. The repository flips the flag
// atomically, so of two concurrent exchanges only one can win.
func (s *CodeService) ConsumeAuthorizationCode(ctx context.Context, code string) error {
	return s.repo.MarkAuthCodeAsUsed(ctx, code)
}

// ValidateCode checks an authorization code's binding to the presenting client.
// It is a pure check: no side effects, no mutation of the record; consumption
// is the caller's responsibility after validation succeeds.
//
// Checks short-circuit in order: client binding, expiry and single-use state,
// redirect URI (exact match, no normalization), then PKCE. When the code
// carries no challenge, PKCE is not enforced here; servers that mandate PKCE
// for a client population enforce that at authorization time, one layer up.
func ValidateCode(authCode *domain.AuthorizationCode, clientID, redirectURI, codeVerifier string) error {
	if authCode.ClientID != clientID {
		return serrors.NewInvalidGrant("authorization code was issued to another client")
	}

	if authCode.Expired(time.Now().UTC()) {
		return serrors.NewInvalidGrant("authorization code has expired")
	}

	if authCode.Used {
		return serrors.NewInvalidGrant("authorization code has already been used")
	}

	if authCode.RedirectURI != redirectURI {
		return serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}

	if authCode.CodeChallenge != "" {
		if codeVerifier == "" {
			return serrors.NewInvalidPKCE("code_verifier is required")
		}
		method := authCode.CodeChallengeMethod
		if method == "" {
			// RFC 7636 defaults to plain when the client omitted the method.
			method = CodeChallengeMethodPlain
		}
		if !ValidatePKCE(codeVerifier, authCode.CodeChallenge, method) {
			return serrors.NewInvalidPKCE("code_verifier does not match the challenge")
		}
	}

	return nil
}
