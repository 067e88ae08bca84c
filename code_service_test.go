package vauth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	"go.velum.dev/vauth/internal/memstore"
	"go.velum.dev/vauth/log"
)

func newTestAuthCode() *domain.AuthorizationCode {
	verifier := strings.Repeat("v", 43)
	return &domain.AuthorizationCode{
		Code:                "test-code",
		ClientID:            "client-1",
		UserID:              "user-1",
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "openid profile",
		ExpiresAt:           time.Now().UTC().Add(10 * time.Minute),
		CreatedAt:           time.Now().UTC(),
		CodeChallenge:       s256Challenge(verifier),
		CodeChallengeMethod: CodeChallengeMethodS256,
	}
}

func TestValidateCode_Success(t *testing.T) {
	authCode := newTestAuthCode()
	verifier := strings.Repeat("v", 43)

	err := ValidateCode(authCode, "client-1", "https://app.example.com/callback", verifier)
	assert.NoError(t, err)
}

func TestValidateCode_ClientMismatch(t *testing.T) {
	authCode := newTestAuthCode()

	err := ValidateCode(authCode, "client-2", authCode.RedirectURI, strings.Repeat("v", 43))
	assert.Error(t, err)
	oauthErr := &serrors.OAuth2Error{}
	assert.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.InvalidGrant, oauthErr.Code)
}

func TestValidateCode_Expired(t *testing.T) {
	authCode := newTestAuthCode()
	authCode.ExpiresAt = time.Now().UTC().Add(-time.Second)

	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, strings.Repeat("v", 43))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateCode_ExpiryBoundaryIsExpired(t *testing.T) {
	authCode := newTestAuthCode()
	authCode.ExpiresAt = time.Now().UTC()

	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, strings.Repeat("v", 43))
	assert.Error(t, err)
}

func TestValidateCode_Used(t *testing.T) {
	authCode := newTestAuthCode()
	authCode.Used = true

	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, strings.Repeat("v", 43))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already been used")
}

func TestValidateCode_RedirectMismatch(t *testing.T) {
	authCode := newTestAuthCode()

	err := ValidateCode(authCode, "client-1", "https://app.example.com/callback/", strings.Repeat("v", 43))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redirect_uri")
}

func TestValidateCode_MissingVerifier(t *testing.T) {
	authCode := newTestAuthCode()

	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "code_verifier")
}

func TestValidateCode_WrongVerifier(t *testing.T) {
	authCode := newTestAuthCode()

	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, strings.Repeat("w", 43))
	assert.Error(t, err)
}

func TestValidateCode_NoPKCEBinding(t *testing.T) {
	authCode := newTestAuthCode()
	authCode.CodeChallenge = ""
	authCode.CodeChallengeMethod = ""

	// A code issued without a challenge validates without a verifier.
	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, "")
	assert.NoError(t, err)
}

func TestValidateCode_EmptyMethodDefaultsToPlain(t *testing.T) {
	verifier := strings.Repeat("v", 43)
	authCode := newTestAuthCode()
	authCode.CodeChallenge = verifier
	authCode.CodeChallengeMethod = ""

	err := ValidateCode(authCode, "client-1", authCode.RedirectURI, verifier)
	assert.NoError(t, err)
}

func TestValidateCode_ChecksClientBeforeExpiry(t *testing.T) {
	authCode := newTestAuthCode()
	authCode.ExpiresAt = time.Now().UTC().Add(-time.Minute)

	// Client binding short-circuits before the expiry check.
	err := ValidateCode(authCode, "client-2", authCode.RedirectURI, strings.Repeat("v", 43))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "another client")
}

func TestCodeService_ConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := NewCodeService(memstore.NewAuthCodeStore(), 10*time.Minute, log.NewNopLogger())

	reqObj := &domain.AuthorizationRequestObject{
		ResponseType: "code",
		ClientID:     "client-1",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid",
	}

	authCode, err := svc.GenerateAuthorizationCode(ctx, reqObj, "user-1")
	assert.NoError(t, err)
	assert.NotEmpty(t, authCode.Code)

	assert.NoError(t, svc.ConsumeAuthorizationCode(ctx, authCode.Code))

	err = svc.ConsumeAuthorizationCode(ctx, authCode.Code)
	assert.ErrorIs(t, err, serrors.ErrAuthCodeUsed)

	stored, err := svc.GetAuthorizationCode(ctx, authCode.Code)
	assert.NoError(t, err)
	assert.True(t, stored.Used)
}

func TestCodeService_UnknownCode(t *testing.T) {
	svc := NewCodeService(memstore.NewAuthCodeStore(), 10*time.Minute, log.NewNopLogger())

	_, err := svc.GetAuthorizationCode(context.Background(), "no-such-code")
	assert.ErrorIs(t, err, serrors.ErrAuthCodeNotFound)
}
