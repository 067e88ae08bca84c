package vauth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.velum.dev/vauth/cache"
	serrors "go.velum.dev/vauth/errors"
	"go.velum.dev/vauth/log"
)

func validPARParams() url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {"client-1"},
		"redirect_uri":          {"https://app.example.com/callback"},
		"scope":                 {"openid"},
		"state":                 {"xyz"},
		"code_challenge":        {s256Challenge(strings.Repeat("v", 43))},
		"code_challenge_method": {"S256"},
	}
}

func newPARService(ttl time.Duration) *PARService {
	return NewPARService(cache.NewMemoryPARStore(), ttl, 4096, log.NewNopLogger())
}

func TestPARService_PushAndResolve(t *testing.T) {
	ctx := context.Background()
	svc := newPARService(time.Minute)

	resp, err := svc.Push(ctx, validPARParams())
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.RequestURI, RequestURIPrefix))
	assert.Equal(t, 60, resp.ExpiresIn)

	stored, err := svc.Resolve(ctx, resp.RequestURI)
	assert.NoError(t, err)
	assert.Equal(t, "client-1", stored.ClientID)
	assert.Equal(t, "xyz", stored.State)
	assert.Equal(t, "S256", stored.CodeChallengeMethod)
}

func TestPARService_MissingParametersEnumerated(t *testing.T) {
	svc := newPARService(time.Minute)

	params := url.Values{"scope": {"openid"}}
	_, err := svc.ValidateRequest(params)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "response_type")
	assert.Contains(t, err.Error(), "client_id")
	assert.Contains(t, err.Error(), "redirect_uri")
}

func TestPARService_RejectsNestedRequestURI(t *testing.T) {
	svc := newPARService(time.Minute)

	params := validPARParams()
	params.Set("request_uri", RequestURIPrefix+"other")
	_, err := svc.ValidateRequest(params)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "request_uri")
}

func TestPARService_RejectsUnknownChallengeMethod(t *testing.T) {
	svc := newPARService(time.Minute)

	params := validPARParams()
	params.Set("code_challenge_method", "S512")
	_, err := svc.ValidateRequest(params)
	assert.Error(t, err)
}

func TestPARService_SizeLimitBeforeValidation(t *testing.T) {
	svc := NewPARService(cache.NewMemoryPARStore(), time.Minute, 64, log.NewNopLogger())

	params := validPARParams()
	params.Set("state", strings.Repeat("s", 200))
	_, err := svc.ValidateRequest(params)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "size")
}

func TestPARService_ResolveUnknownHandle(t *testing.T) {
	svc := newPARService(time.Minute)

	_, err := svc.Resolve(context.Background(), RequestURIPrefix+"missing")
	assert.ErrorIs(t, err, serrors.ErrPARRequestNotFound)

	// A handle without the URN prefix never reaches the store.
	_, err = svc.Resolve(context.Background(), "https://evil.example.com/req")
	assert.ErrorIs(t, err, serrors.ErrPARRequestNotFound)
}

func TestPARService_ExpiredHandleFailsClosed(t *testing.T) {
	ctx := context.Background()
	svc := newPARService(30 * time.Millisecond)

	resp, err := svc.Push(ctx, validPARParams())
	assert.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = svc.Resolve(ctx, resp.RequestURI)
	assert.ErrorIs(t, err, serrors.ErrPARRequestNotFound)
}

func TestPARService_RemoveMakesHandleOneShot(t *testing.T) {
	ctx := context.Background()
	svc := newPARService(time.Minute)

	resp, err := svc.Push(ctx, validPARParams())
	assert.NoError(t, err)

	_, err = svc.Resolve(ctx, resp.RequestURI)
	assert.NoError(t, err)

	assert.NoError(t, svc.Remove(ctx, resp.RequestURI))

	_, err = svc.Resolve(ctx, resp.RequestURI)
	assert.ErrorIs(t, err, serrors.ErrPARRequestNotFound)
}
