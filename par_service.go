package vauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// RequestURIPrefix is the fixed prefix of generated PAR handles
// (RFC 9126, Section 2.2).
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// PushedAuthorizationResponse is the PAR endpoint success payload.
type PushedAuthorizationResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// PARService validates pushed authorization requests, stores them under a
// short-lived opaque request_uri and resolves the handle back later.
type PARService struct {
	store           domain.PARRequestStore
	requestTTL      time.Duration
	maxRequestBytes int
	logger          applog.Logger
}

// NewPARService creates a PARService. requestTTL is how long a stored request
// stays resolvable (60s per RFC 9126 guidance); maxRequestBytes caps the
// accepted parameter payload, zero meaning no limit.
func NewPARService(store domain.PARRequestStore, requestTTL time.Duration, maxRequestBytes int, logger applog.Logger) *PARService {
	return &PARService{
		store:           store,
		requestTTL:      requestTTL,
		maxRequestBytes: maxRequestBytes,
		logger:          logger,
	}
}

// ValidateRequest checks a raw pushed request for structural validity. The
// size limit is applied before any field interpretation so oversized payloads
// are rejected cheaply. Validation failures enumerate every offending
// parameter rather than the first one found.
func (s *PARService) ValidateRequest(params url.Values) (*domain.PARRequest, error) {
	if s.maxRequestBytes > 0 && len(params.Encode()) > s.maxRequestBytes {
		return nil, serrors.NewInvalidRequest("request exceeds the maximum accepted size")
	}

	// A pushed request must carry the parameters themselves, never a
	// reference to another pushed request (RFC 9126, Section 2.1).
	if params.Get("request_uri") != "" {
		return nil, serrors.NewInvalidRequest("request_uri is not allowed in a pushed authorization request")
	}

	var missing []string
	for _, p := range []string{"response_type", "client_id", "redirect_uri"} {
		if params.Get(p) == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return nil, serrors.NewMissingParameters(missing)
	}

	if method := params.Get("code_challenge_method"); method != "" && !ValidCodeChallengeMethod(method) {
		return nil, serrors.NewInvalidRequest("unsupported code_challenge_method")
	}

	return &domain.PARRequest{
		ResponseType:        params.Get("response_type"),
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		Scope:               params.Get("scope"),
		State:               params.Get("state"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
	}, nil
}

// Push validates and stores a pushed request, returning the fresh request_uri
// and its lifetime in seconds.
func (s *PARService) Push(ctx context.Context, params url.Values) (*PushedAuthorizationResponse, error) {
	req, err := s.ValidateRequest(params)
	if err != nil {
		return nil, err
	}

	suffix, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request_uri: %w", err)
	}
	requestURI := RequestURIPrefix + suffix

	if err := s.store.Store(ctx, requestURI, req, s.requestTTL); err != nil {
		return nil, fmt.Errorf("failed to store pushed authorization request: %w", err)
	}

	s.logger.Debug(ctx, "pushed authorization request stored", map[string]any{
		"client_id": req.ClientID,
	})

	return &PushedAuthorizationResponse{
		RequestURI: requestURI,
		ExpiresIn:  int(s.requestTTL.Seconds()),
	}, nil
}

// Resolve returns the stored request for a request_uri. Expired entries are
// indistinguishable from missing ones; both fail closed with
// errors.ErrPARRequestNotFound.
func (s *PARService) Resolve(ctx context.Context, requestURI string) (*domain.PARRequest, error) {
	if !strings.HasPrefix(requestURI, RequestURIPrefix) {
		return nil, serrors.ErrPARRequestNotFound
	}
	return s.store.Get(ctx, requestURI)
}

// Remove deletes a stored request. The authorize orchestrator calls this after
// a successful resolution so a handle dereferences at most once.
func (s *PARService) Remove(ctx context.Context, requestURI string) error {
	return s.store.Delete(ctx, requestURI)
}

// RemoveExpired sweeps expired entries on backends without native TTL support.
func (s *PARService) RemoveExpired(ctx context.Context) error {
	return s.store.DeleteExpired(ctx)
}
