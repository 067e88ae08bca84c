package vauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.velum.dev/vauth/client"
	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// AuthorizeResponse is the outcome of a granted authorization request: the
// code to hand back to the client plus any parameters response post-processors
// appended (e.g. the RFC 9207 iss parameter).
type AuthorizeResponse struct {
	Code        string
	State       string
	RedirectURI string
	ExtraParams map[string]string
}

// RedirectLocation builds the redirect URL delivering the code to the client.
func (r *AuthorizeResponse) RedirectLocation() (string, error) {
	u, err := url.Parse(r.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}

	q := u.Query()
	q.Set("code", r.Code)
	if r.State != "" {
		q.Set("state", r.State)
	}
	for k, v := range r.ExtraParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AuthorizeResponsePostProcessor modifies a successful authorization response
// before delivery. Post-processors run in the order they were added; prefer a
// short explicit list over nested wrapping.
type AuthorizeResponsePostProcessor interface {
	ProcessAuthorizeResponse(ctx context.Context, resp *AuthorizeResponse) error
}

// AuthorizeService sequences the authorization endpoint: extension pipeline,
// PAR resolution, client and request validation, and code issuance.
type AuthorizeService struct {
	codes          *CodeService
	par            *PARService
	clients        client.ClientStore
	extensions     *ExtensionManager
	postProcessors []AuthorizeResponsePostProcessor
	logger         applog.Logger
}

// NewAuthorizeService creates an AuthorizeService.
func NewAuthorizeService(codes *CodeService, par *PARService, clients client.ClientStore, extensions *ExtensionManager, logger applog.Logger) *AuthorizeService {
	return &AuthorizeService{
		codes:      codes,
		par:        par,
		clients:    clients,
		extensions: extensions,
		logger:     logger,
	}
}

// AddResponsePostProcessor appends a post-processor to the response chain.
// Call order fixes execution order; configure at startup only.
func (s *AuthorizeService) AddResponsePostProcessor(pp AuthorizeResponsePostProcessor) {
	s.postProcessors = append(s.postProcessors, pp)
}

// Authorize validates an incoming authorization request and returns the
// in-flight request object the consent step renders against.
//
// A request bearing a request_uri is resolved from PAR storage; a missing or
// expired handle is a terminal invalid_request, never a fallback to inline
// parameters. The CSRF token is freshly generated on every call, including
// PAR-resolved ones.
func (s *AuthorizeService) Authorize(ctx context.Context, req *AuthorizeRequest) (*domain.AuthorizationRequestObject, error) {
	reqObj, err := s.buildRequestObject(ctx, req)
	if err != nil {
		return nil, err
	}

	reqObj, err = s.extensions.OnAuthorizeRequest(ctx, reqObj)
	if err != nil {
		return nil, err
	}

	cli, err := s.clients.GetClient(ctx, reqObj.ClientID)
	if err != nil {
		if errors.Is(err, serrors.ErrClientNotFound) {
			return nil, serrors.NewInvalidClient("unknown client")
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	if !cli.HasRedirectURI(reqObj.RedirectURI) {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	if reqObj.ResponseType != "code" {
		return nil, serrors.NewInvalidRequest("unsupported response_type")
	}

	if !cli.AllowsScope(strings.Fields(reqObj.Scope)) {
		return nil, serrors.NewInvalidScope("requested scope exceeds the client's registration")
	}

	// PKCE policy. The code validator accepts challenge-less codes for
	// compatibility, so clients that must use PKCE are stopped here, before a
	// code without a challenge can ever be minted.
	if (cli.RequirePKCE || cli.Type == client.Public) && reqObj.CodeChallenge == "" {
		return nil, serrors.NewPKCERequired()
	}
	if reqObj.CodeChallenge != "" && reqObj.CodeChallengeMethod != "" && !ValidCodeChallengeMethod(reqObj.CodeChallengeMethod) {
		return nil, serrors.NewInvalidRequest("unsupported code_challenge_method")
	}

	return reqObj, nil
}

// buildRequestObject assembles the request object from inline parameters or
// from PAR storage, with a fresh CSRF token either way.
func (s *AuthorizeService) buildRequestObject(ctx context.Context, req *AuthorizeRequest) (*domain.AuthorizationRequestObject, error) {
	csrfToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSRF token: %w", err)
	}

	if req.RequestURI != "" {
		stored, err := s.par.Resolve(ctx, req.RequestURI)
		if err != nil {
			if errors.Is(err, serrors.ErrPARRequestNotFound) {
				return nil, serrors.NewInvalidRequest("request_uri is unknown or has expired")
			}
			return nil, fmt.Errorf("failed to resolve request_uri: %w", err)
		}

		// One-shot dereference: the handle is spent the moment it resolves.
		if err := s.par.Remove(ctx, req.RequestURI); err != nil {
			s.logger.Warn(ctx, "failed to remove resolved pushed request", map[string]any{"error": err.Error()})
		}

		return &domain.AuthorizationRequestObject{
			ResponseType:        stored.ResponseType,
			ClientID:            stored.ClientID,
			RedirectURI:         stored.RedirectURI,
			Scope:               stored.Scope,
			State:               stored.State,
			CSRFToken:           csrfToken,
			CodeChallenge:       stored.CodeChallenge,
			CodeChallengeMethod: stored.CodeChallengeMethod,
		}, nil
	}

	return &domain.AuthorizationRequestObject{
		ResponseType:        req.ResponseType,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CSRFToken:           csrfToken,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}, nil
}

// Grant completes the flow after the user consented: it mints the
// authorization code and runs the response post-processors.
func (s *AuthorizeService) Grant(ctx context.Context, reqObj *domain.AuthorizationRequestObject, userID string) (*AuthorizeResponse, error) {
	authCode, err := s.codes.GenerateAuthorizationCode(ctx, reqObj, userID)
	if err != nil {
		return nil, err
	}

	resp := &AuthorizeResponse{
		Code:        authCode.Code,
		State:       reqObj.State,
		RedirectURI: reqObj.RedirectURI,
		ExtraParams: make(map[string]string),
	}

	for _, pp := range s.postProcessors {
		if err := pp.ProcessAuthorizeResponse(ctx, resp); err != nil {
			return nil, fmt.Errorf("authorize response post-processing failed: %w", err)
		}
	}

	return resp, nil
}
