package vauth

import (
	"context"
	"errors"
	"net/http"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// InterceptionPoint names one of the four places an extension may hook into
// the authorization and token flows.
type InterceptionPoint string

const (
	InterceptAuthorizeRequest InterceptionPoint = "authorize_request"
	InterceptTokenRequest     InterceptionPoint = "token_request"
	InterceptTokenResponse    InterceptionPoint = "token_response"
	InterceptRoutes           InterceptionPoint = "routes"
)

// OAuthExtension is a named, versioned unit declaring which interception
// points it participates in. The processing capabilities themselves are
// separate interfaces; an extension that does not implement one is treated as
// pass-through at that point.
type OAuthExtension interface {
	ID() string
	Name() string
	SpecVersion() string
	Stages() []InterceptionPoint
}

// AuthorizeRequestInterceptor observes and may replace an authorization
// request before validation. Returning (nil, nil) leaves the request unchanged.
type AuthorizeRequestInterceptor interface {
	ProcessAuthorizeRequest(ctx context.Context, req *domain.AuthorizationRequestObject) (*domain.AuthorizationRequestObject, error)
}

// TokenRequestInterceptor observes and may replace a token request before
// validation. Returning (nil, nil) leaves the request unchanged.
type TokenRequestInterceptor interface {
	ProcessTokenRequest(ctx context.Context, req *TokenRequest) (*TokenRequest, error)
}

// TokenResponseInterceptor observes and may replace a token response before
// delivery. Returning (nil, nil) leaves the response unchanged.
type TokenResponseInterceptor interface {
	ProcessTokenResponse(ctx context.Context, resp *TokenResponse) (*TokenResponse, error)
}

// RouteProvider contributes additional endpoints to the server's router.
type RouteProvider interface {
	Routes() []ExtensionRoute
}

// ExtensionRoute is a transport-neutral route contributed by an extension.
type ExtensionRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// ExtensionMetadata describes an extension for the discovery document. It is
// derived from the registered extension, never mutated independently.
type ExtensionMetadata struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	SpecVersion string              `json:"spec_version"`
	Stages      []InterceptionPoint `json:"stages"`
}

// ExtensionManager invokes registered extensions in registration order at each
// interception point. Each stage is a strict left-fold: later extensions
// observe the latest, possibly already-modified value. The first extension
// error aborts the chain; no subsequent extension runs.
type ExtensionManager struct {
	extensions []OAuthExtension
	logger     applog.Logger
}

// NewExtensionManager creates an empty manager.
func NewExtensionManager(logger applog.Logger) *ExtensionManager {
	return &ExtensionManager{logger: logger}
}

// Register appends an extension to the chain. Registration order is the
// invocation order at every interception point and must therefore be fixed at
// startup.
func (m *ExtensionManager) Register(ext OAuthExtension) {
	m.extensions = append(m.extensions, ext)
}

// OnAuthorizeRequest folds the request through every registered interceptor.
func (m *ExtensionManager) OnAuthorizeRequest(ctx context.Context, req *domain.AuthorizationRequestObject) (*domain.AuthorizationRequestObject, error) {
	current := req
	for _, ext := range m.extensions {
		interceptor, ok := ext.(AuthorizeRequestInterceptor)
		if !ok {
			continue
		}
		replaced, err := interceptor.ProcessAuthorizeRequest(ctx, current)
		if err != nil {
			return nil, m.wrapError(ctx, ext, err)
		}
		if replaced != nil {
			current = replaced
		}
	}
	return current, nil
}

// OnTokenRequest folds the token request through every registered interceptor.
func (m *ExtensionManager) OnTokenRequest(ctx context.Context, req *TokenRequest) (*TokenRequest, error) {
	current := req
	for _, ext := range m.extensions {
		interceptor, ok := ext.(TokenRequestInterceptor)
		if !ok {
			continue
		}
		replaced, err := interceptor.ProcessTokenRequest(ctx, current)
		if err != nil {
			return nil, m.wrapError(ctx, ext, err)
		}
		if replaced != nil {
			current = replaced
		}
	}
	return current, nil
}

// OnTokenResponse folds the token response through every registered interceptor.
func (m *ExtensionManager) OnTokenResponse(ctx context.Context, resp *TokenResponse) (*TokenResponse, error) {
	current := resp
	for _, ext := range m.extensions {
		interceptor, ok := ext.(TokenResponseInterceptor)
		if !ok {
			continue
		}
		replaced, err := interceptor.ProcessTokenResponse(ctx, current)
		if err != nil {
			return nil, m.wrapError(ctx, ext, err)
		}
		if replaced != nil {
			current = replaced
		}
	}
	return current, nil
}

// Routes collects every extension-contributed route in registration order.
func (m *ExtensionManager) Routes() []ExtensionRoute {
	var routes []ExtensionRoute
	for _, ext := range m.extensions {
		provider, ok := ext.(RouteProvider)
		if !ok {
			continue
		}
		routes = append(routes, provider.Routes()...)
	}
	return routes
}

// Metadata returns the discovery description of every registered extension, in
// registration order.
func (m *ExtensionManager) Metadata() []ExtensionMetadata {
	meta := make([]ExtensionMetadata, 0, len(m.extensions))
	for _, ext := range m.extensions {
		meta = append(meta, ExtensionMetadata{
			ID:          ext.ID(),
			Name:        ext.Name(),
			SpecVersion: ext.SpecVersion(),
			Stages:      ext.Stages(),
		})
	}
	return meta
}

// wrapError normalizes stage failures into an ExtensionError carrying the
// extension's identity, so operators can attribute the aborted flow.
func (m *ExtensionManager) wrapError(ctx context.Context, ext OAuthExtension, err error) error {
	var extErr *serrors.ExtensionError
	if errors.As(err, &extErr) {
		m.logger.Warn(ctx, "extension aborted flow", map[string]any{
			"extension": extErr.ExtensionID,
			"error":     extErr.Code,
		})
		return extErr
	}

	m.logger.Error(ctx, "extension failed", err, map[string]any{"extension": ext.ID()})
	return serrors.NewExtensionError(ext.ID(), serrors.ServerError, err.Error(),
		"check the extension's configuration and logs")
}
