package errors

import (
	"errors"
	"fmt"
	"strings"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes
const (
	InvalidRequest         = "invalid_request"
	UnauthorizedClient     = "unauthorized_client"
	AccessDenied           = "access_denied"
	UnsupportedGrantType   = "unsupported_grant_type"
	InvalidScope           = "invalid_scope"
	InvalidClient          = "invalid_client"
	InvalidGrant           = "invalid_grant"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

// Sentinel errors for the device authorization grant (RFC 8628, Section 3.5).
// ErrSlowDown is deliberately distinct from ErrAuthorizationPending: a client
// receiving slow_down must back off, a pending client may keep its interval.
var (
	ErrAuthorizationPending    = errors.New("authorization_pending")
	ErrSlowDown                = errors.New("slow_down")
	ErrDeviceFlowAccessDenied  = errors.New("access_denied")
	ErrDeviceFlowTokenExpired  = errors.New("expired_token")
	ErrDeviceCodeNotFound      = errors.New("device code not found")
	ErrUserCodeNotFound        = errors.New("user code not found")
	ErrCannotApproveDeviceAuth = errors.New("device authorization is not pending approval")
)

// Not-found sentinels. These are normal, non-exceptional outcomes: an unknown
// token, code or PAR handle is handled by the caller, not logged as a failure.
var (
	ErrTokenNotFound      = errors.New("token not found")
	ErrAuthCodeNotFound   = errors.New("authorization code not found")
	ErrAuthCodeUsed       = errors.New("authorization code already used")
	ErrPARRequestNotFound = errors.New("pushed authorization request not found or expired")
	ErrClientNotFound     = errors.New("client not found")
)

// Common error constructors
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
	}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
	}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidScope,
		Description: description,
	}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnauthorizedClient,
		Description: description,
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}

// PKCE specific errors
func NewPKCERequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: "PKCE is required for this client",
	}
}

func NewInvalidPKCE(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: fmt.Sprintf("PKCE validation failed: %s", description),
	}
}

// NewMissingParameters builds an invalid_request error enumerating every
// offending parameter, so a client sees the full list in one round trip.
func NewMissingParameters(params []string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: fmt.Sprintf("missing required parameters: %s", strings.Join(params, ", ")),
	}
}
