// Package vauth implements the protocol and security core of an OAuth 2.0
// authorization server: authorization-code issuance and validation with PKCE
// binding, access/refresh token lifecycle, the device authorization grant
// (RFC 8628), pushed authorization requests (RFC 9126) and an extension
// pipeline for optional protocol extensions.
//
// Transport and persistence stay behind narrow contracts: handlers live in
// api/echo, storage backends in mongodb, cache and internal/memstore.
package vauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// opaqueTokenBytes is the entropy of generated token, code and CSRF strings.
// 32 bytes is well above the 128-bit floor needed to make guessing infeasible.
const opaqueTokenBytes = 32

// GenerateOpaqueToken returns an unguessable, URL-safe opaque string drawn
// from the platform CSPRNG. Used for token values, authorization codes and
// PAR request_uri suffixes.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenRequest carries the parameters of a token endpoint call, independent of
// the wire framework that parsed them.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	DeviceCode   string `json:"device_code,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenResponse is the token endpoint success payload (RFC 6749, Section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizeRequest carries the raw parameters of an authorize endpoint call.
// When RequestURI is set, every other field is ignored and the parameters are
// resolved from PAR storage instead.
type AuthorizeRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope,omitempty"`
	State               string `json:"state,omitempty"`
	RequestURI          string `json:"request_uri,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// DeviceAuthResponse is the device authorization endpoint payload
// (RFC 8628, Section 3.2).
type DeviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}
