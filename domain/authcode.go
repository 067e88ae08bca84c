package domain

import "time"

// AuthorizationCode represents an OAuth 2.0 authorization code (RFC 6749, Section 4.1).
// A code is single-use: once exchanged it is marked used so replay fails.
type AuthorizationCode struct {
	Code        string    `bson:"_id" json:"code"`                  // Unique authorization code
	ClientID    string    `bson:"client_id" json:"client_id"`       // Client application ID
	UserID      string    `bson:"user_id" json:"user_id"`           // User who authorized the request
	RedirectURI string    `bson:"redirect_uri" json:"redirect_uri"` // Client's callback URL, matched exactly on exchange
	Scope       string    `bson:"scope" json:"scope"`               // Authorized scopes, space separated
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
	Used        bool      `bson:"used" json:"used"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`

	// PKCE binding (RFC 7636). Empty challenge means the code was issued
	// without PKCE; the validator then skips verifier checks.
	CodeChallenge       string `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
}

// Expired reports whether the code is past its expiry. The boundary instant
// itself counts as expired.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
