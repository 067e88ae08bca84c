package domain

import "time"

// Token types stored by the token repository.
const (
	TokenTypeAccess  = "access_token"
	TokenTypeRefresh = "refresh_token"
)

// Token represents an issued OAuth token. The value is opaque: validity is
// decided solely by server-side lookup, never by decoding the string.
type Token struct {
	ID         string    `bson:"_id" json:"id"`
	TokenType  string    `bson:"token_type" json:"token_type"` // "access_token" or "refresh_token"
	TokenValue string    `bson:"token_value" json:"token_value"`
	ClientID   string    `bson:"client_id" json:"client_id"`
	UserID     string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Scope      string    `bson:"scope,omitempty" json:"scope,omitempty"`
	ExpiresAt  time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"` // Zero for refresh tokens (revocation-only lifecycle)
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	LastUsedAt time.Time `bson:"last_used_at" json:"last_used_at"`
}

// Expired reports whether the token is past its expiry. Tokens without an
// expiry (refresh tokens) never expire.
func (t *Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}
