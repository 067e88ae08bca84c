// Package cache provides the access-token lookup cache sitting in front of the
// token repository, plus TTL-backed stores for pushed authorization requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.velum.dev/vauth/domain"
)

// TokenEntry is the cached representation of an issued token. Entries are
// keyed by a hash of the token value, never the value itself.
type TokenEntry struct {
	ID         string    `json:"id" redis:"id"`
	TokenType  string    `json:"token_type" redis:"tokenType"`
	TokenValue string    `json:"token_value" redis:"tokenValue"`
	ClientID   string    `json:"client_id" redis:"clientId"`
	UserID     string    `json:"user_id" redis:"userId"`
	Scope      string    `json:"scope" redis:"scope"`
	ExpiresAt  time.Time `json:"expires_at" redis:"expiresAt"`
	CreatedAt  time.Time `json:"created_at" redis:"createdAt"`
	LastUsedAt time.Time `json:"last_used_at" redis:"lastUsedAt"`
}

// NewTokenEntry converts a domain token into its cache representation.
func NewTokenEntry(token *domain.Token) *TokenEntry {
	return &TokenEntry{
		ID:         token.ID,
		TokenType:  token.TokenType,
		TokenValue: token.TokenValue,
		ClientID:   token.ClientID,
		UserID:     token.UserID,
		Scope:      token.Scope,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  token.CreatedAt,
		LastUsedAt: token.LastUsedAt,
	}
}

// Token converts the entry back to the domain token it was built from.
func (e *TokenEntry) Token() *domain.Token {
	return &domain.Token{
		ID:         e.ID,
		TokenType:  e.TokenType,
		TokenValue: e.TokenValue,
		ClientID:   e.ClientID,
		UserID:     e.UserID,
		Scope:      e.Scope,
		ExpiresAt:  e.ExpiresAt,
		CreatedAt:  e.CreatedAt,
		LastUsedAt: e.LastUsedAt,
	}
}

// TokenStore caches token entries keyed by token value. Get returns an error
// for misses; callers fall through to the repository.
type TokenStore interface {
	Set(ctx context.Context, token *TokenEntry) error
	Get(ctx context.Context, token string) (*TokenEntry, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}

// HashToken derives the cache key for a token value. Keeping only the hash in
// cache keys means a dumped keyspace does not leak usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// clampTTL bounds an entry's cache lifetime: entries without expiry get the
// fallback, entries already past expiry get a minimal positive TTL so the
// backend evicts them immediately instead of erroring.
func clampTTL(expiresAt time.Time, fallback time.Duration) time.Duration {
	if expiresAt.IsZero() {
		return fallback
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return time.Millisecond
	}
	return ttl
}
