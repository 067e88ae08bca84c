package memstore

import (
	"context"
	"sync"
	"time"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// TokenStore is an in-memory TokenRepository. Tokens are keyed by their opaque
// value; revocation deletes the entry, so a revoked token is indistinguishable
// from one that never existed.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*domain.Token),
	}
}

// StoreToken stores a token keyed by its value.
func (s *TokenStore) StoreToken(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.tokens[token.TokenValue] = &clone
	return nil
}

// GetAccessToken returns the stored access token for a value.
func (s *TokenStore) GetAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return s.getByType(tokenValue, domain.TokenTypeAccess)
}

// GetRefreshToken returns the stored refresh token for a value.
func (s *TokenStore) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return s.getByType(tokenValue, domain.TokenTypeRefresh)
}

func (s *TokenStore) getByType(tokenValue, tokenType string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[tokenValue]
	if !ok || stored.TokenType != tokenType {
		return nil, serrors.ErrTokenNotFound
	}
	clone := *stored
	return &clone, nil
}

// UpdateRefreshTokenScope replaces the scope of a stored refresh token.
func (s *TokenStore) UpdateRefreshTokenScope(_ context.Context, tokenValue, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[tokenValue]
	if !ok || stored.TokenType != domain.TokenTypeRefresh {
		return serrors.ErrTokenNotFound
	}
	stored.Scope = scope
	return nil
}

// RevokeToken deletes the entry. Unknown values succeed.
func (s *TokenStore) RevokeToken(_ context.Context, tokenValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, tokenValue)
	return nil
}

// DeleteExpiredTokens removes every token past its expiry. Refresh tokens
// without expiry are never swept.
func (s *TokenStore) DeleteExpiredTokens(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for value, stored := range s.tokens {
		if stored.Expired(now) {
			delete(s.tokens, value)
		}
	}
	return nil
}
