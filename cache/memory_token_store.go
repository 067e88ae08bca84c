package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	serrors "go.velum.dev/vauth/errors"
)

// MemoryTokenStore implements TokenStore over ttlcache, with per-entry TTLs
// derived from token expiry.
type MemoryTokenStore struct {
	cache      *ttlcache.Cache[string, *TokenEntry]
	defaultTTL time.Duration
}

// NewMemoryTokenStore creates an in-memory token store. defaultTTL bounds the
// cache lifetime of entries without their own expiry.
func NewMemoryTokenStore(defaultTTL time.Duration) *MemoryTokenStore {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *TokenEntry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, *TokenEntry](),
	)

	go c.Start()

	return &MemoryTokenStore{
		cache:      c,
		defaultTTL: defaultTTL,
	}
}

// Set caches an entry until its expiry.
func (s *MemoryTokenStore) Set(_ context.Context, token *TokenEntry) error {
	s.cache.Set(HashToken(token.TokenValue), token, clampTTL(token.ExpiresAt, s.defaultTTL))
	return nil
}

// Get returns the cached entry for a token value, or errors.ErrTokenNotFound.
func (s *MemoryTokenStore) Get(_ context.Context, token string) (*TokenEntry, error) {
	item := s.cache.Get(HashToken(token))
	if item == nil {
		return nil, serrors.ErrTokenNotFound
	}

	entry := item.Value()
	entry.LastUsedAt = time.Now().UTC()
	return entry, nil
}

// Delete evicts a token. Unknown values succeed.
func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.cache.Delete(HashToken(token))
	return nil
}

// DeleteExpired forces an eviction sweep; ttlcache also runs its own.
func (s *MemoryTokenStore) DeleteExpired(_ context.Context) error {
	s.cache.DeleteExpired()
	return nil
}

// Clear drops every cached entry.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// Count returns the number of cached entries.
func (s *MemoryTokenStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the background eviction goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}
