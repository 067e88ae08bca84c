package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// MemoryPARStore implements domain.PARRequestStore over ttlcache. Each entry
// carries its own TTL; expiry is handled by the cache, so an expired handle
// simply misses.
type MemoryPARStore struct {
	cache *ttlcache.Cache[string, *domain.PARRequest]
}

// NewMemoryPARStore creates an in-memory PAR store.
func NewMemoryPARStore() *MemoryPARStore {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.PARRequest](),
	)

	go c.Start()

	return &MemoryPARStore{cache: c}
}

// Store keeps a pushed request under its request_uri for ttl.
func (s *MemoryPARStore) Store(_ context.Context, requestURI string, req *domain.PARRequest, ttl time.Duration) error {
	s.cache.Set(requestURI, req, ttl)
	return nil
}

// Get returns the stored request, or errors.ErrPARRequestNotFound for absent
// and expired handles alike.
func (s *MemoryPARStore) Get(_ context.Context, requestURI string) (*domain.PARRequest, error) {
	item := s.cache.Get(requestURI)
	if item == nil {
		return nil, serrors.ErrPARRequestNotFound
	}
	return item.Value(), nil
}

// Delete removes a stored request. Unknown handles succeed.
func (s *MemoryPARStore) Delete(_ context.Context, requestURI string) error {
	s.cache.Delete(requestURI)
	return nil
}

// DeleteExpired forces an eviction sweep; ttlcache also runs its own.
func (s *MemoryPARStore) DeleteExpired(_ context.Context) error {
	s.cache.DeleteExpired()
	return nil
}

// Close stops the background eviction goroutine.
func (s *MemoryPARStore) Close() error {
	s.cache.Stop()
	return nil
}
