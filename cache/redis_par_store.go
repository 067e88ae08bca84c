package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// RedisPARStore implements domain.PARRequestStore over Redis, so a pushed
// request can be resolved by any replica behind a load balancer.
type RedisPARStore struct {
	client *redis.Client
	prefix string
}

// NewRedisPARStore creates a Redis-backed PAR store.
func NewRedisPARStore(client *redis.Client, prefix string) *RedisPARStore {
	return &RedisPARStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisPARStore) key(requestURI string) string {
	return fmt.Sprintf("%s:par:%s", s.prefix, requestURI)
}

// Store keeps a pushed request under its request_uri with a Redis key TTL.
func (s *RedisPARStore) Store(ctx context.Context, requestURI string, req *domain.PARRequest, ttl time.Duration) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal pushed request: %w", err)
	}

	if err := s.client.Set(ctx, s.key(requestURI), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pushed request in redis: %w", err)
	}
	return nil
}

// Get returns the stored request, or errors.ErrPARRequestNotFound for absent
// and expired handles alike.
func (s *RedisPARStore) Get(ctx context.Context, requestURI string) (*domain.PARRequest, error) {
	payload, err := s.client.Get(ctx, s.key(requestURI)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, serrors.ErrPARRequestNotFound
		}
		return nil, fmt.Errorf("failed to read pushed request from redis: %w", err)
	}

	var req domain.PARRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pushed request: %w", err)
	}
	return &req, nil
}

// Delete removes a stored request. Unknown handles succeed.
func (s *RedisPARStore) Delete(ctx context.Context, requestURI string) error {
	if err := s.client.Del(ctx, s.key(requestURI)).Err(); err != nil {
		return fmt.Errorf("failed to delete pushed request from redis: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts entries by key TTL.
func (s *RedisPARStore) DeleteExpired(_ context.Context) error {
	return nil
}
