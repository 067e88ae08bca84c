package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	serrors "go.velum.dev/vauth/errors"
)

// RedisTokenStore implements TokenStore over Redis, for deployments where
// token lookups must survive process restarts or be shared across replicas.
type RedisTokenStore struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisTokenStore creates a Redis-backed token store. prefix namespaces the
// keys so one Redis instance can serve several deployments.
func NewRedisTokenStore(client *redis.Client, prefix string, defaultTTL time.Duration) *RedisTokenStore {
	return &RedisTokenStore{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (s *RedisTokenStore) key(token string) string {
	return fmt.Sprintf("%s:token:%s", s.prefix, HashToken(token))
}

// Set stores an entry with a TTL derived from its expiry, so Redis evicts it
// on its own once the token is dead.
func (s *RedisTokenStore) Set(ctx context.Context, token *TokenEntry) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token entry: %w", err)
	}

	ttl := clampTTL(token.ExpiresAt, s.defaultTTL)
	if err := s.client.Set(ctx, s.key(token.TokenValue), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token entry in redis: %w", err)
	}
	return nil
}

// Get returns the cached entry for a token value, or errors.ErrTokenNotFound.
func (s *RedisTokenStore) Get(ctx context.Context, token string) (*TokenEntry, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, serrors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token entry from redis: %w", err)
	}

	var entry TokenEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token entry: %w", err)
	}
	entry.LastUsedAt = time.Now().UTC()
	return &entry, nil
}

// Delete evicts a token. Unknown values succeed.
func (s *RedisTokenStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete token entry from redis: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts entries by key TTL.
func (s *RedisTokenStore) DeleteExpired(_ context.Context) error {
	return nil
}

// Clear removes every entry under this store's prefix.
func (s *RedisTokenStore) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("%s:token:*", s.prefix)
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan token keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete token keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Count returns the number of entries under this store's prefix.
func (s *RedisTokenStore) Count(ctx context.Context) int {
	pattern := fmt.Sprintf("%s:token:*", s.prefix)
	var count int
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count
		}
	}
}
