package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	serrors "go.velum.dev/vauth/errors"
	"golang.org/x/crypto/bcrypt"
)

// MemoryStore is a mutex-guarded in-memory ClientStore, suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*Client),
	}
}

// CreateClient registers a client. The Secret field of confidential clients
// must already be a bcrypt hash; see HashSecret.
func (s *MemoryStore) CreateClient(_ context.Context, cl *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[cl.ID]; exists {
		return fmt.Errorf("client %q already exists", cl.ID)
	}

	now := time.Now().UTC()
	cl.CreatedAt = now
	cl.UpdatedAt = now
	s.clients[cl.ID] = cl
	return nil
}

// GetClient looks up a client by ID.
func (s *MemoryStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cl, ok := s.clients[clientID]
	if !ok {
		return nil, serrors.ErrClientNotFound
	}
	return cl, nil
}

// UpdateClient replaces a stored client.
func (s *MemoryStore) UpdateClient(_ context.Context, cl *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[cl.ID]; !ok {
		return serrors.ErrClientNotFound
	}
	cl.UpdatedAt = time.Now().UTC()
	s.clients[cl.ID] = cl
	return nil
}

// DeleteClient removes a client; unknown IDs succeed.
func (s *MemoryStore) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, clientID)
	return nil
}

// ValidateClient authenticates a client. Confidential clients must present
// the secret matching their stored bcrypt hash; public clients must not
// present one.
func (s *MemoryStore) ValidateClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	cl, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if cl.Type == Public {
		if clientSecret != "" {
			return nil, serrors.NewInvalidClient("public clients do not authenticate with a secret")
		}
		return cl, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cl.SecretHash), []byte(clientSecret)); err != nil {
		return nil, serrors.NewInvalidClient("invalid client credentials")
	}

	return cl, nil
}

// HashSecret returns the bcrypt hash to store for a confidential client secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}
