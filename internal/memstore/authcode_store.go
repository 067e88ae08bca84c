// Package memstore provides mutex-guarded in-memory implementations of the
// domain repositories, for tests and single-process deployments.
package memstore

import (
	"context"
	"sync"
	"time"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// AuthCodeStore is an in-memory AuthorizationCodeRepository.
type AuthCodeStore struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthorizationCode
}

// NewAuthCodeStore creates an empty AuthCodeStore.
func NewAuthCodeStore() *AuthCodeStore {
	return &AuthCodeStore{
		codes: make(map[string]*domain.AuthorizationCode),
	}
}

// SaveAuthCode stores a code keyed by its value.
func (s *AuthCodeStore) SaveAuthCode(_ context.Context, code *domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *code
	s.codes[code.Code] = &clone
	return nil
}

// GetAuthCode returns a copy of the stored code.
func (s *AuthCodeStore) GetAuthCode(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return nil, serrors.ErrAuthCodeNotFound
	}
	clone := *stored
	return &clone, nil
}

// MarkAuthCodeAsUsed flips the used flag under the store lock, so of two
// concurrent exchanges only one succeeds.
func (s *AuthCodeStore) MarkAuthCodeAsUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return serrors.ErrAuthCodeNotFound
	}
	if stored.Used {
		return serrors.ErrAuthCodeUsed
	}
	stored.Used = true
	return nil
}

// DeleteExpiredAuthCodes removes every code past its expiry.
func (s *AuthCodeStore) DeleteExpiredAuthCodes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for code, stored := range s.codes {
		if stored.Expired(now) {
			delete(s.codes, code)
		}
	}
	return nil
}
