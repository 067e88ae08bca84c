package memstore

import (
	"context"
	"sync"
	"time"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// DeviceAuthStore is an in-memory DeviceAuthorizationRepository. A single
// mutex serializes every transition, which satisfies the per-code atomicity
// the repository contract requires.
type DeviceAuthStore struct {
	mu         sync.Mutex
	byDevice   map[string]*domain.DeviceCode
	userToCode map[string]string // user_code -> device_code
}

// NewDeviceAuthStore creates an empty DeviceAuthStore.
func NewDeviceAuthStore() *DeviceAuthStore {
	return &DeviceAuthStore{
		byDevice:   make(map[string]*domain.DeviceCode),
		userToCode: make(map[string]string),
	}
}

// SaveDeviceAuth stores an entry indexed by both codes.
func (s *DeviceAuthStore) SaveDeviceAuth(_ context.Context, auth *domain.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *auth
	s.byDevice[auth.DeviceCode] = &clone
	s.userToCode[auth.UserCode] = auth.DeviceCode
	return nil
}

// GetDeviceAuthByDeviceCode returns a copy of the entry for a device_code.
func (s *DeviceAuthStore) GetDeviceAuthByDeviceCode(_ context.Context, deviceCode string) (*domain.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byDevice[deviceCode]
	if !ok {
		return nil, serrors.ErrDeviceCodeNotFound
	}
	clone := *stored
	return &clone, nil
}

// GetDeviceAuthByUserCode returns a copy of the entry for a user_code.
func (s *DeviceAuthStore) GetDeviceAuthByUserCode(_ context.Context, userCode string) (*domain.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.lookupByUserCode(userCode)
	if err != nil {
		return nil, err
	}
	clone := *stored
	return &clone, nil
}

func (s *DeviceAuthStore) lookupByUserCode(userCode string) (*domain.DeviceCode, error) {
	deviceCode, ok := s.userToCode[userCode]
	if !ok {
		return nil, serrors.ErrUserCodeNotFound
	}
	stored, ok := s.byDevice[deviceCode]
	if !ok {
		return nil, serrors.ErrUserCodeNotFound
	}
	return stored, nil
}

// ApproveDeviceAuth transitions pending -> authorized under the store lock.
// Expiry is the service's call; the store only guards the state transition.
func (s *DeviceAuthStore) ApproveDeviceAuth(_ context.Context, userCode, userID string) (*domain.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.lookupByUserCode(userCode)
	if err != nil {
		return nil, err
	}
	if stored.Status != domain.DeviceCodeStatusPending {
		return nil, serrors.ErrCannotApproveDeviceAuth
	}

	stored.Status = domain.DeviceCodeStatusAuthorized
	stored.UserID = userID
	clone := *stored
	return &clone, nil
}

// ClaimDeviceAuth removes an authorized entry and returns it, all under the
// store lock, so only one of several racing claims succeeds.
func (s *DeviceAuthStore) ClaimDeviceAuth(_ context.Context, deviceCode string) (*domain.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byDevice[deviceCode]
	if !ok || stored.Status != domain.DeviceCodeStatusAuthorized {
		return nil, serrors.ErrDeviceCodeNotFound
	}

	delete(s.userToCode, stored.UserCode)
	delete(s.byDevice, deviceCode)
	clone := *stored
	return &clone, nil
}

// DenyDeviceAuth transitions pending -> denied under the store lock.
func (s *DeviceAuthStore) DenyDeviceAuth(_ context.Context, userCode string) (*domain.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.lookupByUserCode(userCode)
	if err != nil {
		return nil, err
	}
	if stored.Status != domain.DeviceCodeStatusPending {
		return nil, serrors.ErrCannotApproveDeviceAuth
	}

	stored.Status = domain.DeviceCodeStatusDenied
	clone := *stored
	return &clone, nil
}

// UpdateDeviceAuthStatus sets the status unconditionally.
func (s *DeviceAuthStore) UpdateDeviceAuthStatus(_ context.Context, deviceCode string, status domain.DeviceCodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byDevice[deviceCode]
	if !ok {
		return serrors.ErrDeviceCodeNotFound
	}
	stored.Status = status
	return nil
}

// UpdateDeviceAuthLastPolledAt records the timestamp of an accepted poll.
func (s *DeviceAuthStore) UpdateDeviceAuthLastPolledAt(_ context.Context, deviceCode string, polledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byDevice[deviceCode]
	if !ok {
		return serrors.ErrDeviceCodeNotFound
	}
	stored.LastPolledAt = polledAt
	return nil
}

// RecordDeviceAuthPoll checks the pacing window and records the poll as one
// operation under the store lock. A zero LastPolledAt always passes.
func (s *DeviceAuthStore) RecordDeviceAuthPoll(_ context.Context, deviceCode string, polledAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byDevice[deviceCode]
	if !ok {
		return false, serrors.ErrDeviceCodeNotFound
	}

	if !stored.LastPolledAt.IsZero() && polledAt.Before(stored.LastPolledAt.Add(time.Duration(stored.Interval)*time.Second)) {
		return false, nil
	}

	stored.LastPolledAt = polledAt
	return true, nil
}

// IncreaseDeviceAuthInterval widens the poll interval; it never shrinks.
func (s *DeviceAuthStore) IncreaseDeviceAuthInterval(_ context.Context, deviceCode string, by int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byDevice[deviceCode]
	if !ok {
		return serrors.ErrDeviceCodeNotFound
	}
	if by > 0 {
		stored.Interval += by
	}
	return nil
}

// DeleteDeviceAuth removes an entry and its user_code index. Unknown codes
// succeed.
func (s *DeviceAuthStore) DeleteDeviceAuth(_ context.Context, deviceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.byDevice[deviceCode]; ok {
		delete(s.userToCode, stored.UserCode)
		delete(s.byDevice, deviceCode)
	}
	return nil
}

// DeleteExpiredDeviceAuths removes every entry past its expiry.
func (s *DeviceAuthStore) DeleteExpiredDeviceAuths(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for deviceCode, stored := range s.byDevice {
		if stored.Expired(now) {
			delete(s.userToCode, stored.UserCode)
			delete(s.byDevice, deviceCode)
		}
	}
	return nil
}
