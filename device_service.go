package vauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
	applog "go.velum.dev/vauth/log"
)

// Constants for the device authorization grant.
const (
	deviceCodeLength  = 32                                // device_code entropy in bytes
	userCodeLength    = 8                                 // characters in a user_code
	userCodeCharset   = "BCDFGHJKLMNPQRSTVWXYZ0123456789" // avoids ambiguous characters
	userCodeChunkSize = 4                                 // "ABCD-EFGH" grouping
)

// DeviceCodeManager drives the device authorization grant state machine.
type DeviceCodeManager interface {
	GenerateDeviceCode(ctx context.Context, clientID, scope, verificationURI string) (*domain.DeviceCode, error)
	GetDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error)
	GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, error)
	// AuthorizeDeviceCode transitions pending -> authorized for the entry the
	// user identified with their user_code. A second authorization attempt,
	// or one against an expired entry, fails.
	AuthorizeDeviceCode(ctx context.Context, userCode, userID string) (*domain.DeviceCode, error)
	DenyDeviceCode(ctx context.Context, userCode string) (*domain.DeviceCode, error)
	// ClaimDeviceCode atomically consumes an authorized entry for token
	// issuance. Exactly one claim of a given device code succeeds; later
	// claims, and claims of entries in any other state, fail with
	// errors.ErrDeviceFlowTokenExpired.
	ClaimDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error)
	// RemoveDeviceCode is an idempotent delete.
	RemoveDeviceCode(ctx context.Context, deviceCode string) error
	UpdateLastPolled(ctx context.Context, deviceCode string) error
	// IncreaseInterval widens the minimum poll spacing; additive and monotonic.
	IncreaseInterval(ctx context.Context, deviceCode string, bySeconds int) error
	// PollDeviceCode runs one poll step: it returns the record once the grant
	// is authorized, or one of errors.ErrAuthorizationPending,
	// errors.ErrSlowDown, errors.ErrDeviceFlowAccessDenied,
	// errors.ErrDeviceFlowTokenExpired.
	PollDeviceCode(ctx context.Context, deviceCode, clientID string) (*domain.DeviceCode, error)
}

// DeviceCodeService is the default DeviceCodeManager over a
// DeviceAuthorizationRepository.
type DeviceCodeService struct {
	repo            domain.DeviceAuthorizationRepository
	codeTTL         time.Duration
	defaultInterval int
	logger          applog.Logger

	now func() time.Time
}

// NewDeviceCodeService creates a DeviceCodeService. defaultInterval is the
// initial minimum poll spacing in seconds handed to clients.
func NewDeviceCodeService(repo domain.DeviceAuthorizationRepository, codeTTL time.Duration, defaultInterval int, logger applog.Logger) *DeviceCodeService {
	return &DeviceCodeService{
		repo:            repo,
		codeTTL:         codeTTL,
		defaultInterval: defaultInterval,
		logger:          logger,
		now:             time.Now,
	}
}

// GenerateDeviceCode mints a unique device_code/user_code pair in pending
// state. Uniqueness while live is the repository's responsibility; the code
// space makes accidental collision negligible.
func (s *DeviceCodeService) GenerateDeviceCode(ctx context.Context, clientID, scope, verificationURI string) (*domain.DeviceCode, error) {
	deviceCodeVal, err := generateHexCode(deviceCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device_code: %w", err)
	}
	userCodeVal, err := generateUserCode(userCodeLength, userCodeCharset, userCodeChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user_code: %w", err)
	}

	now := s.now().UTC()
	auth := &domain.DeviceCode{
		ID:                      uuid.NewString(),
		DeviceCode:              deviceCodeVal,
		UserCode:                userCodeVal,
		ClientID:                clientID,
		Scope:                   scope,
		VerificationURI:         verificationURI,
		VerificationURIComplete: fmt.Sprintf("%s?user_code=%s", verificationURI, url.QueryEscape(userCodeVal)),
		Status:                  domain.DeviceCodeStatusPending,
		ExpiresAt:               now.Add(s.codeTTL),
		Interval:                s.defaultInterval,
		CreatedAt:               now,
	}

	if err := s.repo.SaveDeviceAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save device authorization: %w", err)
	}

	s.logger.Debug(ctx, "device authorization created", map[string]any{
		"client_id": clientID,
		"user_code": userCodeVal,
	})

	return auth, nil
}

// GetDeviceCode looks up an entry by device_code.
func (s *DeviceCodeService) GetDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	return s.repo.GetDeviceAuthByDeviceCode(ctx, deviceCode)
}

// GetDeviceCodeByUserCode looks up an entry by user_code.
func (s *DeviceCodeService) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, error) {
	return s.repo.GetDeviceAuthByUserCode(ctx, userCode)
}

// AuthorizeDeviceCode records the user's consent. The repository performs the
// pending -> authorized transition atomically, so a concurrent second approval
// or an approval racing expiry cannot both win.
func (s *DeviceCodeService) AuthorizeDeviceCode(ctx context.Context, userCode, userID string) (*domain.DeviceCode, error) {
	auth, err := s.repo.GetDeviceAuthByUserCode(ctx, userCode)
	if err != nil {
		return nil, err
	}

	if auth.Status != domain.DeviceCodeStatusPending {
		return nil, serrors.ErrCannotApproveDeviceAuth
	}

	if auth.Expired(s.now().UTC()) {
		_ = s.repo.UpdateDeviceAuthStatus(ctx, auth.DeviceCode, domain.DeviceCodeStatusExpired)
		return nil, serrors.ErrUserCodeNotFound
	}

	return s.repo.ApproveDeviceAuth(ctx, userCode, userID)
}

// DenyDeviceCode records the user's refusal.
func (s *DeviceCodeService) DenyDeviceCode(ctx context.Context, userCode string) (*domain.DeviceCode, error) {
	return s.repo.DenyDeviceAuth(ctx, userCode)
}

// ClaimDeviceCode consumes an authorized entry before tokens are minted
// against it. The repository removes the entry conditionally, so of several
// redemptions racing on the same device code only one obtains the record; the
// losers see the code as expired.
func (s *DeviceCodeService) ClaimDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	auth, err := s.repo.ClaimDeviceAuth(ctx, deviceCode)
	if err != nil {
		if errors.Is(err, serrors.ErrDeviceCodeNotFound) {
			return nil, serrors.ErrDeviceFlowTokenExpired
		}
		return nil, fmt.Errorf("failed to claim device authorization: %w", err)
	}
	return auth, nil
}

// RemoveDeviceCode deletes an entry. Removing an unknown code succeeds.
func (s *DeviceCodeService) RemoveDeviceCode(ctx context.Context, deviceCode string) error {
	return s.repo.DeleteDeviceAuth(ctx, deviceCode)
}

// UpdateLastPolled records the poll timestamp used to enforce interval spacing.
func (s *DeviceCodeService) UpdateLastPolled(ctx context.Context, deviceCode string) error {
	return s.repo.UpdateDeviceAuthLastPolledAt(ctx, deviceCode, s.now().UTC())
}

// IncreaseInterval applies server-side backoff after repeated slow_down
// responses. The repository guarantees the interval never decreases.
func (s *DeviceCodeService) IncreaseInterval(ctx context.Context, deviceCode string, bySeconds int) error {
	if bySeconds < 0 {
		return fmt.Errorf("interval increase must not be negative")
	}
	return s.repo.IncreaseDeviceAuthInterval(ctx, deviceCode, bySeconds)
}

// PollDeviceCode is one turn of the RFC 8628 polling state machine.
//
// A poll arriving before interval seconds have passed since the previous
// accepted poll yields ErrSlowDown without consuming the poll slot, so a
// client that corrects its pacing recovers on the next attempt. Unknown and
// expired codes both surface as expired_token, matching RFC 8628 Section 3.5.
func (s *DeviceCodeService) PollDeviceCode(ctx context.Context, deviceCode, clientID string) (*domain.DeviceCode, error) {
	auth, err := s.repo.GetDeviceAuthByDeviceCode(ctx, deviceCode)
	if err != nil {
		if errors.Is(err, serrors.ErrDeviceCodeNotFound) {
			return nil, serrors.ErrDeviceFlowTokenExpired
		}
		return nil, fmt.Errorf("failed to look up device authorization: %w", err)
	}

	if auth.ClientID != clientID {
		return nil, serrors.NewInvalidClient("device code was issued to another client")
	}

	now := s.now().UTC()
	if auth.Expired(now) {
		_ = s.repo.UpdateDeviceAuthStatus(ctx, auth.DeviceCode, domain.DeviceCodeStatusExpired)
		return nil, serrors.ErrDeviceFlowTokenExpired
	}

	switch auth.Status {
	case domain.DeviceCodeStatusPending:
		// The pacing gate is a single repository operation: concurrent polls
		// that would both read a stale LastPolledAt cannot both pass it.
		accepted, err := s.repo.RecordDeviceAuthPoll(ctx, auth.DeviceCode, now)
		if err != nil {
			return nil, fmt.Errorf("failed to record device poll: %w", err)
		}
		if !accepted {
			return nil, serrors.ErrSlowDown
		}
		return nil, serrors.ErrAuthorizationPending

	case domain.DeviceCodeStatusAuthorized:
		return auth, nil

	case domain.DeviceCodeStatusDenied:
		return nil, serrors.ErrDeviceFlowAccessDenied

	case domain.DeviceCodeStatusExpired:
		return nil, serrors.ErrDeviceFlowTokenExpired

	default:
		return nil, serrors.NewServerError("unexpected device authorization status")
	}
}

// generateHexCode returns a hex-encoded random string of length bytes.
func generateHexCode(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateUserCode returns a short, human-enterable code grouped with dashes,
// e.g. "ABCD-EFGH".
func generateUserCode(length int, charset string, chunkSize int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	for i := 0; i < length; i++ {
		b[i] = charset[int(b[i])%len(charset)]
	}

	if chunkSize <= 0 {
		return string(b), nil
	}

	var result strings.Builder
	for i, char := range b {
		if i > 0 && i%chunkSize == 0 {
			result.WriteString("-")
		}
		result.WriteByte(char)
	}
	return result.String(), nil
}
