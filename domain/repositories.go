package domain

import (
	"context"
	"time"
)

// AuthorizationCodeRepository persists single-use authorization codes.
type AuthorizationCodeRepository interface {
	// SaveAuthCode stores a freshly minted code.
	SaveAuthCode(ctx context.Context, code *AuthorizationCode) error
	// GetAuthCode returns errors.ErrAuthCodeNotFound for unknown codes.
	GetAuthCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// MarkAuthCodeAsUsed atomically flips the used flag. It fails for unknown
	// codes and for codes that are already used, so two concurrent exchanges
	// of the same code cannot both succeed.
	MarkAuthCodeAsUsed(ctx context.Context, code string) error
	// DeleteExpiredAuthCodes is a best-effort sweep for backends without
	// native TTL support.
	DeleteExpiredAuthCodes(ctx context.Context) error
}

// TokenRepository persists access and refresh tokens.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *Token) error
	// GetAccessToken and GetRefreshToken return errors.ErrTokenNotFound for
	// unknown or revoked values; not-found is a normal outcome.
	GetAccessToken(ctx context.Context, tokenValue string) (*Token, error)
	GetRefreshToken(ctx context.Context, tokenValue string) (*Token, error)
	// UpdateRefreshTokenScope replaces the scope of a stored refresh token in
	// place. Scope-escalation policing happens in the grant orchestrator.
	UpdateRefreshTokenScope(ctx context.Context, tokenValue, scope string) error
	// RevokeToken removes the token so later lookups miss. Revoking an
	// unknown value is not an error.
	RevokeToken(ctx context.Context, tokenValue string) error
	DeleteExpiredTokens(ctx context.Context) error
}

// DeviceAuthorizationRepository persists device authorization grants. Every
// read-modify-write on a single device code must be atomic per key: concurrent
// polls and a concurrent user approval must never produce a lost update.
type DeviceAuthorizationRepository interface {
	SaveDeviceAuth(ctx context.Context, auth *DeviceCode) error
	// Lookups return errors.ErrDeviceCodeNotFound / errors.ErrUserCodeNotFound
	// rather than failing; policy on unknown codes belongs to the caller.
	GetDeviceAuthByDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)
	GetDeviceAuthByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)
	// ApproveDeviceAuth transitions pending -> authorized and records the
	// user, atomically. Approving a non-pending entry fails with
	// errors.ErrCannotApproveDeviceAuth. Expiry is policed by the service
	// against its own clock before the transition is attempted.
	ApproveDeviceAuth(ctx context.Context, userCode, userID string) (*DeviceCode, error)
	// DenyDeviceAuth transitions pending -> denied atomically.
	DenyDeviceAuth(ctx context.Context, userCode string) (*DeviceCode, error)
	// ClaimDeviceAuth atomically removes an authorized entry and returns it.
	// Exactly one caller can claim a given device code; any later claim, and
	// any claim of a non-authorized entry, fails with
	// errors.ErrDeviceCodeNotFound.
	ClaimDeviceAuth(ctx context.Context, deviceCode string) (*DeviceCode, error)
	UpdateDeviceAuthStatus(ctx context.Context, deviceCode string, status DeviceCodeStatus) error
	UpdateDeviceAuthLastPolledAt(ctx context.Context, deviceCode string, polledAt time.Time) error
	// RecordDeviceAuthPoll applies the pacing gate in one operation: when at
	// least interval seconds have passed since the previous accepted poll the
	// timestamp is recorded and true is returned; otherwise nothing is
	// written and false is returned. Because check and record are a single
	// per-key operation, two concurrent polls cannot both be accepted.
	RecordDeviceAuthPoll(ctx context.Context, deviceCode string, polledAt time.Time) (bool, error)
	// IncreaseDeviceAuthInterval adds the given number of seconds to the poll
	// interval. The interval never decreases.
	IncreaseDeviceAuthInterval(ctx context.Context, deviceCode string, by int) error
	// DeleteDeviceAuth is idempotent.
	DeleteDeviceAuth(ctx context.Context, deviceCode string) error
	DeleteExpiredDeviceAuths(ctx context.Context) error
}

// PARRequestStore keeps pushed authorization requests under their request_uri
// for a short TTL. An expired entry must be indistinguishable from a missing
// one; lazy deletion is acceptable.
type PARRequestStore interface {
	Store(ctx context.Context, requestURI string, req *PARRequest, ttl time.Duration) error
	// Get returns errors.ErrPARRequestNotFound for absent or expired entries.
	Get(ctx context.Context, requestURI string) (*PARRequest, error)
	Delete(ctx context.Context, requestURI string) error
	// DeleteExpired may be a no-op for backends with native expiring storage.
	DeleteExpired(ctx context.Context) error
}
