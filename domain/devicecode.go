package domain

import "time"

// DeviceCodeStatus represents the status of a device authorization request.
type DeviceCodeStatus string

const (
	DeviceCodeStatusPending    DeviceCodeStatus = "pending"
	DeviceCodeStatusAuthorized DeviceCodeStatus = "authorized"
	DeviceCodeStatusDenied     DeviceCodeStatus = "denied"
	DeviceCodeStatusExpired    DeviceCodeStatus = "expired"
)

// DeviceCode holds the information for a device authorization grant (RFC 8628).
// The only permitted transitions are pending -> authorized and pending -> denied;
// everything else ends in removal.
type DeviceCode struct {
	ID                      string           `bson:"_id" json:"id"`
	DeviceCode              string           `bson:"device_code" json:"device_code"` // The code the device uses to poll
	UserCode                string           `bson:"user_code" json:"user_code"`     // The code the user enters on another device
	ClientID                string           `bson:"client_id" json:"client_id"`
	Scope                   string           `bson:"scope" json:"scope"`
	VerificationURI         string           `bson:"verification_uri" json:"verification_uri"`
	VerificationURIComplete string           `bson:"verification_uri_complete,omitempty" json:"verification_uri_complete,omitempty"`
	Status                  DeviceCodeStatus `bson:"status" json:"status"`
	UserID                  string           `bson:"user_id,omitempty" json:"user_id,omitempty"` // Populated once authorized
	ExpiresAt               time.Time        `bson:"expires_at" json:"expires_at"`               // Covers both device_code and user_code
	Interval                int              `bson:"interval" json:"interval"`                   // Minimum poll spacing in seconds
	CreatedAt               time.Time        `bson:"created_at" json:"created_at"`
	LastPolledAt            time.Time        `bson:"last_polled_at,omitempty" json:"last_polled_at,omitempty"`
}

// Expired reports whether the device code is past its expiry, boundary inclusive.
func (d *DeviceCode) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}
