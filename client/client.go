// Package client holds OAuth 2.0 client metadata and the store contract the
// engine validates against.
package client

import "time"

// ClientType represents the type of OAuth2 client
type ClientType string

const (
	// Confidential clients can securely store secrets
	Confidential ClientType = "confidential"
	// Public clients cannot securely store secrets (mobile apps, SPAs)
	Public ClientType = "public"
)

// Client represents an OAuth2 client application.
type Client struct {
	ID                string     `bson:"client_id" json:"client_id"`
	SecretHash        string     `bson:"client_secret_hash,omitempty" json:"-"` // bcrypt hash, confidential clients only
	Type              ClientType `bson:"client_type" json:"type"`
	Name              string     `bson:"client_name" json:"name"`
	RedirectURIs      []string   `bson:"redirect_uris" json:"redirect_uris"`
	AllowedScopes     []string   `bson:"allowed_scopes" json:"allowed_scopes"`
	AllowedGrantTypes []string   `bson:"allowed_grant_types" json:"allowed_grant_types"`
	RequirePKCE       bool       `bson:"require_pkce" json:"require_pkce"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at" json:"updated_at"`
}

// HasRedirectURI reports whether uri exactly matches a registered redirect
// URI. No normalization: scheme, host case and trailing slashes all count.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HasGrantType reports whether the client may use the given grant type.
func (c *Client) HasGrantType(grantType string) bool {
	for _, g := range c.AllowedGrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// AllowsScope reports whether every requested scope token is registered for
// the client. An empty request is always allowed.
func (c *Client) AllowsScope(requested []string) bool {
	for _, req := range requested {
		found := false
		for _, allowed := range c.AllowedScopes {
			if req == allowed {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
