package client

import "context"

// ClientStore provides client metadata to the engine's validation steps.
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	// GetClient returns errors.ErrClientNotFound for unknown IDs.
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, clientID string) error
	// ValidateClient authenticates a confidential client by its presented
	// secret. Public clients authenticate by identity alone.
	ValidateClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
}
