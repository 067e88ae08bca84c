package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/crypto/bcrypt"

	"go.velum.dev/vauth/client"
	serrors "go.velum.dev/vauth/errors"
)

// ClientRepository implements client.ClientStore over MongoDB.
type ClientRepository struct {
	clients *mongo.Collection
}

// NewClientRepository creates a ClientRepository.
func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		clients: db.Collection(ClientsCollection),
	}
}

func (r *ClientRepository) CreateClient(ctx context.Context, cl *client.Client) error {
	now := time.Now().UTC()
	cl.CreatedAt = now
	cl.UpdatedAt = now

	_, err := r.clients.InsertOne(ctx, cl)
	return err
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*client.Client, error) {
	var result client.Client

	err := r.clients.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrClientNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *ClientRepository) UpdateClient(ctx context.Context, cl *client.Client) error {
	cl.UpdatedAt = time.Now().UTC()

	result, err := r.clients.ReplaceOne(ctx, bson.M{"client_id": cl.ID}, cl)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrClientNotFound
	}

	return nil
}

func (r *ClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	_, err := r.clients.DeleteOne(ctx, bson.M{"client_id": clientID})
	return err
}

// ValidateClient authenticates a client against its stored registration.
// Public clients authenticate by identity alone and must not send a secret.
func (r *ClientRepository) ValidateClient(ctx context.Context, clientID, clientSecret string) (*client.Client, error) {
	cl, err := r.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if cl.Type == client.Public {
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
