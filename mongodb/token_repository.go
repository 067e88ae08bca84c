package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// TokenRepository implements domain.TokenRepository. Revocation deletes the
// document, so a revoked token and an unknown one are indistinguishable.
type TokenRepository struct {
	tokens *mongo.Collection
}

// NewTokenRepository creates a TokenRepository.
func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{
		tokens: db.Collection(TokensCollection),
	}
}

func (r *TokenRepository) StoreToken(ctx context.Context, token *domain.Token) error {
	_, err := r.tokens.InsertOne(ctx, token)
	return err
}

func (r *TokenRepository) GetAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return r.getByType(ctx, tokenValue, domain.TokenTypeAccess)
}

func (r *TokenRepository) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	return r.getByType(ctx, tokenValue, domain.TokenTypeRefresh)
}

func (r *TokenRepository) getByType(ctx context.Context, tokenValue, tokenType string) (*domain.Token, error) {
	var result domain.Token

	filter := bson.M{"token_value": tokenValue, "token_type": tokenType}
	err := r.tokens.FindOne(ctx, filter).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrTokenNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *TokenRepository) UpdateRefreshTokenScope(ctx context.Context, tokenValue, scope string) error {
	filter := bson.M{"token_value": tokenValue, "token_type": domain.TokenTypeRefresh}
	update := bson.M{"$set": bson.M{"scope": scope}}

	result, err := r.tokens.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrTokenNotFound
	}

	return nil
}

// RevokeToken deletes the document. Unknown values succeed, so probing the
// revocation path leaks nothing.
func (r *TokenRepository) RevokeToken(ctx context.Context, tokenValue string) error {
	_, err := r.tokens.DeleteOne(ctx, bson.M{"token_value": tokenValue})
	return err
}

// DeleteExpiredTokens sweeps tokens past their expiry. Refresh tokens carry no
// expires_at and are never matched.
func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context) error {
	filter := bson.M{
		"expires_at": bson.M{
			"$exists": true,
			"$lte":    time.Now().UTC(),
		},
	}

	_, err := r.tokens.DeleteMany(ctx, filter)
	return err
}
