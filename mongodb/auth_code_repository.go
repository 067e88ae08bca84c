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

// AuthCodeRepository implements domain.AuthorizationCodeRepository. The code
// value is the document _id, so duplicate inserts fail at the database.
type AuthCodeRepository struct {
	codes *mongo.Collection
}

// NewAuthCodeRepository creates an AuthCodeRepository.
func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{
		codes: db.Collection(CodesCollection),
	}
}

func (r *AuthCodeRepository) SaveAuthCode(ctx context.Context, code *domain.AuthorizationCode) error {
	_, err := r.codes.InsertOne(ctx, code)
	return err
}

func (r *AuthCodeRepository) GetAuthCode(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	var result domain.AuthorizationCode

	err := r.codes.FindOne(ctx, bson.M{"_id": code}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrAuthCodeNotFound
		}
		return nil, err
	}

	return &result, nil
}

// MarkAuthCodeAsUsed flips the used flag with a conditional update, so two
// concurrent exchanges of the same code resolve to exactly one winner.
func (r *AuthCodeRepository) MarkAuthCodeAsUsed(ctx context.Context, code string) error {
	filter := bson.M{"_id": code, "used": false}
	update := bson.M{"$set": bson.M{"used": true}}

	result, err := r.codes.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		// Distinguish an already-used code from an unknown one.
		if err := r.codes.FindOne(ctx, bson.M{"_id": code}).Err(); err == nil {
			return serrors.ErrAuthCodeUsed
		}
		return serrors.ErrAuthCodeNotFound
	}

	return nil
}

func (r *AuthCodeRepository) DeleteExpiredAuthCodes(ctx context.Context) error {
	filter := bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}}

	_, err := r.codes.DeleteMany(ctx, filter)
	return err
}
