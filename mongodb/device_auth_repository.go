package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.velum.dev/vauth/domain"
	serrors "go.velum.dev/vauth/errors"
)

// DeviceAuthRepository implements domain.DeviceAuthorizationRepository.
// Approval, denial, redemption claims and poll pacing are all conditional
// single-document operations, so each race on one device code has exactly
// one winner.
type DeviceAuthRepository struct {
	deviceAuth *mongo.Collection
}

// NewDeviceAuthRepository creates a DeviceAuthRepository.
func NewDeviceAuthRepository(db *mongo.Database) *DeviceAuthRepository {
	return &DeviceAuthRepository{
		deviceAuth: db.Collection(DeviceAuthCollection),
	}
}

func (r *DeviceAuthRepository) SaveDeviceAuth(ctx context.Context, auth *domain.DeviceCode) error {
	_, err := r.deviceAuth.InsertOne(ctx, auth)
	return err
}

func (r *DeviceAuthRepository) GetDeviceAuthByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	var result domain.DeviceCode

	err := r.deviceAuth.FindOne(ctx, bson.M{"device_code": deviceCode}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrDeviceCodeNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *DeviceAuthRepository) GetDeviceAuthByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, error) {
	var result domain.DeviceCode

	err := r.deviceAuth.FindOne(ctx, bson.M{"user_code": userCode}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrUserCodeNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *DeviceAuthRepository) ApproveDeviceAuth(ctx context.Context, userCode, userID string) (*domain.DeviceCode, error) {
	filter := bson.M{
		"user_code": userCode,
		"status":    domain.DeviceCodeStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":  domain.DeviceCodeStatusAuthorized,
			"user_id": userID,
		},
	}
	opt := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.DeviceCode
	err := r.deviceAuth.FindOneAndUpdate(ctx, filter, update, opt).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrCannotApproveDeviceAuth
		}
		return nil, err
	}

	return &updated, nil
}

func (r *DeviceAuthRepository) DenyDeviceAuth(ctx context.Context, userCode string) (*domain.DeviceCode, error) {
	filter := bson.M{
		"user_code": userCode,
		"status":    domain.DeviceCodeStatusPending,
	}
	update := bson.M{
		"$set": bson.M{"status": domain.DeviceCodeStatusDenied},
	}
	opt := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.DeviceCode
	err := r.deviceAuth.FindOneAndUpdate(ctx, filter, update, opt).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrCannotApproveDeviceAuth
		}
		return nil, err
	}

	return &updated, nil
}

// ClaimDeviceAuth removes an authorized entry with a conditional
// FindOneAndDelete. Concurrent redemptions of one device code leave exactly
// one caller holding the document; everyone else misses.
func (r *DeviceAuthRepository) ClaimDeviceAuth(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	filter := bson.M{
		"device_code": deviceCode,
		"status":      domain.DeviceCodeStatusAuthorized,
	}

	var claimed domain.DeviceCode
	err := r.deviceAuth.FindOneAndDelete(ctx, filter).Decode(&claimed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrDeviceCodeNotFound
		}
		return nil, err
	}

	return &claimed, nil
}

func (r *DeviceAuthRepository) UpdateDeviceAuthStatus(ctx context.Context, deviceCode string, status domain.DeviceCodeStatus) error {
	filter := bson.M{"device_code": deviceCode}
	update := bson.M{"$set": bson.M{"status": status}}

	result, err := r.deviceAuth.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrDeviceCodeNotFound
	}

	return nil
}

func (r *DeviceAuthRepository) UpdateDeviceAuthLastPolledAt(ctx context.Context, deviceCode string, polledAt time.Time) error {
	filter := bson.M{"device_code": deviceCode}
	update := bson.M{"$set": bson.M{"last_polled_at": polledAt}}

	result, err := r.deviceAuth.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrDeviceCodeNotFound
	}

	return nil
}

// RecordDeviceAuthPoll applies the pacing gate with one conditional update.
// The filter admits the poll only once the stored last_polled_at plus the
// interval (seconds, compared in milliseconds) has passed, so two polls
// racing on one device code cannot both be accepted. The zero timestamp of a
// never-polled entry always passes.
func (r *DeviceAuthRepository) RecordDeviceAuthPoll(ctx context.Context, deviceCode string, polledAt time.Time) (bool, error) {
	filter := bson.M{
		"device_code": deviceCode,
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$last_polled_at", bson.M{"$multiply": bson.A{"$interval", 1000}}}},
			polledAt,
		}},
	}
	update := bson.M{"$set": bson.M{"last_polled_at": polledAt}}

	result, err := r.deviceAuth.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}

	return result.MatchedCount > 0, nil
}

// IncreaseDeviceAuthInterval widens the poll interval with $inc; the interval
// only ever grows.
func (r *DeviceAuthRepository) IncreaseDeviceAuthInterval(ctx context.Context, deviceCode string, by int) error {
	if by <= 0 {
		return nil
	}

	filter := bson.M{"device_code": deviceCode}
	update := bson.M{"$inc": bson.M{"interval": by}}

	result, err := r.deviceAuth.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrDeviceCodeNotFound
	}

	return nil
}

func (r *DeviceAuthRepository) DeleteDeviceAuth(ctx context.Context, deviceCode string) error {
	_, err := r.deviceAuth.DeleteOne(ctx, bson.M{"device_code": deviceCode})
	return err
}

func (r *DeviceAuthRepository) DeleteExpiredDeviceAuths(ctx context.Context) error {
	filter := bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}}

	_, err := r.deviceAuth.DeleteMany(ctx, filter)
	return err
}
