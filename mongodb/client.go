// Package mongodb implements the domain repositories over MongoDB. State
// transitions that must be atomic per key (single-use codes, device grant
// approvals) use conditional FindOneAndUpdate filters so the database
// arbitrates races.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// Collection names used by the repositories.
const (
	ClientsCollection    = "oauth_clients"
	CodesCollection      = "oauth_auth_codes"
	TokensCollection     = "oauth_tokens"
	DeviceAuthCollection = "device_authorizations"
)

// Connect establishes an instrumented MongoDB connection and verifies it with
// a ping against the primary.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongodb primary: %w", err)
	}

	return client, client.Database(dbName), nil
}

// Ping verifies the connection, for health checks. A short timeout keeps a
// degraded database from stalling the probe.
func Ping(ctx context.Context, client *mongo.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}
