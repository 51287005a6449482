// Package mongo implements the repository interfaces on MongoDB.
//
// It is the alternative to the SQLite backend for deployments that already
// keep user documents in MongoDB. Documents use the same field names the
// JSON API exposes (oidcId, lastLogin, tasksCompleted, ...).
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sakif/questlog/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// DB holds a connected client and the two collections we use.
type DB struct {
	client   *mongo.Client
	users    *mongo.Collection
	sessions *mongo.Collection
}

// New connects to uri, verifies the connection and ensures indexes exist.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	db := &DB{
		client:   client,
		users:    client.Database(database).Collection(usersCollection),
		sessions: client.Database(database).Collection(sessionsCollection),
	}

	if err := db.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating indexes: %w", err)
	}

	return db, nil
}

// Close disconnects the client.
func (db *DB) Close() error {
	return db.client.Disconnect(context.Background())
}

// ensureIndexes creates the indexes the repositories depend on. CreateOne is
// a no-op when an identical index already exists.
func (db *DB) ensureIndexes(ctx context.Context) error {
	// The upsert in user.go needs oidcId to be unique.
	_, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "oidcId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.oidcId: %w", err)
	}

	_, err = db.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	return nil
}
