package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/model"
)

// CreateSession inserts a new session document.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	if _, err := db.sessions.InsertOne(ctx, s); err != nil {
		return fmt.Errorf("mongo: inserting session for user %s: %w", s.UserID, err)
	}
	return nil
}

// GetSession returns the session with the given ID, revoked or not.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := db.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("mongo: getting session %s: %w", id, err)
	}
	return &s, nil
}

// RevokeSession marks a session revoked, keeping the first revocation time.
func (db *DB) RevokeSession(ctx context.Context, id string, at time.Time) error {
	res, err := db.sessions.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.A{bson.D{{Key: "$set", Value: bson.D{
			{Key: "revokedAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$revokedAt", at}}}},
		}}}},
	)
	if err != nil {
		return fmt.Errorf("mongo: revoking session %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("session", id)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before the given time.
func (db *DB) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.sessions.DeleteMany(ctx,
		bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lt", Value: before}}}})
	if err != nil {
		return 0, fmt.Errorf("mongo: deleting expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}
