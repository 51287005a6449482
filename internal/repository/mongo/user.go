package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/model"
)

// UpsertLogin records a login for user.OIDCID with one FindOneAndUpdate.
//
// $set only touches lastLogin; everything else is written through
// $setOnInsert and therefore only lands when the document is created. Two
// concurrent upserts for a new identity can both miss and both try to
// insert; the unique index rejects the loser with a duplicate key error, and
// retrying once turns it into a plain update.
func (db *DB) UpsertLogin(ctx context.Context, user *model.User) (*model.User, bool, error) {
	newID := xid.New().String()

	tasks := user.Tasks
	if tasks == nil {
		tasks = []model.TaskDoc{}
	}
	completed := user.CompletedTasks
	if completed == nil {
		completed = []model.TaskDoc{}
	}

	filter := bson.D{{Key: "oidcId", Value: user.OIDCID}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "lastLogin", Value: user.LastLogin}}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: newID},
			{Key: "email", Value: user.Email},
			{Key: "name", Value: user.Name},
			{Key: "picture", Value: user.Picture},
			{Key: "xp", Value: user.XP},
			{Key: "level", Value: user.Level},
			{Key: "tasksCompleted", Value: user.TasksCompleted},
			{Key: "tasks", Value: tasks},
			{Key: "completedTasks", Value: completed},
			{Key: "isOptIn", Value: user.IsOptIn},
			{Key: "createdAt", Value: user.CreatedAt},
		}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored model.User
	err := db.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// The racing insert has committed by now, so the retry matches it.
		err = db.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
		if mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("mongo: upserting user: %w", apperror.Conflict("user", user.OIDCID))
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongo: upserting user (oidcID=%s): %w", user.OIDCID, err)
	}

	normalizeTasks(&stored)
	return &stored, stored.ID == newID, nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findUser(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

// GetUserByOIDCID retrieves a user by their provider identity.
func (db *DB) GetUserByOIDCID(ctx context.Context, oidcID string) (*model.User, error) {
	return db.findUser(ctx, bson.D{{Key: "oidcId", Value: oidcID}}, oidcID)
}

func (db *DB) findUser(ctx context.Context, filter bson.D, key string) (*model.User, error) {
	var u model.User
	err := db.users.FindOne(ctx, filter).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("mongo: getting user %s: %w", key, err)
	}
	normalizeTasks(&u)
	return &u, nil
}

// Documents written by older clients may lack the task arrays entirely.
func normalizeTasks(u *model.User) {
	if u.Tasks == nil {
		u.Tasks = []model.TaskDoc{}
	}
	if u.CompletedTasks == nil {
		u.CompletedTasks = []model.TaskDoc{}
	}
}
