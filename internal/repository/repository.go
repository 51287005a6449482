// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in sub-packages (sqlite, mongo).
package repository

import (
	"context"
	"time"

	"github.com/sakif/questlog/internal/model"
)

// UserRepository stores QuestLog accounts.
type UserRepository interface {
	// UpsertLogin records a login for user.OIDCID in a single atomic step.
	// If no account exists, user (with defaults already applied) is inserted.
	// If one exists, only its lastLogin is set to user.LastLogin.
	// It returns the stored account and whether it was created by this call.
	UpsertLogin(ctx context.Context, user *model.User) (*model.User, bool, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByOIDCID(ctx context.Context, oidcID string) (*model.User, error)
}

// SessionRepository stores server-side session records.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// Store is a complete storage backend.
type Store interface {
	UserRepository
	SessionRepository
	Close() error
}
