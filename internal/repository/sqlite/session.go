package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/model"
	"github.com/sakif/questlog/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession inserts a new session record. The caller assigns the ID.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		s.ID,
		s.UserID,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session for user %s: %w", s.UserID, err)
	}
	return nil
}

// GetSession returns the session with the given ID, revoked or not.
// Callers decide validity with Session.Active.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s       model.Session
		revoked sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at, revoked_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	if revoked.Valid {
		at := revoked.Time
		s.RevokedAt = &at
	}
	return &s, nil
}

// RevokeSession marks a session revoked. Revoking an already revoked
// session keeps the first timestamp and is not an error.
func (db *DB) RevokeSession(ctx context.Context, id string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: revoking session %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("session", id)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before the given time
// and returns how many were deleted.
func (db *DB) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
