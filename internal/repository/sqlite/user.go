package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/model"
	"github.com/sakif/questlog/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, oidc_id, email, name, picture, xp, level, tasks_completed,
	tasks, completed_tasks, is_opt_in, created_at, last_login`

// UpsertLogin records a login for user.OIDCID.
//
// A single INSERT ... ON CONFLICT statement does the find-or-create, so two
// first logins for the same identity racing each other still produce one
// row: whichever INSERT loses hits the UNIQUE oidc_id constraint and turns
// into an update of last_login. Profile fields and gamification counters of
// an existing account are never touched here.
//
// The row is read back afterwards. If its ID is the one we generated, this
// call created it.
func (db *DB) UpsertLogin(ctx context.Context, user *model.User) (*model.User, bool, error) {
	newID := xid.New().String()

	tasks, err := encodeTasks(user.Tasks)
	if err != nil {
		return nil, false, err
	}
	completed, err := encodeTasks(user.CompletedTasks)
	if err != nil {
		return nil, false, err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(oidc_id) DO UPDATE SET last_login = excluded.last_login`,
		newID,
		user.OIDCID,
		user.Email,
		user.Name,
		user.Picture,
		user.XP,
		user.Level,
		user.TasksCompleted,
		tasks,
		completed,
		user.IsOptIn,
		user.CreatedAt,
		user.LastLogin,
	)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: upserting user (oidcID=%s): %w", user.OIDCID, err)
	}

	stored, err := db.GetUserByOIDCID(ctx, user.OIDCID)
	if err != nil {
		return nil, false, err
	}
	return stored, stored.ID == newID, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByOIDCID retrieves a user by their provider identity.
func (db *DB) GetUserByOIDCID(ctx context.Context, oidcID string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oidc_id = ?`, oidcID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", oidcID)
		}
		return nil, fmt.Errorf("sqlite: getting user by oidcID %s: %w", oidcID, err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u         model.User
		tasks     string
		completed string
	)
	err := row.Scan(
		&u.ID,
		&u.OIDCID,
		&u.Email,
		&u.Name,
		&u.Picture,
		&u.XP,
		&u.Level,
		&u.TasksCompleted,
		&tasks,
		&completed,
		&u.IsOptIn,
		&u.CreatedAt,
		&u.LastLogin,
	)
	if err != nil {
		return nil, err
	}

	if u.Tasks, err = decodeTasks(tasks); err != nil {
		return nil, err
	}
	if u.CompletedTasks, err = decodeTasks(completed); err != nil {
		return nil, err
	}
	return &u, nil
}

// Task lists are opaque documents, so they are stored as JSON text.
func encodeTasks(tasks []model.TaskDoc) (string, error) {
	if tasks == nil {
		return "[]", nil
	}
	b, err := json.Marshal(tasks)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding tasks: %w", err)
	}
	return string(b), nil
}

func decodeTasks(raw string) ([]model.TaskDoc, error) {
	tasks := []model.TaskDoc{}
	if raw == "" {
		return tasks, nil
	}
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, fmt.Errorf("sqlite: decoding tasks: %w", err)
	}
	return tasks, nil
}
