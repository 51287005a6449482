package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/model"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newLogin(oidcID string, at time.Time) *model.User {
	return model.NewUser(oidcID, oidcID+"@example.com", "Quester "+oidcID, "/default.png", at)
}

func TestUpsertLogin_CreatesWithDefaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, created, err := db.UpsertLogin(ctx, newLogin("sub-1", baseTime))
	if err != nil {
		t.Fatalf("UpsertLogin() error = %v", err)
	}
	if !created {
		t.Error("UpsertLogin() created = false on first login")
	}
	if u.ID == "" {
		t.Error("UpsertLogin() did not assign an ID")
	}
	if u.XP != 0 || u.Level != 1 || u.TasksCompleted != 0 || u.IsOptIn {
		t.Errorf("defaults = (xp %d, level %d, completed %d, optIn %v), want (0, 1, 0, false)",
			u.XP, u.Level, u.TasksCompleted, u.IsOptIn)
	}
	if u.Tasks == nil || len(u.Tasks) != 0 || u.CompletedTasks == nil || len(u.CompletedTasks) != 0 {
		t.Errorf("task lists = (%v, %v), want both empty", u.Tasks, u.CompletedTasks)
	}
	if !u.CreatedAt.Equal(baseTime) || !u.LastLogin.Equal(baseTime) {
		t.Errorf("timestamps = (%v, %v), want %v", u.CreatedAt, u.LastLogin, baseTime)
	}
}

func TestUpsertLogin_ExistingOnlyTouchesLastLogin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, _, err := db.UpsertLogin(ctx, newLogin("sub-2", baseTime))
	if err != nil {
		t.Fatalf("first UpsertLogin() error = %v", err)
	}

	later := baseTime.Add(48 * time.Hour)
	again := model.NewUser("sub-2", "changed@example.com", "Renamed", "/other.png", later)
	again.XP = 999

	second, created, err := db.UpsertLogin(ctx, again)
	if err != nil {
		t.Fatalf("second UpsertLogin() error = %v", err)
	}
	if created {
		t.Error("UpsertLogin() created = true for an existing identity")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %q, want %q", second.ID, first.ID)
	}
	if !second.LastLogin.Equal(later) {
		t.Errorf("LastLogin = %v, want %v", second.LastLogin, later)
	}
	if !second.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want unchanged %v", second.CreatedAt, baseTime)
	}
	if second.Email != first.Email || second.Name != first.Name || second.XP != 0 {
		t.Errorf("profile changed on repeat login: %+v", second)
	}
}

func TestUpsertLogin_ConcurrentFirstLoginsYieldOneAccount(t *testing.T) {
	db := newFileTestDB(t)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		creates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, created, err := db.UpsertLogin(ctx, newLogin("sub-race", baseTime))
			if err != nil {
				t.Errorf("UpsertLogin() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[u.ID] = true
			if created {
				creates++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Errorf("distinct IDs = %d, want 1", len(ids))
	}
	if creates != 1 {
		t.Errorf("created reported %d times, want 1", creates)
	}
}

func TestUpsertLogin_PreservesStoredTasks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newLogin("sub-tasks", baseTime)
	u.Tasks = []model.TaskDoc{{"name": "Write report", "xp": float64(10)}}

	got, _, err := db.UpsertLogin(ctx, u)
	if err != nil {
		t.Fatalf("UpsertLogin() error = %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0]["name"] != "Write report" {
		t.Errorf("Tasks = %v, want the stored task", got.Tasks)
	}
}

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, _, err := db.UpsertLogin(ctx, newLogin("sub-3", baseTime))
	if err != nil {
		t.Fatalf("UpsertLogin() error = %v", err)
	}

	got, err := db.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.OIDCID != "sub-3" {
		t.Errorf("OIDCID = %q, want %q", got.OIDCID, "sub-3")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUserByOIDCID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByOIDCID(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
