package sqlite

import (
	"path/filepath"
	"testing"
)

// newTestDB returns a fresh in-memory database, closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newFileTestDB returns a file-backed database so several connections can
// hit it concurrently.
func newFileTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "questlog.db"))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}
