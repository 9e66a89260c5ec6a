package testutil

import (
	"testing"
	"time"

	"fhirsync/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite database with migrations
// applied. It uses a one-second SteppingClock and a StubIDGenerator. The
// database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T, opts ...database.Option) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", SteppingClock(time.Second), NewStubIDGenerator(), opts...)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
