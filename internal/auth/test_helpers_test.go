package auth

import (
	"path/filepath"
	"testing"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	_ "github.com/nerrad567/smartpot-core/migrations" // registers the embedded schema
)

// testDB opens a migrated SQLite database in a temp dir.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// seedTestUser inserts a user whose password is "test-password".
func seedTestUser(t *testing.T, db database.DBTX, username string) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	}
	if err := NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}
