package database

import (
	"errors"
	"testing"
	"testing/fstest"
)

func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = files
	MigrationsDir = "."
}

func twoMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_create_pots.up.sql":   {Data: []byte(`CREATE TABLE pots (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
		"20260101_000000_create_pots.down.sql": {Data: []byte(`DROP TABLE pots;`)},
		"20260102_000000_pot_notes.up.sql":     {Data: []byte(`ALTER TABLE pots ADD COLUMN notes TEXT;`)},
		"20260102_000000_pot_notes.down.sql":   {Data: []byte(`ALTER TABLE pots DROP COLUMN notes;`)},
		"README.md":                            {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(t.Context(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, twoMigrations())
	db := openTestDB(t)
	ctx := t.Context()

	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Name != "create_pots" || pending[1].Name != "pot_notes" {
		t.Errorf("pending order = %s, %s", pending[0].Name, pending[1].Name)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "pots") {
		t.Fatal("pots table not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO pots (name, notes) VALUES ('basil', 'kitchen')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	// Idempotent.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not parsed")
	}
}

func TestMigrate_FailureRollsBackOnlyFailingMigration(t *testing.T) {
	files := twoMigrations()
	files["20260102_000000_pot_notes.up.sql"] = &fstest.MapFile{Data: []byte(`ALTER TABLE missing ADD COLUMN x TEXT;`)}
	useMigrations(t, files)
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err == nil {
		t.Fatal("Migrate() expected error, got nil")
	}

	applied, pending, err := db.GetMigrationStatus(t.Context())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1/1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, twoMigrations())
	db := openTestDB(t)
	ctx := t.Context()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "pots") {
		t.Error("pots table should have been dropped")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDown_MissingDownSQL(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_one_way.up.sql": {Data: []byte(`CREATE TABLE one_way (id INTEGER);`)},
	})
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(t.Context()); !errors.Is(err, ErrNoDownMigration) {
		t.Errorf("MigrateDown() error = %v, want ErrNoDownMigration", err)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() with nil FS error = %v", err)
	}

	useMigrations(t, fstest.MapFS{})
	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() with empty FS error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"up", "20260118_120000_create_users.up.sql", "20260118_120000", true, true},
		{"down", "20260118_120000_create_users.down.sql", "20260118_120000", false, true},
		{"not sql", "readme.txt", "", false, false},
		{"missing direction", "20260118_120000_create_users.sql", "", false, false},
		{"no version", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20260118_120000_add_email_to_users.up.sql"); got != "add_email_to_users" {
		t.Errorf("extractMigrationName() = %q, want add_email_to_users", got)
	}
}
