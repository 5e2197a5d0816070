package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNoPath is returned by Open when Config.Path is empty.
	ErrNoPath = errors.New("database path is required")

	// ErrMigrationNotFound means schema_migrations names a version that has
	// no file in MigrationsFS.
	ErrMigrationNotFound = errors.New("migration not found in filesystem")

	// ErrNoDownMigration means the latest migration cannot be rolled back.
	ErrNoDownMigration = errors.New("migration has no down SQL")
)

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsForeignKeyViolation reports whether err came from a FOREIGN KEY
// constraint failure.
func IsForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
