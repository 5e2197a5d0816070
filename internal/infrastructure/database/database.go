package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	pingTimeout = 5 * time.Second

	// The pool holds exactly one connection. Every request runs its unit of
	// work in a WithTx transaction, and SQLite allows one writer at a time,
	// so a second connection would only trade queueing in database/sql for
	// SQLITE_BUSY retries inside the driver.
	maxConns        = 1
	connMaxIdleTime = 30 * time.Minute
	connMaxLifetime = time.Hour
)

// DB is the Smart Pot store: a single-connection SQLite pool with foreign
// keys enforced. The embedded *sql.DB satisfies DBTX, so repositories can
// run against a DB directly or inside WithTx.
type DB struct {
	*sql.DB
}

// Config maps the database section of config.yaml.
type Config struct {
	// Path is the SQLite file. Missing parent directories are created.
	Path string

	// WALMode lets the API read while the ingest path writes.
	WALMode bool

	// BusyTimeout is how long, in seconds, a statement waits for a lock
	// held by another process (the migrate command, a backup) before
	// failing with SQLITE_BUSY.
	BusyTimeout int
}

// dsn builds the go-sqlite3 connection string for cfg.
//
// Foreign keys are switched on per connection: SQLite ships with them off,
// and the pot -> plant -> reading and user -> token cascades depend on them.
func (cfg Config) dsn() string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open opens (creating if needed) the SQLite file at cfg.Path and checks
// that it answers within ctx. It does not run migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file exists after the ping. It holds password hashes, so keep it
	// owner-only.
	if err := os.Chmod(cfg.Path, filePermissions); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("restricting database file permissions: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Close closes the pool. Safe to call on a DB whose pool was never opened.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query through the pool. /health reports the
// service unavailable when it fails.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// WithTx runs fn as one unit of work in a read-write transaction. See the
// package-level WithTx for the commit and rollback rules.
func (db *DB) WithTx(ctx context.Context, fn func(tx DBTX) error) error {
	return WithTx(ctx, db.DB, nil, fn)
}
