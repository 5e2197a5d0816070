package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the query surface shared by *sql.DB, *sql.Tx and *DB.
// Repositories accept a DBTX so the same code runs inside or outside a
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner starts transactions. *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx runs fn inside a transaction.
//
// The transaction commits when fn returns nil and rolls back when fn
// returns an error. If fn panics the transaction is rolled back and the
// panic is re-raised. The error from fn is returned unwrapped so callers
// can match sentinel errors with errors.Is.
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback() //nolint:errcheck // re-panicking below
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // fn's error takes precedence
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("committing transaction: %w", cerr)
		}
	}()

	return fn(tx)
}
