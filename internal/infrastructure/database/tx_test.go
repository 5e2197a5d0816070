package database

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (TxBeginner, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck // test cleanup
	return sqlDB, mock
}

func TestWithTx_Commit(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pots").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := WithTx(t.Context(), db, nil, func(tx DBTX) error {
		_, err := tx.ExecContext(t.Context(), "INSERT INTO pots (name) VALUES (?)", "basil")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWithTx_RollbackKeepsSentinel(t *testing.T) {
	errSentinel := errors.New("pot not found")
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := WithTx(t.Context(), db, nil, func(DBTX) error { return errSentinel })
	if !errors.Is(err, errSentinel) {
		t.Errorf("WithTx() error = %v, want sentinel", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if recover() == nil {
			t.Error("panic was swallowed")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	}()

	_ = WithTx(t.Context(), db, nil, func(DBTX) error { panic("boom") }) //nolint:errcheck // panics
}

func TestWithTx_BeginAndCommitErrors(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("locked"))

		called := false
		err := WithTx(t.Context(), db, nil, func(DBTX) error { called = true; return nil })
		if err == nil || called {
			t.Errorf("WithTx() err = %v, fn called = %v", err, called)
		}
	})

	t.Run("commit", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("disk full"))

		if err := WithTx(t.Context(), db, nil, func(DBTX) error { return nil }); err == nil {
			t.Error("WithTx() expected commit error, got nil")
		}
	})
}

func TestDB_WithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	if _, err := db.ExecContext(ctx, "CREATE TABLE notes (body TEXT)"); err != nil {
		t.Fatal(err)
	}

	errStop := errors.New("stop")
	err := db.WithTx(ctx, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO notes VALUES ('lost')"); err != nil {
			return err
		}
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("WithTx() error = %v", err)
	}

	if err := db.WithTx(ctx, func(tx DBTX) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO notes VALUES ('kept')")
		return err
	}); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var bodies []string
	rows, err := db.QueryContext(ctx, "SELECT body FROM notes")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			t.Fatal(err)
		}
		bodies = append(bodies, b)
	}
	if len(bodies) != 1 || bodies[0] != "kept" {
		t.Errorf("notes = %v, want [kept]", bodies)
	}
}
