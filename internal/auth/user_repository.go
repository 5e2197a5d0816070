package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// SQLiteUserRepository implements UserRepository on any DBTX, so it can be
// bound to a transaction for one unit of work.
type SQLiteUserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a user repository on db.
func NewUserRepository(db database.DBTX) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, username, email, password_hash, created_at"

// Create inserts a new user account with a fresh UUID.
// A duplicate username or email yields ErrUsernameExists or ErrEmailExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash,
		database.FormatTime(user.CreatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// sqlite names the column: "UNIQUE constraint failed: users.email"
			if strings.Contains(err.Error(), "users.email") {
				return ErrEmailExists
			}
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetByUsername retrieves a user by username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

// UpdatePassword replaces a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireAffected(result, ErrUserNotFound)
}

// Delete removes a user. Pots, plants, readings and refresh tokens go with
// it through ON DELETE CASCADE.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireAffected(result, ErrUserNotFound)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u         User
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if u.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// requireAffected turns a zero-row UPDATE/DELETE into notFound.
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
