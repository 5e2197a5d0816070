package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// TokenRepository persists refresh tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldID string, next *RefreshToken) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository on any DBTX.
type SQLiteTokenRepository struct {
	db database.DBTX
}

// NewTokenRepository creates a token repository on db.
func NewTokenRepository(db database.DBTX) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken computes the SHA-256 hex digest of a raw token for storage.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Create inserts a refresh token. A new family is started when FamilyID is empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	token.ID = uuid.NewString()
	if token.FamilyID == "" {
		token.FamilyID = uuid.NewString()
	}
	token.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.FamilyID, token.TokenHash,
		database.FormatTime(token.ExpiresAt), boolToInt(token.Revoked),
		database.FormatTime(token.CreatedAt),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash looks a token up by the hash of the raw value the client sent.
// Unknown hashes yield ErrTokenInvalid.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var (
		t                    RefreshToken
		revoked              int
		expiresAt, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, family_id, token_hash, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &expiresAt, &revoked, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting refresh token by hash: %w", err)
	}

	t.Revoked = revoked != 0
	if t.ExpiresAt, err = database.ParseTime(expiresAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Revoke marks a single refresh token as revoked.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeFamily marks every token descended from the same login as revoked.
func (r *SQLiteTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ?", familyID); err != nil {
		return fmt.Errorf("revoking token family: %w", err)
	}
	return nil
}

// RevokeAllForUser marks all refresh tokens for a user as revoked.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoking all tokens for user: %w", err)
	}
	return nil
}

// Rotate revokes oldID and inserts next in the same family. It must run in
// the caller's transaction. If oldID was already revoked, nothing is
// inserted and ErrTokenReuse is returned.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldID string, next *RefreshToken) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0", oldID)
	if err != nil {
		return fmt.Errorf("revoking consumed token: %w", err)
	}
	if err := requireAffected(result, ErrTokenReuse); err != nil {
		return err
	}
	return r.Create(ctx, next)
}

// DeleteExpired removes expired tokens and returns how many were deleted.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", database.FormatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
