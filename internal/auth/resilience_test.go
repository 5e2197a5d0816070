package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// Resilience tests use the TestResilience_ prefix for easy filtering:
//
//	go test -run TestResilience -race ./internal/auth/...

// Two refreshes racing on the same token: exactly one rotation wins, the
// other sees reuse.
func TestResilience_TokenRotation_ConcurrentRefresh(t *testing.T) {
	db := testDB(t)
	ctx := t.Context()
	user := seedTestUser(t, db, "concurrent-user")

	initial := newTestToken(user.ID, "raw-concurrent", 24*time.Hour)
	if err := NewTokenRepository(db).Create(ctx, initial); err != nil {
		t.Fatalf("creating initial token: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- db.WithTx(ctx, func(tx database.DBTX) error {
				repo := NewTokenRepository(tx)
				stored, err := repo.GetByTokenHash(ctx, HashToken("raw-concurrent"))
				if err != nil {
					return err
				}
				next := newTestToken(user.ID, "rotated-"+string(rune('a'+i)), 24*time.Hour)
				next.FamilyID = stored.FamilyID
				return repo.Rotate(ctx, stored.ID, next)
			})
		}()
	}
	wg.Wait()
	close(results)

	var successes, reuses int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenReuse):
			reuses++
		default:
			t.Errorf("unexpected rotation error: %v", err)
		}
	}
	if successes != 1 || reuses != 1 {
		t.Errorf("successes=%d reuses=%d, want 1/1", successes, reuses)
	}
}

// Deleting a user removes their refresh tokens through ON DELETE CASCADE.
func TestResilience_UserDeletion_CascadesTokens(t *testing.T) {
	db := testDB(t)
	ctx := t.Context()
	user := seedTestUser(t, db, "cascade-user")
	tokens := NewTokenRepository(db)

	for _, raw := range []string{"t1", "t2", "t3"} {
		if err := tokens.Create(ctx, newTestToken(user.ID, raw, time.Hour)); err != nil {
			t.Fatalf("creating token %s: %v", raw, err)
		}
	}

	if err := NewUserRepository(db).Delete(ctx, user.ID); err != nil {
		t.Fatalf("deleting user: %v", err)
	}

	var remaining int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID,
	).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Errorf("refresh tokens after user delete = %d, want 0", remaining)
	}
}

// A cancelled context surfaces as an error, never a panic or partial write.
func TestResilience_ContextCancellation_RepositoryOps(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := users.GetByUsername(ctx, "nonexistent"); err == nil {
		t.Error("GetByUsername with cancelled context should return error")
	}
	if err := users.Create(ctx, &User{Username: "cancel", Email: "c@example.com", PasswordHash: "h"}); err == nil {
		t.Error("Create with cancelled context should return error")
	}
	if _, err := NewTokenRepository(db).DeleteExpired(ctx); err == nil {
		t.Error("DeleteExpired with cancelled context should return error")
	}

	if _, err := users.GetByUsername(t.Context(), "cancel"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("cancelled Create left a row behind: %v", err)
	}
}
