package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/auth"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// handleGetAccount returns the caller's profile.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	user, err := auth.NewUserRepository(s.db).GetByID(r.Context(), userIDFromContext(r.Context()))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, "User not found.")
		return
	}
	if err != nil {
		s.log(r).Error("get account failed", "error", err)
		writeInternalError(w, "failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteAccount removes the caller. Foreign keys cascade to pots,
// plants, readings and refresh tokens; audit history is kept.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		return auth.NewUserRepository(tx).Delete(ctx, userID)
	})
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, "User not found.")
		return
	}
	if err != nil {
		s.log(r).Error("delete account failed", "error", err)
		writeInternalError(w, "failed to delete account")
		return
	}

	s.log(r).Info("account deleted")
	s.record(audit.ActionDeleteAccount, "user", userID, userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListActivity returns the caller's audit trail, newest first.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{UserID: userIDFromContext(r.Context())}

	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidationError(w, p.name+": must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	result, err := audit.NewSQLiteRepository(s.db).List(r.Context(), filter)
	if err != nil {
		s.log(r).Error("list activity failed", "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
