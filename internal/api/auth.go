package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/auth"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpot-core/internal/metrics"
)

const (
	grantPassword = "password"
	grantRefresh  = "refresh_token"

	msgBadCredentials = "Incorrect username or password"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64,username"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

// tokenForm is the OAuth2 password grant, sent form-encoded.
type tokenForm struct {
	GrantType string `form:"grant_type" validate:"omitempty,eq=password"`
	Username  string `form:"username" validate:"required"`
	Password  string `form:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// logoutRequest names one session, or every session when AllSessions is set.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required_without=AllSessions"`
	AllSessions  bool   `json:"all_sessions"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// handleRegister creates an account. The password is hashed before the
// transaction opens so the slow KDF never holds the write connection.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log(r).Error("hash password failed", "error", err)
		writeInternalError(w, "failed to register user")
		return
	}

	user := &auth.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	err = s.db.WithTx(r.Context(), func(tx database.DBTX) error {
		return auth.NewUserRepository(tx).Create(r.Context(), user)
	})
	switch {
	case errors.Is(err, auth.ErrUsernameExists):
		writeConflict(w, "Username already registered")
		return
	case errors.Is(err, auth.ErrEmailExists):
		writeConflict(w, "Email already registered")
		return
	case err != nil:
		s.log(r).Error("create user failed", "error", err)
		writeInternalError(w, "failed to register user")
		return
	}

	if s.metrics != nil {
		s.metrics.Registrations.Inc()
	}
	s.log(r).Info("user registered", "user_id", user.ID, "username", user.Username)
	s.record(audit.ActionRegister, "user", user.ID, user.ID, map[string]any{"username": user.Username})

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User registered successfully",
		"id":      user.ID,
	})
}

// handleToken implements the OAuth2 password grant.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}
	form := tokenForm{
		GrantType: r.PostForm.Get("grant_type"),
		Username:  r.PostForm.Get("username"),
		Password:  r.PostForm.Get("password"),
	}
	if !s.validateStruct(w, &form) {
		return
	}

	ctx := r.Context()
	user, err := auth.NewUserRepository(s.db).GetByUsername(ctx, form.Username)
	if err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		s.log(r).Error("user lookup failed", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}
	// Unknown users are checked against a dummy hash so both failures
	// cost one KDF run.
	stored := auth.DummyHash()
	if user != nil {
		stored = user.PasswordHash
	}
	if !s.verifyPassword(form.Password, stored) || user == nil {
		s.countAuth(grantPassword, metrics.OutcomeFailure)
		writeUnauthorized(w, msgBadCredentials)
		return
	}

	var upgraded string
	if auth.NeedsRehash(user.PasswordHash) {
		if upgraded, err = auth.HashPassword(form.Password); err != nil {
			s.log(r).Warn("password rehash failed", "user_id", user.ID, "error", err)
			upgraded = ""
		}
	}

	var resp *tokenResponse
	err = s.db.WithTx(ctx, func(tx database.DBTX) error {
		if upgraded != "" {
			if err := auth.NewUserRepository(tx).UpdatePassword(ctx, user.ID, upgraded); err != nil {
				return err
			}
		}
		var err error
		resp, err = s.issueTokens(ctx, tx, user.ID, "")
		return err
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Deleted between lookup and issue.
			s.countAuth(grantPassword, metrics.OutcomeFailure)
			writeUnauthorized(w, msgBadCredentials)
			return
		}
		s.log(r).Error("issue token failed", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	if upgraded != "" {
		s.log(r).Info("password hash upgraded", "user_id", user.ID)
	}
	s.countAuth(grantPassword, metrics.OutcomeSuccess)
	s.record(audit.ActionLogin, "user", user.ID, user.ID, nil)
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh exchanges a refresh token for a new pair. Presenting a
// token that was already rotated revokes its whole family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	var (
		resp   *tokenResponse
		reused *auth.RefreshToken
	)
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		tokens := auth.NewTokenRepository(tx)
		old, err := tokens.GetByTokenHash(ctx, auth.HashToken(req.RefreshToken))
		if err != nil {
			return err
		}
		if old.Revoked {
			reused = old
			return tokens.RevokeFamily(ctx, old.FamilyID)
		}
		if old.Expired(time.Now()) {
			return auth.ErrTokenExpired
		}

		raw, next, err := s.newRefreshToken(old.UserID, old.FamilyID)
		if err != nil {
			return err
		}
		if err := tokens.Rotate(ctx, old.ID, next); err != nil {
			if errors.Is(err, auth.ErrTokenReuse) {
				reused = old
				return tokens.RevokeFamily(ctx, old.FamilyID)
			}
			return err
		}
		resp, err = s.accessResponse(old.UserID, raw)
		return err
	})

	switch {
	case err == nil && reused != nil:
		s.log(r).Warn("refresh token reuse detected, family revoked",
			"user_id", reused.UserID, "family_id", reused.FamilyID)
		s.record(audit.ActionTokenReuse, "refresh_token", reused.ID, reused.UserID,
			map[string]any{"family_id": reused.FamilyID})
		s.countAuth(grantRefresh, metrics.OutcomeFailure)
		writeUnauthorized(w, "Refresh token has been revoked")
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrUserNotFound):
		s.countAuth(grantRefresh, metrics.OutcomeFailure)
		writeUnauthorized(w, "Invalid or expired refresh token")
	case err != nil:
		s.log(r).Error("refresh failed", "error", err)
		writeInternalError(w, "failed to refresh token")
	default:
		s.countAuth(grantRefresh, metrics.OutcomeSuccess)
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleLogout revokes the session (token family) the refresh token
// belongs to, or every session of the caller when all_sessions is set.
// Unknown or foreign tokens are ignored.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)
	var familyID string
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		tokens := auth.NewTokenRepository(tx)
		if req.AllSessions {
			return tokens.RevokeAllForUser(ctx, userID)
		}
		tok, err := tokens.GetByTokenHash(ctx, auth.HashToken(req.RefreshToken))
		if errors.Is(err, auth.ErrTokenInvalid) {
			return nil
		}
		if err != nil {
			return err
		}
		if tok.UserID != userID {
			return nil
		}
		familyID = tok.FamilyID
		return tokens.RevokeFamily(ctx, tok.FamilyID)
	})
	if err != nil {
		s.log(r).Error("logout failed", "error", err)
		writeInternalError(w, "failed to log out")
		return
	}

	switch {
	case req.AllSessions:
		s.log(r).Info("all sessions revoked")
		s.record(audit.ActionLogout, "user", userID, userID, map[string]any{"all_sessions": true})
	case familyID != "":
		s.record(audit.ActionLogout, "refresh_token", familyID, userID, nil)
	}
	w.WriteHeader(http.StatusNoContent)
}

// issueTokens starts or continues a refresh family inside tx and returns
// the response body.
func (s *Server) issueTokens(ctx context.Context, tx database.DBTX, userID, familyID string) (*tokenResponse, error) {
	raw, token, err := s.newRefreshToken(userID, familyID)
	if err != nil {
		return nil, err
	}
	if err := auth.NewTokenRepository(tx).Create(ctx, token); err != nil {
		return nil, err
	}
	return s.accessResponse(userID, raw)
}

func (s *Server) newRefreshToken(userID, familyID string) (string, *auth.RefreshToken, error) {
	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return "", nil, err
	}
	return raw, &auth.RefreshToken{
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: auth.HashToken(raw),
		ExpiresAt: time.Now().Add(s.jwt.RefreshTTL()),
	}, nil
}

func (s *Server) accessResponse(userID, refreshToken string) (*tokenResponse, error) {
	ttl := s.jwt.AccessTTL()
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	access, err := auth.GenerateAccessToken(userID, s.jwt.Secret, ttl)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	return &tokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int(ttl.Seconds()),
		RefreshToken: refreshToken,
	}, nil
}

func (s *Server) countAuth(grant, outcome string) {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(grant, outcome).Inc()
	}
}
