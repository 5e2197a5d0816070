// Package audit records account and ownership activity in the audit_logs
// table and serves it back per user.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// Actions recorded by the service.
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionLogout        = "logout"
	ActionTokenReuse    = "token_reuse"
	ActionCreate        = "create"
	ActionDelete        = "delete"
	ActionDeleteAccount = "delete_account"
)

// Sources of activity.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	UserID     string // optional: only this user's activity
	Action     string // optional
	EntityType string // optional: user, pot, plant, sensor_reading, refresh_token
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db database.DBTX
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db database.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if log.Source == "" {
		log.Source = SourceAPI
	}

	var details sql.NullString
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID), nullableString(log.UserID),
		log.Source, details, database.FormatTime(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.Limit = min(max(filter.Limit, 0), maxLimit)
	if filter.Limit == 0 {
		filter.Limit = defaultLimit
	}
	filter.Offset = max(filter.Offset, 0)

	var (
		conditions []string
		args       []any
	)
	for _, c := range []struct{ column, value string }{
		{"user_id", filter.UserID},
		{"action", filter.Action},
		{"entity_type", filter.EntityType},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE holds only fixed column names and placeholders
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, //nolint:gosec // WHERE holds only fixed column names and placeholders
		`SELECT id, action, entity_type, entity_id, user_id, source, details, created_at
		 FROM audit_logs `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var (
			log                         AuditLog
			entityID, userID, detailsJS sql.NullString
			createdAt                   string
		)
		if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
			&entityID, &userID, &log.Source, &detailsJS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		log.EntityID = entityID.String
		log.UserID = userID.String
		if detailsJS.Valid && detailsJS.String != "" {
			if err := json.Unmarshal([]byte(detailsJS.String), &log.Details); err != nil {
				return nil, fmt.Errorf("decoding audit details for %s: %w", log.ID, err)
			}
		}
		if log.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
