package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger stores permission changes in the permission_audit_log table.
// The schema works on PostgreSQL and SQLite.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit store
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{
		db: db,
	}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure permission_audit_log table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the permission_audit_log table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS permission_audit_log (
		id VARCHAR(36) PRIMARY KEY,
		principal_id VARCHAR(255) NOT NULL,
		actor VARCHAR(255) NOT NULL,
		old_overrides JSONB NOT NULL,
		new_overrides JSONB NOT NULL,
		changed_keys JSONB NOT NULL,
		reason TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_permission_audit_log_principal ON permission_audit_log(principal_id, created_at DESC);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log appends an entry
func (l *DBLogger) Log(ctx context.Context, entry *Entry) error {
	oldJSON, err := marshalOverrides(entry.OldOverrides)
	if err != nil {
		return fmt.Errorf("failed to marshal old overrides: %w", err)
	}
	newJSON, err := marshalOverrides(entry.NewOverrides)
	if err != nil {
		return fmt.Errorf("failed to marshal new overrides: %w", err)
	}
	changedJSON, err := json.Marshal(entry.ChangedKeys)
	if err != nil {
		return fmt.Errorf("failed to marshal changed keys: %w", err)
	}

	var reason sql.NullString
	if entry.Reason != "" {
		reason = sql.NullString{String: entry.Reason, Valid: true}
	}

	query := `
		INSERT INTO permission_audit_log (
			id, principal_id, actor,
			old_overrides, new_overrides, changed_keys,
			reason, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8
		)
	`

	_, err = l.db.ExecContext(ctx, query,
		entry.ID, entry.PrincipalID, entry.Actor,
		oldJSON, newJSON, string(changedJSON),
		reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// History returns the newest entries for a principal first
func (l *DBLogger) History(ctx context.Context, principalID string, limit int) ([]Entry, error) {
	query := `
		SELECT id, principal_id, actor, old_overrides, new_overrides, changed_keys, reason, created_at
		FROM permission_audit_log
		WHERE principal_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, principalID, NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var oldJSON, newJSON, changedJSON string
		var reason sql.NullString

		if err := rows.Scan(&e.ID, &e.PrincipalID, &e.Actor, &oldJSON, &newJSON, &changedJSON, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(oldJSON), &e.OldOverrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal old overrides: %w", err)
		}
		if err := json.Unmarshal([]byte(newJSON), &e.NewOverrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal new overrides: %w", err)
		}
		if err := json.Unmarshal([]byte(changedJSON), &e.ChangedKeys); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changed keys: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}

// Close is a no-op; the caller owns the database handle
func (l *DBLogger) Close() error {
	return nil
}

func marshalOverrides(m map[string]bool) (string, error) {
	if m == nil {
		m = map[string]bool{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
