package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all principal-store migrations.
// Statements stay within the subset shared by PostgreSQL and SQLite.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create principals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS principals (
					id VARCHAR(255) PRIMARY KEY,
					role VARCHAR(64) NOT NULL,
					permission_overrides JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Index principals by role",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_principals_role ON principals(role);
			`,
		},
	}
}

// RunMigrations applies pending migrations and returns the versions it applied
func RunMigrations(ctx context.Context, db *sql.DB) ([]int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS grant_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM grant_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	var applied []int
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO grant_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		applied = append(applied, migration.Version)
	}

	return applied, nil
}
