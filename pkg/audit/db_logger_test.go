package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS permission_audit_log").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS permission_audit_log").WillReturnError(errors.New("table creation failed"))

		logger, err := NewDBLogger(db)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to ensure permission_audit_log table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		entry := NewEntry("broker-1", "admin-1",
			map[string]bool{"action_delete_lead": false},
			map[string]bool{"action_delete_lead": true},
			[]string{"action_delete_lead"},
			"granted by manager",
		)

		mock.ExpectExec("INSERT INTO permission_audit_log").
			WithArgs(
				entry.ID, "broker-1", "admin-1",
				`{"action_delete_lead":false}`, `{"action_delete_lead":true}`, `["action_delete_lead"]`,
				sql.NullString{String: "granted by manager", Valid: true}, entry.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := logger.Log(context.Background(), entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil snapshots are stored as empty objects", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		entry := NewEntry("broker-1", "admin-1", nil, map[string]bool{}, nil, "")

		mock.ExpectExec("INSERT INTO permission_audit_log").
			WithArgs(entry.ID, "broker-1", "admin-1", `{}`, `{}`, `[]`, sql.NullString{}, entry.CreatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := logger.Log(context.Background(), entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		mock.ExpectExec("INSERT INTO permission_audit_log").WillReturnError(errors.New("disk full"))

		err := logger.Log(context.Background(), NewEntry("p", "a", nil, nil, nil, ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit entry")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_History(t *testing.T) {
	columns := []string{"id", "principal_id", "actor", "old_overrides", "new_overrides", "changed_keys", "reason", "created_at"}

	t.Run("decodes rows", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		newer := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		older := newer.Add(-time.Hour)

		rows := sqlmock.NewRows(columns).
			AddRow("id-2", "broker-1", "admin-1", `{}`, `{"nav_home":true}`, `["RESET_ALL"]`, "reset to role template: broker", newer).
			AddRow("id-1", "broker-1", "admin-2", `{}`, `{"action_delete_lead":true}`, `["action_delete_lead"]`, nil, older)

		mock.ExpectQuery("SELECT (.+) FROM permission_audit_log").
			WithArgs("broker-1", DefaultHistoryLimit).
			WillReturnRows(rows)

		entries, err := logger.History(context.Background(), "broker-1", 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "id-2", entries[0].ID)
		assert.Equal(t, []string{"RESET_ALL"}, entries[0].ChangedKeys)
		assert.Equal(t, "reset to role template: broker", entries[0].Reason)
		assert.True(t, entries[0].NewOverrides["nav_home"])

		assert.Equal(t, "id-1", entries[1].ID)
		assert.Empty(t, entries[1].Reason)
		assert.Equal(t, older, entries[1].CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit is clamped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		mock.ExpectQuery("SELECT (.+) FROM permission_audit_log").
			WithArgs("broker-1", MaxHistoryLimit).
			WillReturnRows(sqlmock.NewRows(columns))

		entries, err := logger.History(context.Background(), "broker-1", 10000)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.NotNil(t, entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		mock.ExpectQuery("SELECT (.+) FROM permission_audit_log").WillReturnError(errors.New("connection reset"))

		_, err := logger.History(context.Background(), "broker-1", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query audit entries")
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		rows := sqlmock.NewRows(columns).
			AddRow("id-1", "broker-1", "admin-1", `not json`, `{}`, `[]`, nil, time.Now())
		mock.ExpectQuery("SELECT (.+) FROM permission_audit_log").WillReturnRows(rows)

		_, err := logger.History(context.Background(), "broker-1", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal old overrides")
	})
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultHistoryLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxHistoryLimit, NormalizeLimit(MaxHistoryLimit+1))
}

func TestNewEntry(t *testing.T) {
	a := NewEntry("p", "actor", nil, nil, nil, "")
	b := NewEntry("p", "actor", nil, nil, nil, "")

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.ChangedKeys)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
}
