package rbac

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grant/pkg/audit"
	"github.com/platinummonkey/grant/pkg/observability"
)

// setupTestDB opens an in-memory SQLite database with the principal schema applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = RunMigrations(context.Background(), db)
	require.NoError(t, err)
	return db
}

type testEnv struct {
	db      *sql.DB
	store   *SQLStore
	audit   *audit.DBLogger
	service *Service
}

func newTestEnv(t *testing.T, opts ...ServiceOption) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	store := NewSQLStore(db)
	resolver := NewResolver(DefaultTemplates(), DefaultCatalog())
	opts = append([]ServiceOption{WithLogger(observability.NopLogger())}, opts...)

	return &testEnv{
		db:      db,
		store:   store,
		audit:   auditLog,
		service: NewService(store, auditLog, resolver, opts...),
	}
}

func (e *testEnv) provision(t *testing.T, id, role string, overrides map[string]bool) {
	t.Helper()
	require.NoError(t, e.store.CreatePrincipal(context.Background(), &Principal{ID: id, Role: role, Overrides: overrides}))
}

// failingAudit rejects every write
type failingAudit struct {
	audit.NoOpLogger
	err error
}

func (f failingAudit) Log(ctx context.Context, entry *audit.Entry) error {
	return f.err
}
