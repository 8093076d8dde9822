//go:build integration

package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/grant/pkg/audit"
)

// setupPostgres starts a PostgreSQL container with the principal schema applied
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("grant_test"),
		postgres.WithUsername("grant"),
		postgres.WithPassword("grant_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	applied, err := RunMigrations(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
	return db
}

func TestPostgres_UpdateResetHistory(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	auditLog, err := audit.NewDBLogger(db)
	require.NoError(t, err)
	store := NewSQLStore(db)
	svc := NewService(store, auditLog, NewResolver(DefaultTemplates(), DefaultCatalog()))

	_, err = svc.CreatePrincipal(ctx, "B", "broker", nil)
	require.NoError(t, err)

	_, err = svc.CreatePrincipal(ctx, "B", "broker", nil)
	assert.True(t, errors.Is(err, ErrAlreadyExists), "pq unique violation maps to ErrAlreadyExists")

	changed, err := svc.UpdateOverrides(ctx, "B", map[string]bool{"action_delete_lead": true}, Actor{ID: "admin"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"action_delete_lead"}, changed)

	allowed, err := svc.Can(ctx, "B", ActionDeleteLead)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = svc.ResetToTemplate(ctx, "B", Actor{ID: "admin"})
	require.NoError(t, err)

	entries, err := svc.History(ctx, "B", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{ResetAllMarker}, entries[0].ChangedKeys)
	assert.Equal(t, []string{"action_delete_lead"}, entries[1].ChangedKeys)

	p, err := store.GetPrincipal(ctx, "B")
	require.NoError(t, err)
	assert.Len(t, p.Overrides, KeyCount())
}
