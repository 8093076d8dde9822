package backfill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grant/pkg/rbac"
)

func TestSeedAdministrator(t *testing.T) {
	env := newRunnerEnv(t)
	ctx := context.Background()

	created, err := SeedAdministrator(ctx, env.store, "root")
	require.NoError(t, err)
	assert.True(t, created)

	p, err := env.store.GetPrincipal(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "administrator", p.Role)
	assert.Empty(t, p.Overrides)

	svc := rbac.NewService(env.store, env.audit, rbac.NewResolver(rbac.DefaultTemplates(), rbac.DefaultCatalog()))
	ok, err := svc.Can(ctx, "root", rbac.ActionManageUsers)
	require.NoError(t, err)
	assert.True(t, ok, "seeded administrator can provision other principals")
}

func TestSeedAdministratorIsIdempotent(t *testing.T) {
	env := newRunnerEnv(t)
	ctx := context.Background()

	_, err := SeedAdministrator(ctx, env.store, "root")
	require.NoError(t, err)

	created, err := SeedAdministrator(ctx, env.store, "root")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSeedAdministratorRejectsExistingNonAdmin(t *testing.T) {
	env := newRunnerEnv(t)
	env.provision(t, "B", "broker", nil)

	_, err := SeedAdministrator(context.Background(), env.store, "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `role "broker"`)

	p, err := env.store.GetPrincipal(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "broker", p.Role, "existing role is never promoted")
}

func TestSeedAdministratorRequiresID(t *testing.T) {
	env := newRunnerEnv(t)
	_, err := SeedAdministrator(context.Background(), env.store, "")
	assert.Error(t, err)
}
