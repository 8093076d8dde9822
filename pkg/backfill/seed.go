package backfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/grant/pkg/rbac"
)

// SeedAdministrator provisions the first administrator so the HTTP API, which requires
// action_manage_users to create principals, has someone to act as.
// It reports whether a principal was created. An existing administrator is left as is;
// an existing principal with another role is an error.
func SeedAdministrator(ctx context.Context, store rbac.PrincipalStore, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("administrator id is required")
	}

	err := store.CreatePrincipal(ctx, &rbac.Principal{
		ID:        id,
		Role:      string(rbac.RoleAdministrator),
		Overrides: map[string]bool{},
	})
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, rbac.ErrAlreadyExists) {
		return false, fmt.Errorf("failed to seed administrator %s: %w", id, err)
	}

	existing, err := store.GetPrincipal(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to load principal %s: %w", id, err)
	}
	if existing.Role != string(rbac.RoleAdministrator) {
		return false, fmt.Errorf("principal %s already exists with role %q", id, existing.Role)
	}
	return false, nil
}
