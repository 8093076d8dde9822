package rbac

import (
	"time"
)

// Principal is an administrator or broker whose access is governed by templates and overrides.
// Overrides stay in their storage form so keys from an older registry survive until a backfill.
type Principal struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Overrides map[string]bool `json:"overrides"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Actor identifies who performed a permission change
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// String returns the identity recorded in audit entries
func (a Actor) String() string {
	if a.Email != "" {
		return a.ID + " <" + a.Email + ">"
	}
	return a.ID
}

// SystemActor is recorded for changes made by batch tooling
var SystemActor = Actor{ID: "system"}

// ResetAllMarker replaces the changed-key list when a principal is reset to its template
const ResetAllMarker = "RESET_ALL"

// PermissionsView is the stored state returned to callers
type PermissionsView struct {
	PrincipalID string          `json:"principal_id"`
	Role        string          `json:"role"`
	Overrides   map[string]bool `json:"overrides"`
}

// copyOverrides returns an independent copy; nil stays nil
func copyOverrides(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
