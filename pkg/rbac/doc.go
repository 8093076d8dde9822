// Package rbac implements granular, per-principal permissions for the admin and broker portals.
//
// # Model
//
// Every capability is a Key from a closed registry (see keys.go). Each role has a
// complete template mapping every key to a boolean; templates are compiled in from
// templates.yaml and never change at runtime. A principal stores a sparse override map
// on top of its role template:
//
//	effective = Merge(TemplateFor(role), overrides)
//
// Unknown roles fall back to the default template. Stored override keys that are no
// longer registered are ignored on read and removed by the backfill tool.
//
// # Writes
//
// Service.UpdateOverrides validates every key before touching storage, diffs the old
// and new maps, appends an audit entry and then persists the new map in full.
// Service.ResetToTemplate stores the complete role template and records the
// RESET_ALL marker. An audit write failure is logged and counted but does not block
// the mutation. The resolved-permission cache is invalidated after every write.
//
// # UI catalog
//
// catalog.yaml maps sidebar item ids and route prefixes onto keys and describes the
// category tree shown in the permission editor. Unmapped items and routes are visible.
//
// # HTTP
//
//	api := router.PathPrefix("/api/v1").Subrouter()
//	rbac.NewHandlers(service, logger).RegisterRoutes(api)
//
// Mutating routes require the caller to hold action_manage_users.
package rbac
