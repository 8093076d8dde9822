// Package backfill rewrites stored permission overrides after the key registry changes.
//
// PlanMigration is a pure function from a principal's stored state to the complete
// override map it should hold: every registered key present, template defaults for keys
// the principal never set, stored values kept where the key still exists, deprecated
// keys removed and their values carried to their replacements. Applying it twice gives
// the same result, so a Runner can be re-run safely after a partial failure.
//
//	plan, _ := backfill.DefaultPlan()
//	runner := backfill.NewRunner(store, rbac.DefaultTemplates(), plan,
//	    backfill.WithConcurrency(8),
//	    backfill.WithSnapshotter(snap),
//	)
//	summary, err := runner.Run(ctx)
package backfill
