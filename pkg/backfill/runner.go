package backfill

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/grant/pkg/audit"
	"github.com/platinummonkey/grant/pkg/observability"
	"github.com/platinummonkey/grant/pkg/rbac"
)

const (
	outcomeMigrated  = "migrated"
	outcomeUnchanged = "unchanged"
	outcomeFailed    = "failed"

	// DefaultConcurrency is the number of principals migrated at once
	DefaultConcurrency = 4

	migrationReason = "permission registry backfill"
)

// Summary reports the result of one run
type Summary struct {
	Total     int           `json:"total"`
	Migrated  int           `json:"migrated"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	FailedIDs []string      `json:"failed_ids,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
}

// Runner rewrites every principal's overrides according to a plan
type Runner struct {
	store       rbac.PrincipalStore
	templates   *rbac.TemplateStore
	plan        *Plan
	snapshots   Snapshotter
	audit       audit.Logger
	logger      *observability.Logger
	metrics     *observability.Metrics
	instruments *observability.Instruments
	concurrency int
	dryRun      bool
}

// Option configures a Runner
type Option func(*Runner)

// WithSnapshotter stores each principal's previous state before it is rewritten
func WithSnapshotter(s Snapshotter) Option {
	return func(r *Runner) { r.snapshots = s }
}

// WithAudit records each rewrite as a system change
func WithAudit(l audit.Logger) Option {
	return func(r *Runner) { r.audit = l }
}

// WithLogger sets the runner logger
func WithLogger(l *observability.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records Prometheus counters for the run
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithInstruments records OTel counters for the run
func WithInstruments(i *observability.Instruments) Option {
	return func(r *Runner) { r.instruments = i }
}

// WithConcurrency bounds the number of principals processed at once
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDryRun computes and logs every change without writing anything
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// NewRunner creates a backfill runner
func NewRunner(store rbac.PrincipalStore, templates *rbac.TemplateStore, plan *Plan, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		templates:   templates,
		plan:        plan,
		logger:      observability.NopLogger(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.audit == nil {
		r.audit = audit.NoOpLogger{}
	}
	return r
}

// Run migrates every principal. A principal that fails is logged and counted but does
// not stop the run; the returned error is reserved for failures that affect the whole
// run, such as listing principals or context cancellation.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveBackfill(time.Since(start)) }()

	principals, err := r.store.ListPrincipals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}

	summary := &Summary{Total: len(principals), DryRun: r.dryRun}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range principals {
		p := principals[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outcome := r.migrate(gctx, p)

			mu.Lock()
			switch outcome {
			case outcomeMigrated:
				summary.Migrated++
			case outcomeUnchanged:
				summary.Unchanged++
			default:
				summary.Failed++
				summary.FailedIDs = append(summary.FailedIDs, p.ID)
			}
			mu.Unlock()

			r.metrics.RecordBackfillItem(outcome)
			r.instruments.RecordBackfillItem(gctx, outcome)
			return nil
		})
	}

	err = g.Wait()
	sort.Strings(summary.FailedIDs)
	summary.Duration = time.Since(start)

	if err != nil {
		return summary, fmt.Errorf("backfill interrupted: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"total":     summary.Total,
		"migrated":  summary.Migrated,
		"unchanged": summary.Unchanged,
		"failed":    summary.Failed,
		"dry_run":   summary.DryRun,
	}).Info("Backfill complete")

	return summary, nil
}

// migrate handles a single principal and returns its outcome
func (r *Runner) migrate(ctx context.Context, p rbac.Principal) (outcome string) {
	log := r.logger.WithFields(map[string]interface{}{
		"principal_id": p.ID,
		"role":         p.Role,
	})

	defer func() {
		if perr := observability.PanicError(recover()); perr != nil {
			log.WithError(perr).Error("Backfill of principal panicked")
			outcome = outcomeFailed
		}
	}()

	next := PlanMigration(p, r.templates, r.plan)
	if maps.Equal(p.Overrides, next) {
		log.Debug("Principal already migrated")
		return outcomeUnchanged
	}

	effective := rbac.Merge(r.templates.TemplateFor(p.Role), next)
	log = log.WithFields(map[string]interface{}{
		"keys":   len(next),
		"active": effective.Count(),
	})

	if r.dryRun {
		log.WithField("changed", len(rbac.ChangedKeys(p.Overrides, next))).Info("Would migrate principal")
		return outcomeMigrated
	}

	if r.snapshots != nil {
		rec := SnapshotRecord{
			PrincipalID: p.ID,
			Role:        p.Role,
			Overrides:   p.Overrides,
			TakenAt:     time.Now().UTC(),
		}
		if err := r.snapshots.Save(ctx, rec); err != nil {
			log.WithError(err).Error("Failed to snapshot principal; skipping")
			return outcomeFailed
		}
	}

	changed := rbac.ChangedKeys(p.Overrides, next)
	entry := audit.NewEntry(p.ID, rbac.SystemActor.String(), p.Overrides, next, changed, migrationReason)
	if err := r.audit.Log(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to write backfill audit entry; migration proceeds without audit record")
		r.metrics.RecordAuditGap("backfill")
	}

	if err := r.store.SetOverrides(ctx, p.ID, next); err != nil {
		log.WithError(err).Error("Failed to persist migrated overrides")
		return outcomeFailed
	}

	log.WithField("changed", len(changed)).Info("Migrated principal")
	return outcomeMigrated
}
