// Command grant-backfill rewrites every principal's stored permission overrides to match
// the current key registry. It is safe to run repeatedly.
//
// With -seed-admin it instead provisions the first administrator and exits; the HTTP API
// cannot create principals until one exists.
//
// Exit codes: 0 on success, 1 when the run cannot start or is interrupted, 2 when some
// principals failed and were left untouched.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/grant/pkg/audit"
	"github.com/platinummonkey/grant/pkg/backfill"
	"github.com/platinummonkey/grant/pkg/config"
	"github.com/platinummonkey/grant/pkg/observability"
	"github.com/platinummonkey/grant/pkg/rbac"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitFatal
	}

	planPath := flag.String("plan", cfg.Backfill.PlanPath, "Path to a YAML migration plan (default: built-in plan)")
	dryRun := flag.Bool("dry-run", cfg.Backfill.DryRun, "Compute and log changes without writing")
	concurrency := flag.Int("concurrency", cfg.Backfill.Concurrency, "Number of principals migrated at once")
	snapshotPath := flag.String("snapshot", cfg.Backfill.SnapshotPath, "Write pre-migration state to this JSON lines file")
	snapshotBucket := flag.String("snapshot-bucket", cfg.Backfill.S3Bucket, "Upload pre-migration state to this S3 bucket")
	seedAdmin := flag.String("seed-admin", "", "Provision an administrator with this principal id and exit")
	flag.Parse()

	logger := observability.NewLoggerWithFormat(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	defer func() {
		if perr := observability.PanicError(recover()); perr != nil {
			logger.WithError(perr).Error("grant-backfill panicked")
			code = exitFatal
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plan, err := loadPlan(*planPath)
	if err != nil {
		logger.WithError(err).Error("Invalid migration plan")
		return exitFatal
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		return exitFatal
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		return exitFatal
	}

	if _, err := rbac.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run schema migrations")
		return exitFatal
	}

	if *seedAdmin != "" {
		created, err := backfill.SeedAdministrator(ctx, rbac.NewSQLStore(db), *seedAdmin)
		if err != nil {
			logger.WithError(err).Error("Failed to seed administrator")
			return exitFatal
		}
		logger.WithFields(map[string]interface{}{
			"principal_id": *seedAdmin,
			"created":      created,
		}).Info("Administrator seeded")
		return exitOK
	}

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit log")
		return exitFatal
	}

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		return exitFatal
	}
	defer observability.ShutdownOTel(context.Background(), otelProviders, logger)

	instruments, err := observability.NewInstruments()
	if err != nil {
		logger.WithError(err).Warn("OTel instruments unavailable; continuing without them")
		instruments = nil
	}

	opts := []backfill.Option{
		backfill.WithAudit(auditLog),
		backfill.WithLogger(logger),
		backfill.WithMetrics(observability.NewMetrics(prometheus.NewRegistry())),
		backfill.WithInstruments(instruments),
		backfill.WithConcurrency(*concurrency),
		backfill.WithDryRun(*dryRun),
	}

	var snapshotter backfill.Snapshotter
	if !*dryRun {
		snapshotter, err = openSnapshotter(ctx, cfg.Backfill, *snapshotPath, *snapshotBucket)
		if err != nil {
			logger.WithError(err).Error("Failed to open snapshot destination")
			return exitFatal
		}
		if snapshotter != nil {
			opts = append(opts, backfill.WithSnapshotter(snapshotter))
		}
	}

	runner := backfill.NewRunner(rbac.NewSQLStore(db), rbac.DefaultTemplates(), plan, opts...)
	summary, runErr := runner.Run(ctx)

	if snapshotter != nil {
		if err := snapshotter.Close(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to finalize snapshot")
			if runErr == nil {
				runErr = err
			}
		}
	}

	if summary != nil {
		out, _ := json.Marshal(summary)
		fmt.Println(string(out))
	}

	if runErr != nil {
		logger.WithError(runErr).Error("Backfill did not complete")
		return exitFatal
	}
	if summary.Failed > 0 {
		logger.WithField("failed_ids", summary.FailedIDs).Warn("Some principals were not migrated; rerun after fixing them")
		return exitPartial
	}
	return exitOK
}

func loadPlan(path string) (*backfill.Plan, error) {
	if path == "" {
		return backfill.DefaultPlan()
	}
	return backfill.LoadPlanFile(path)
}

func openSnapshotter(ctx context.Context, cfg config.BackfillConfig, path, bucket string) (backfill.Snapshotter, error) {
	switch {
	case bucket != "":
		return backfill.NewS3Snapshotter(ctx, backfill.S3Config{
			Bucket:          bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
	case path != "":
		return backfill.NewFileSnapshotter(path)
	default:
		return nil, nil
	}
}
