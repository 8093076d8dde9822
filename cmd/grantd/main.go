package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/grant/pkg/audit"
	"github.com/platinummonkey/grant/pkg/config"
	"github.com/platinummonkey/grant/pkg/httputil"
	"github.com/platinummonkey/grant/pkg/middleware"
	"github.com/platinummonkey/grant/pkg/observability"
	"github.com/platinummonkey/grant/pkg/rbac"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithFormat(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("grantd exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}

	applied, err := rbac.RunMigrations(ctx, db)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.WithField("versions", applied).Info("Applied database migrations")
	}

	auditStore, err := openAudit(db, cfg.Audit)
	if err != nil {
		db.Close()
		return err
	}

	cache, redisClient, err := openCache(ctx, cfg.Cache)
	if err != nil {
		auditStore.Close()
		db.Close()
		return err
	}

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	instruments, err := observability.NewInstruments()
	if err != nil {
		logger.WithError(err).Warn("OTel instruments unavailable; continuing without them")
		instruments = nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	authenticator, err := newAuthenticator(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	resolver := rbac.NewResolver(rbac.DefaultTemplates(), rbac.DefaultCatalog())
	opts := []rbac.ServiceOption{
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
		rbac.WithInstruments(instruments),
	}
	if cache != nil {
		opts = append(opts, rbac.WithCache(cache))
	}
	service := rbac.NewService(rbac.NewSQLStore(db), auditStore, resolver, opts...)

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(httputil.LoggingMiddleware(logger))
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(db, redisClient, version))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes))
	api.Use(middleware.NewAuthMiddleware(authenticator, logger).Handler)
	rbac.NewHandlers(service, logger).RegisterRoutes(api)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(router, "grantd"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error { return db.Close() })
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error { return auditStore.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	serverErr := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(logger, "http server")
		logger.WithFields(map[string]interface{}{
			"addr":    server.Addr,
			"version": version,
			"cache":   cfg.Cache.Type,
			"auth":    cfg.Auth.Mode,
		}).Info("Starting grantd")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- shutdown.WaitForShutdown() }()

	select {
	case err := <-serverErr:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdown.Shutdown(ctx)
		return fmt.Errorf("server failed: %w", err)
	case err := <-shutdownDone:
		return err
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// openAudit returns the database audit log, fanned out to a rotating file when enabled.
// History is always read from the database.
func openAudit(db *sql.DB, cfg config.AuditConfig) (audit.Store, error) {
	dbLog, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}
	if !cfg.FileEnabled {
		return dbLog, nil
	}

	fileLog, err := audit.NewFileLogger(audit.FileLoggerConfig{
		BasePath: cfg.FilePath,
		Rotate:   cfg.Rotate,
		MaxSize:  cfg.MaxSize,
		MaxFiles: cfg.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file audit log: %w", err)
	}

	// rbac.NewService installs its gap handler, so async failures are logged and counted.
	multi := audit.NewMultiLogger(dbLog, fileLog)
	multi.SetAsync(cfg.Async)
	return multi, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (rbac.Cache, *redis.Client, error) {
	switch cfg.Type {
	case config.CacheLRU:
		return rbac.NewLRUCache(cfg.LRUSize, cfg.TTL), nil, nil
	case config.CacheRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		if cfg.RedisDB != 0 {
			opts.DB = cfg.RedisDB
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		cache, err := rbac.NewRedisCache(pingCtx, client, cfg.TTL)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return cache, client, nil
	default:
		return nil, nil, nil
	}
}

func newAuthenticator(ctx context.Context, cfg config.AuthConfig) (middleware.Authenticator, error) {
	if cfg.Mode == config.AuthOIDC {
		authn, err := middleware.NewOIDCAuthenticator(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC: %w", err)
		}
		return authn, nil
	}
	return middleware.NewHeaderAuthenticator(cfg.SubjectHeader, cfg.EmailHeader), nil
}
