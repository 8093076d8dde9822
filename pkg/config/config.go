package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/grant/pkg/observability"
)

const envPrefix = "GRANT_"

// Cache backends
const (
	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheRedis = "redis"
)

// Authentication modes
const (
	AuthHeader = "header"
	AuthOIDC   = "oidc"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Backfill      BackfillConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds the principal and audit store connection
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// CacheConfig selects the resolved-permission cache
type CacheConfig struct {
	Type          string // none, lru, redis
	TTL           time.Duration
	LRUSize       int
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// AuditConfig controls the secondary file audit sink.
// The database log is always written.
type AuditConfig struct {
	FileEnabled bool
	FilePath    string
	Rotate      bool
	MaxSize     int64
	MaxFiles    int
	Async       bool
}

// AuthConfig selects how the acting principal is identified
type AuthConfig struct {
	Mode          string // header, oidc
	OIDCIssuer    string
	OIDCClientID  string
	SubjectHeader string
	EmailHeader   string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  observability.LogLevel
	LogFormat observability.LogFormat

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// BackfillConfig holds defaults for the migration tool; flags override them
type BackfillConfig struct {
	PlanPath     string
	DryRun       bool
	Concurrency  int
	SnapshotPath string

	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Audit:         loadAuditConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
		Backfill:      loadBackfillConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DATABASE_CONNECT_TIMEOUT", 10*time.Second),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Type:          strings.ToLower(getEnv("CACHE_TYPE", CacheLRU)),
		TTL:           getEnvDuration("CACHE_TTL", 30*time.Second),
		LRUSize:       getEnvInt("CACHE_LRU_SIZE", 10000),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		FileEnabled: getEnvBool("AUDIT_FILE_ENABLED", false),
		FilePath:    getEnv("AUDIT_FILE_PATH", "/var/log/grant"),
		Rotate:      getEnvBool("AUDIT_FILE_ROTATE", true),
		MaxSize:     getEnvInt64("AUDIT_FILE_MAX_SIZE", 100*1024*1024),
		MaxFiles:    getEnvInt("AUDIT_FILE_MAX_FILES", 10),
		Async:       getEnvBool("AUDIT_ASYNC", false),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Mode:          strings.ToLower(getEnv("AUTH_MODE", AuthHeader)),
		OIDCIssuer:    getEnv("OIDC_ISSUER", ""),
		OIDCClientID:  getEnv("OIDC_CLIENT_ID", ""),
		SubjectHeader: getEnv("AUTH_SUBJECT_HEADER", "X-Principal-ID"),
		EmailHeader:   getEnv("AUTH_EMAIL_HEADER", "X-Principal-Email"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:          observability.LogFormat(strings.ToLower(getEnv("LOG_FORMAT", string(observability.FormatJSON)))),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "grant"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1.0),
	}
}

func loadBackfillConfig() BackfillConfig {
	return BackfillConfig{
		PlanPath:     getEnv("BACKFILL_PLAN", ""),
		DryRun:       getEnvBool("BACKFILL_DRY_RUN", false),
		Concurrency:  getEnvInt("BACKFILL_CONCURRENCY", 4),
		SnapshotPath: getEnv("BACKFILL_SNAPSHOT_PATH", ""),
		S3Bucket:     getEnv("BACKFILL_S3_BUCKET", ""),
		S3Prefix:     getEnv("BACKFILL_S3_PREFIX", "grant-backfill"),
		S3Region:     getEnv("BACKFILL_S3_REGION", "us-east-1"),
		S3Endpoint:   getEnv("BACKFILL_S3_ENDPOINT", ""),
		S3AccessKey:  getEnv("BACKFILL_S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("BACKFILL_S3_SECRET_KEY", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("%sDATABASE_URL is required", envPrefix)
	}

	switch c.Cache.Type {
	case CacheNone:
	case CacheLRU:
		if c.Cache.LRUSize <= 0 {
			return fmt.Errorf("LRU cache size must be positive")
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be none, lru, or redis)", c.Cache.Type)
	}

	if c.Audit.FileEnabled && c.Audit.FilePath == "" {
		return fmt.Errorf("audit file path is required when the file audit log is enabled")
	}

	switch c.Auth.Mode {
	case AuthHeader:
		if c.Auth.SubjectHeader == "" {
			return fmt.Errorf("subject header is required for header authentication")
		}
	case AuthOIDC:
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client id are required for oidc authentication")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be header or oidc)", c.Auth.Mode)
	}

	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	if c.Backfill.Concurrency <= 0 {
		return fmt.Errorf("backfill concurrency must be positive")
	}

	return nil
}

// getEnv returns GRANT_<key> or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
