package config

import (
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/grant/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(envPrefix+tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", want: true},
		{name: "one", envValue: "1", want: true},
		{name: "upper case", envValue: "TRUE", want: true},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "unset uses default", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRANT_TEST_BOOL", tt.envValue)

			got := getEnvBool("TEST_BOOL", tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvNumeric tests the numeric and duration helpers
func TestGetEnvNumeric(t *testing.T) {
	t.Setenv("GRANT_TEST_INT", "42")
	t.Setenv("GRANT_TEST_BAD_INT", "forty-two")
	t.Setenv("GRANT_TEST_INT64", "1099511627776")
	t.Setenv("GRANT_TEST_FLOAT", "0.25")
	t.Setenv("GRANT_TEST_DURATION", "90s")
	t.Setenv("GRANT_TEST_BAD_DURATION", "soon")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() with invalid value = %d, want default 7", got)
	}
	if got := getEnvInt64("TEST_INT64", 0); got != 1099511627776 {
		t.Errorf("getEnvInt64() = %d, want 1099511627776", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() with invalid value = %v, want default 1s", got)
	}
}

// TestLoadConfigDefaults tests defaults with only the database URL set
func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GRANT_DATABASE_URL", "postgres://localhost/grant")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %s, want 0.0.0.0:8080", cfg.Server.Addr())
	}
	if cfg.Cache.Type != CacheLRU {
		t.Errorf("Cache.Type = %s, want %s", cfg.Cache.Type, CacheLRU)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %v, want 30s", cfg.Cache.TTL)
	}
	if cfg.Auth.Mode != AuthHeader {
		t.Errorf("Auth.Mode = %s, want %s", cfg.Auth.Mode, AuthHeader)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
	if cfg.Observability.OTelEnabled {
		t.Error("OTel should be disabled by default")
	}
	if cfg.Backfill.Concurrency != 4 {
		t.Errorf("Backfill.Concurrency = %d, want 4", cfg.Backfill.Concurrency)
	}
}

// TestLoadConfigOverrides tests that environment values win over defaults
func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GRANT_DATABASE_URL", "postgres://db/grant")
	t.Setenv("GRANT_PORT", "9000")
	t.Setenv("GRANT_CACHE_TYPE", "Redis")
	t.Setenv("GRANT_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("GRANT_LOG_LEVEL", "debug")
	t.Setenv("GRANT_LOG_FORMAT", "text")
	t.Setenv("GRANT_OTEL_ENABLED", "true")
	t.Setenv("GRANT_OTEL_SAMPLE_RATIO", "0.1")
	t.Setenv("GRANT_BACKFILL_DRY_RUN", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("Server.Port = %s, want 9000", cfg.Server.Port)
	}
	if cfg.Cache.Type != CacheRedis {
		t.Errorf("Cache.Type = %s, want redis", cfg.Cache.Type)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != observability.FormatText {
		t.Errorf("LogFormat = %s, want text", cfg.Observability.LogFormat)
	}

	otel := cfg.Observability.OTel()
	if !otel.Enabled || otel.SampleRatio != 0.1 || otel.ServiceName != "grant" {
		t.Errorf("OTel() = %+v", otel)
	}
	if !cfg.Backfill.DryRun {
		t.Error("Backfill.DryRun should be true")
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080"},
			Database: DatabaseConfig{URL: "postgres://localhost/grant"},
			Cache:    CacheConfig{Type: CacheLRU, LRUSize: 10},
			Auth:     AuthConfig{Mode: AuthHeader, SubjectHeader: "X-Principal-ID"},
			Observability: ObservabilityConfig{
				LogFormat: observability.FormatJSON,
			},
			Backfill: BackfillConfig{Concurrency: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database url", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: "GRANT_DATABASE_URL"},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Type = "memcached" }, wantErr: "invalid cache type"},
		{name: "redis without url", mutate: func(c *Config) { c.Cache.Type = CacheRedis }, wantErr: "redis URL"},
		{name: "cache disabled", mutate: func(c *Config) { c.Cache = CacheConfig{Type: CacheNone} }},
		{name: "oidc without issuer", mutate: func(c *Config) { c.Auth.Mode = AuthOIDC }, wantErr: "OIDC issuer"},
		{name: "unknown auth mode", mutate: func(c *Config) { c.Auth.Mode = "saml" }, wantErr: "invalid auth mode"},
		{name: "file audit without path", mutate: func(c *Config) { c.Audit.FileEnabled = true }, wantErr: "audit file path"},
		{name: "bad log format", mutate: func(c *Config) { c.Observability.LogFormat = "xml" }, wantErr: "invalid log format"},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "grant"
			},
			wantErr: "OpenTelemetry endpoint",
		},
		{name: "zero concurrency", mutate: func(c *Config) { c.Backfill.Concurrency = 0 }, wantErr: "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadConfigRequiresDatabase tests that a missing credential is fatal
func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("GRANT_DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() expected an error without GRANT_DATABASE_URL")
	}
}
