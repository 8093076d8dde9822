// Package config loads grant configuration from GRANT_-prefixed environment variables.
//
// Server settings:
//
//	GRANT_HOST="0.0.0.0"
//	GRANT_PORT="8080"
//	GRANT_SHUTDOWN_TIMEOUT="30s"
//
// Database (required by both grantd and grant-backfill):
//
//	GRANT_DATABASE_URL="postgres://grant@localhost/grant?sslmode=disable"
//
// Cache settings:
//
//	GRANT_CACHE_TYPE="lru"  # none, lru, redis
//	GRANT_CACHE_TTL="30s"
//	GRANT_REDIS_URL="redis://localhost:6379/0"
//
// Auth settings:
//
//	GRANT_AUTH_MODE="oidc"  # header, oidc
//	GRANT_OIDC_ISSUER="https://accounts.example.com"
//	GRANT_OIDC_CLIENT_ID="grant"
//
// Observability settings:
//
//	GRANT_LOG_LEVEL="info"  # debug, info, warn, error
//	GRANT_LOG_FORMAT="json" # json, text
//	GRANT_OTEL_ENABLED="true"
//	GRANT_OTEL_ENDPOINT="otel-collector:4317"
//
// Backfill defaults:
//
//	GRANT_BACKFILL_CONCURRENCY="4"
//	GRANT_BACKFILL_S3_BUCKET="grant-snapshots"
package config
