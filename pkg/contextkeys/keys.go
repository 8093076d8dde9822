// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so key usage stays
// discoverable and collision free.
//
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*middleware.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *middleware.Identity
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: rbac.RequirePermission and the mutating permission handlers
	IdentityKey Key = "identity"

	// RequestIDKey contains the request ID string
	// Set by: httputil.RequestIDMiddleware
	// Used by: observability.FromContext
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Used by: handlers that log with request-scoped fields
	LoggerKey Key = "logger"

	// AuditOperationKey contains the mutation name ("update", "reset") behind an audit write
	// Set by: rbac.Service before appending an audit entry
	// Used by: the asynchronous audit error handler to label gaps
	AuditOperationKey Key = "audit_operation"
)

// WithIdentity adds the authenticated caller to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditOperation tags the context with the mutation being audited
func WithAuditOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, AuditOperationKey, operation)
}

// GetAuditOperation returns the audited mutation name, or "unknown"
func GetAuditOperation(ctx context.Context) string {
	if op, ok := ctx.Value(AuditOperationKey).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
