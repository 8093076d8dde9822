// Package httputil provides the JSON envelope, request parsing and common middleware
// shared by the grant HTTP handlers.
//
// Every response body is an object with a boolean "success" field. Errors add "error":
//
//	httputil.WriteOK(w, map[string]interface{}{"changed_keys": keys})
//	httputil.WriteErrorMessage(w, http.StatusNotFound, "principal not found")
//
// Middleware composes with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
