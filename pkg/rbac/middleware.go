package rbac

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/grant/pkg/httputil"
	"github.com/platinummonkey/grant/pkg/middleware"
	"github.com/platinummonkey/grant/pkg/observability"
)

// PermissionMiddleware guards routes with the caller's own effective permissions
type PermissionMiddleware struct {
	service *Service
	logger  *observability.Logger
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(service *Service, logger *observability.Logger) *PermissionMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &PermissionMiddleware{
		service: service,
		logger:  logger,
	}
}

// RequirePermission creates middleware that requires the caller to hold key k.
// Callers that are not provisioned principals are forbidden.
func (pm *PermissionMiddleware) RequirePermission(k Key) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := middleware.GetIdentity(r)
			if identity == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := pm.service.Can(r.Context(), identity.Subject, k)
			if err != nil && !errors.Is(err, ErrNotFound) {
				observability.FromContext(r.Context(), pm.logger).
					WithError(err).
					WithField("caller", identity.Subject).
					Error("Permission check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "insufficient permissions: "+k.String()+" required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// actorFromRequest maps the authenticated caller onto the actor recorded in audit entries
func actorFromRequest(r *http.Request) Actor {
	identity := middleware.GetIdentity(r)
	if identity == nil {
		return Actor{ID: "anonymous"}
	}
	return Actor{ID: identity.Subject, Email: identity.Email}
}
