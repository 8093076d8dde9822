package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/grant/pkg/httputil"
	"github.com/platinummonkey/grant/pkg/observability"
)

// Handlers provides the HTTP surface of the permission service
type Handlers struct {
	service *Service
	guard   *PermissionMiddleware
	logger  *observability.Logger
}

// NewHandlers creates new permission handlers
func NewHandlers(service *Service, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{
		service: service,
		guard:   NewPermissionMiddleware(service, logger),
		logger:  logger,
	}
}

// RegisterRoutes registers all permission routes.
// Mutating routes require the caller to hold action_manage_users.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	manage := h.guard.RequirePermission(ActionManageUsers)

	// Provisioning
	router.Handle("/principals", manage(http.HandlerFunc(h.CreatePrincipal))).Methods("POST")

	// Stored state and mutations
	router.HandleFunc("/principals/{id}/permissions", h.GetPermissions).Methods("GET")
	router.Handle("/principals/{id}/permissions", manage(http.HandlerFunc(h.UpdatePermissions))).Methods("PUT")
	router.Handle("/principals/{id}/permissions/reset", manage(http.HandlerFunc(h.ResetPermissions))).Methods("POST")
	router.HandleFunc("/principals/{id}/permissions/audit", h.GetAuditLog).Methods("GET")

	// Checks
	router.HandleFunc("/principals/{id}/permissions/check", h.CheckPermission).Methods("GET")
	router.HandleFunc("/principals/{id}/sidebar", h.SidebarVisibility).Methods("GET")
	router.HandleFunc("/principals/{id}/routes/check", h.CheckRoute).Methods("GET")

	// Registry and templates
	router.HandleFunc("/permissions/keys", h.ListKeys).Methods("GET")
	router.HandleFunc("/permissions/templates/{role}", h.GetTemplate).Methods("GET")
}

// GetPermissions returns the stored role and overrides; ?resolved=true adds the effective set
func (h *Handlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	resolved, err := httputil.ParseQueryBool(r, "resolved", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	view, err := h.service.GetPermissions(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body := httputil.Envelope{
		"role":      view.Role,
		"overrides": view.Overrides,
	}
	if resolved {
		effective, err := h.service.EffectivePermissions(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		body["effective"] = effective
		body["active_count"] = effective.Count()
	}
	httputil.WriteOK(w, body)
}

type updatePermissionsRequest struct {
	Overrides map[string]bool `json:"overrides"`
	Reason    string          `json:"reason"`
}

// UpdatePermissions replaces the principal's overrides
func (h *Handlers) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req updatePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Overrides == nil {
		httputil.WriteBadRequest(w, "overrides is required")
		return
	}

	changed, err := h.service.UpdateOverrides(r.Context(), id, req.Overrides, actorFromRequest(r), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"changed_keys": changed})
}

// ResetPermissions resets the principal to its role template
func (h *Handlers) ResetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	changed, err := h.service.ResetToTemplate(r.Context(), id, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"changed_keys": changed})
}

// GetAuditLog returns the principal's change history, newest first
func (h *Handlers) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"entries": entries})
}

type createPrincipalRequest struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Overrides map[string]bool `json:"overrides"`
}

// CreatePrincipal provisions a principal
func (h *Handlers) CreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req createPrincipalRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ID, "id") {
		return
	}

	p, err := h.service.CreatePrincipal(r.Context(), req.ID, req.Role, req.Overrides)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, httputil.Envelope{"principal": p})
}

// CheckPermission answers whether the principal holds ?key=
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	k, err := ParseKey(r.URL.Query().Get("key"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	allowed, err := h.service.Can(r.Context(), id, k)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"key": k.String(), "allowed": allowed})
}

// SidebarVisibility reports which of ?items= should render
func (h *Handlers) SidebarVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	visible, err := h.service.SidebarVisibility(r.Context(), id, httputil.ParseQueryList(r, "items"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"items": visible})
}

// CheckRoute answers whether the principal may open ?path=
func (h *Handlers) CheckRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if !httputil.RequireNonEmpty(w, path, "path") {
		return
	}

	allowed, err := h.service.CanAccessRoute(r.Context(), id, path)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"path": path, "allowed": allowed})
}

// ListKeys returns the key registry and the admin categories tree
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys := AllKeys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	httputil.WriteOK(w, httputil.Envelope{
		"registry_version": RegistryVersion,
		"keys":             names,
		"categories":       h.service.Resolver().Catalog().Categories(),
	})
}

// GetTemplate returns the complete template of a role
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}

	tmpl, found := h.service.Resolver().Templates().Template(Role(role))
	if !found {
		httputil.WriteNotFound(w, "unknown role: "+role)
		return
	}
	httputil.WriteOK(w, httputil.Envelope{"template": tmpl})
}

// writeServiceError maps service errors onto status codes
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		httputil.WriteDetailedError(w, http.StatusBadRequest, ve.Error(), httputil.Envelope{
			"invalid_keys": ve.InvalidKeys,
		})
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrAlreadyExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrUnknownRole):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context(), h.logger).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Permission request failed")
		httputil.WriteInternalError(w)
	}
}
