package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/grant/pkg/audit"
	"github.com/platinummonkey/grant/pkg/contextkeys"
	"github.com/platinummonkey/grant/pkg/observability"
)

const (
	opUpdate = "update"
	opReset  = "reset"
)

// Service exposes permission reads and the audited mutations over a principal store
type Service struct {
	store       PrincipalStore
	audit       audit.Store
	resolver    *Resolver
	cache       Cache
	logger      *observability.Logger
	metrics     *observability.Metrics
	instruments *observability.Instruments
	tracer      trace.Tracer
}

// ServiceOption configures optional collaborators
type ServiceOption func(*Service)

// WithCache enables the resolved-permission cache
func WithCache(cache Cache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records Prometheus metrics
func WithMetrics(metrics *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithInstruments records OTel counters
func WithInstruments(instruments *observability.Instruments) ServiceOption {
	return func(s *Service) { s.instruments = instruments }
}

// NewService creates a permission service
func NewService(store PrincipalStore, auditStore audit.Store, resolver *Resolver, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		audit:    auditStore,
		resolver: resolver,
		logger:   observability.NopLogger(),
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = audit.NoOpLogger{}
	}
	if r, ok := s.audit.(asyncAuditReporter); ok {
		r.SetErrorHandler(s.recordAuditGap)
	}
	return s
}

// asyncAuditReporter is implemented by audit stores that fail after Log returns
type asyncAuditReporter interface {
	SetErrorHandler(audit.ErrorHandler)
}

// Resolver returns the resolver used by the service
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// GetPermissions returns the stored role and overrides of a principal
func (s *Service) GetPermissions(ctx context.Context, principalID string) (*PermissionsView, error) {
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return &PermissionsView{
		PrincipalID: p.ID,
		Role:        p.Role,
		Overrides:   p.Overrides,
	}, nil
}

// EffectivePermissions resolves the principal's effective set, serving from the cache when possible
func (s *Service) EffectivePermissions(ctx context.Context, principalID string) (Set, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, principalID); ok {
			s.metrics.RecordCacheLookup(true)
			return cached.Permissions, nil
		}
		s.metrics.RecordCacheLookup(false)
	}

	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return Set{}, err
	}

	effective := s.resolver.Resolve(*p)
	if s.cache != nil {
		s.cache.Put(ctx, principalID, effective)
	}
	return effective, nil
}

// Can reports whether the principal holds key k
func (s *Service) Can(ctx context.Context, principalID string, k Key) (bool, error) {
	effective, err := s.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	allowed := effective.Has(k)
	s.metrics.RecordCheck("key", allowed)
	return allowed, nil
}

// SidebarVisibility reports, for each item id, whether the sidebar should render it
func (s *Service) SidebarVisibility(ctx context.Context, principalID string, itemIDs []string) (map[string]bool, error) {
	effective, err := s.EffectivePermissions(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return VisibleSidebarItems(s.resolver.Catalog(), effective, itemIDs), nil
}

// CanAccessRoute reports whether the principal may open path
func (s *Service) CanAccessRoute(ctx context.Context, principalID, path string) (bool, error) {
	effective, err := s.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	allowed := true
	if k, ok := s.resolver.Catalog().KeyForRoute(path); ok {
		allowed = effective.Has(k)
	}
	s.metrics.RecordCheck("route", allowed)
	return allowed, nil
}

// UpdateOverrides replaces a principal's overrides and returns the keys whose
// presence or value changed. Invalid keys reject the whole write before anything
// is read or persisted.
func (s *Service) UpdateOverrides(ctx context.Context, principalID string, overrides map[string]bool, actor Actor, reason string) (changed []string, err error) {
	ctx, span := s.tracer.Start(ctx, "rbac.UpdateOverrides", trace.WithAttributes(
		attribute.String("principal.id", principalID),
		attribute.Int("overrides.count", len(overrides)),
	))
	defer func() { s.finish(ctx, span, opUpdate, err) }()

	if err := validateOverrides(overrides); err != nil {
		return nil, err
	}

	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	next := copyOverrides(overrides)
	if next == nil {
		next = map[string]bool{}
	}
	changed = ChangedKeys(p.Overrides, next)

	s.appendAudit(ctx, opUpdate, audit.NewEntry(principalID, actor.String(), p.Overrides, next, changed, reason))

	if err := s.store.SetOverrides(ctx, principalID, next); err != nil {
		return nil, wrapPersistence("persist overrides", err)
	}

	s.invalidate(ctx, principalID)
	s.logger.WithFields(map[string]interface{}{
		"principal_id": principalID,
		"actor":        actor.ID,
		"changed":      len(changed),
	}).Info("Permission overrides updated")

	return changed, nil
}

// ResetToTemplate replaces a principal's overrides with the complete template of its role
func (s *Service) ResetToTemplate(ctx context.Context, principalID string, actor Actor) (changed []string, err error) {
	ctx, span := s.tracer.Start(ctx, "rbac.ResetToTemplate", trace.WithAttributes(
		attribute.String("principal.id", principalID),
	))
	defer func() { s.finish(ctx, span, opReset, err) }()

	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	role := s.resolver.Templates().ResolveRole(p.Role)
	template := s.resolver.Templates().TemplateFor(p.Role)
	snapshot := template.Map()
	changed = []string{ResetAllMarker}
	reason := fmt.Sprintf("reset to role template: %s", role)

	s.appendAudit(ctx, opReset, audit.NewEntry(principalID, actor.String(), p.Overrides, snapshot, changed, reason))

	if err := s.store.SetOverrides(ctx, principalID, snapshot); err != nil {
		return nil, wrapPersistence("persist template reset", err)
	}

	s.invalidate(ctx, principalID)
	s.logger.WithFields(map[string]interface{}{
		"principal_id": principalID,
		"actor":        actor.ID,
		"role":         string(role),
	}).Info("Permissions reset to role template")

	return changed, nil
}

// History returns a principal's audit entries, newest first
func (s *Service) History(ctx context.Context, principalID string, limit int) ([]audit.Entry, error) {
	if _, err := s.store.GetPrincipal(ctx, principalID); err != nil {
		return nil, err
	}

	entries, err := s.audit.History(ctx, principalID, audit.NormalizeLimit(limit))
	if err != nil {
		return nil, &PersistenceError{Op: "read audit history", Err: err}
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

// CreatePrincipal provisions a principal with a known role and validated initial overrides.
// An empty role provisions the default role.
func (s *Service) CreatePrincipal(ctx context.Context, principalID, role string, overrides map[string]bool) (*Principal, error) {
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}
	if role == "" {
		role = string(s.resolver.Templates().DefaultRole())
	}
	if _, ok := s.resolver.Templates().Template(Role(role)); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if err := validateOverrides(overrides); err != nil {
		return nil, err
	}

	p := &Principal{
		ID:        principalID,
		Role:      role,
		Overrides: copyOverrides(overrides),
	}
	if p.Overrides == nil {
		p.Overrides = map[string]bool{}
	}
	if err := s.store.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"principal_id": principalID,
		"role":         role,
	}).Info("Principal provisioned")
	return p, nil
}

// ChangedKeys returns, sorted, every key in the union of before and after whose
// presence or value differs. A key absent on one side counts as changed.
func ChangedKeys(before, after map[string]bool) []string {
	changed := make([]string, 0)
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// appendAudit writes the entry. A failed write does not block the mutation; the gap
// is logged at error level and counted.
// Asynchronous stores report through recordAuditGap once the write settles.
func (s *Service) appendAudit(ctx context.Context, operation string, entry *audit.Entry) {
	ctx = contextkeys.WithAuditOperation(ctx, operation)
	if err := s.audit.Log(ctx, entry); err != nil {
		s.recordAuditGap(ctx, entry, err)
	}
}

func (s *Service) recordAuditGap(ctx context.Context, entry *audit.Entry, err error) {
	operation := contextkeys.GetAuditOperation(ctx)
	observability.LoggerWithTraceContext(ctx, s.logger).
		WithError(err).
		WithFields(map[string]interface{}{
			"principal_id": entry.PrincipalID,
			"operation":    operation,
			"audit_id":     entry.ID,
		}).
		Error("Failed to write permission audit entry; mutation proceeds without audit record")
	s.metrics.RecordAuditGap(operation)
	s.instruments.RecordAuditGap(ctx, operation)
}

func (s *Service) invalidate(ctx context.Context, principalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, principalID); err != nil {
		s.logger.WithError(err).WithField("principal_id", principalID).Warn("Failed to invalidate cached permissions")
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, operation string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case IsValidationError(err):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.metrics.RecordMutation(operation, outcome)
	s.instruments.RecordMutation(ctx, operation, outcome)
}

func wrapPersistence(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
