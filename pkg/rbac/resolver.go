package rbac

// Resolver merges role templates with principal overrides.
// Resolution performs no I/O and is deterministic for a given (role, overrides, templates).
type Resolver struct {
	templates *TemplateStore
	catalog   *Catalog
}

// NewResolver creates a resolver over the given templates and UI catalog
func NewResolver(templates *TemplateStore, catalog *Catalog) *Resolver {
	return &Resolver{
		templates: templates,
		catalog:   catalog,
	}
}

// Templates returns the template store backing the resolver
func (r *Resolver) Templates() *TemplateStore {
	return r.templates
}

// Catalog returns the UI catalog backing the resolver
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve computes the effective permission set: the role template, then each override
// that names a registered key replaces the template value
func (r *Resolver) Resolve(p Principal) Set {
	return Merge(r.templates.TemplateFor(p.Role), p.Overrides)
}

// Merge applies overrides on top of a template.
// Unregistered override keys are ignored.
func Merge(template Set, overrides map[string]bool) Set {
	effective := template
	for name, v := range overrides {
		if k, ok := keysByName[name]; ok {
			effective[k] = v
		}
	}
	return effective
}

// Can reports whether the principal holds key k
func (r *Resolver) Can(p Principal, k Key) bool {
	effective := r.Resolve(p)
	return effective.Has(k)
}

// IsSidebarItemVisible reports whether a sidebar item should render.
// Items with no mapping are always visible.
func (r *Resolver) IsSidebarItemVisible(p Principal, itemID string) bool {
	k, ok := r.catalog.SidebarKey(itemID)
	if !ok {
		return true
	}
	return r.Can(p, k)
}

// CanAccessRoute reports whether the principal may open path.
// Routes with no mapping are allowed.
func (r *Resolver) CanAccessRoute(p Principal, path string) bool {
	k, ok := r.catalog.KeyForRoute(path)
	if !ok {
		return true
	}
	return r.Can(p, k)
}

// VisibleSidebarItems filters itemIDs down to those the effective set allows
func VisibleSidebarItems(c *Catalog, effective Set, itemIDs []string) map[string]bool {
	out := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		k, ok := c.SidebarKey(id)
		out[id] = !ok || effective.Has(k)
	}
	return out
}
