package rbac

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Role names a permission template
type Role string

const (
	RoleAdministrator  Role = "administrator"
	RoleAssistant      Role = "assistant"
	RoleTrafficManager Role = "traffic_manager"
	RoleBroker         Role = "broker"
)

// RoleTemplate is the complete default permission map for a role
type RoleTemplate struct {
	Name        Role   `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Permissions Set    `json:"permissions"`
}

// TemplateStore holds the immutable role templates loaded at startup
type TemplateStore struct {
	templates   map[Role]*RoleTemplate
	defaultRole Role
}

//go:embed templates.yaml
var defaultTemplatesYAML []byte

var (
	defaultTemplatesOnce sync.Once
	defaultTemplates     *TemplateStore
)

// DefaultTemplates returns the templates compiled into the binary
func DefaultTemplates() *TemplateStore {
	defaultTemplatesOnce.Do(func() {
		ts, err := LoadTemplates(defaultTemplatesYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded role templates are invalid: %v", err))
		}
		defaultTemplates = ts
	})
	return defaultTemplates
}

type templateFile struct {
	DefaultRole string `yaml:"default_role"`
	Roles       map[string]struct {
		DisplayName string          `yaml:"display_name"`
		Description string          `yaml:"description"`
		Permissions map[string]bool `yaml:"permissions"`
	} `yaml:"roles"`
}

// LoadTemplates parses and validates a YAML template document.
// Every role must define every registered key and nothing else.
func LoadTemplates(data []byte) (*TemplateStore, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse role templates: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("no role templates defined")
	}

	ts := &TemplateStore{
		templates:   make(map[Role]*RoleTemplate, len(file.Roles)),
		defaultRole: Role(file.DefaultRole),
	}

	for name, def := range file.Roles {
		if invalid := InvalidKeys(def.Permissions); len(invalid) > 0 {
			return nil, fmt.Errorf("role %q defines unknown keys: %s", name, strings.Join(invalid, ", "))
		}

		var missing []string
		tmpl := &RoleTemplate{
			Name:        Role(name),
			DisplayName: def.DisplayName,
			Description: def.Description,
		}
		for _, k := range AllKeys() {
			v, ok := def.Permissions[k.String()]
			if !ok {
				missing = append(missing, k.String())
				continue
			}
			tmpl.Permissions.Put(k, v)
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("role %q is missing keys: %s", name, strings.Join(missing, ", "))
		}

		ts.templates[tmpl.Name] = tmpl
	}

	if _, ok := ts.templates[ts.defaultRole]; !ok {
		return nil, fmt.Errorf("default role %q has no template", file.DefaultRole)
	}

	return ts, nil
}

// TemplateFor returns the template for role, falling back to the default role
func (ts *TemplateStore) TemplateFor(role string) Set {
	return ts.templates[ts.ResolveRole(role)].Permissions
}

// ResolveRole maps a stored role string onto a templated role
func (ts *TemplateStore) ResolveRole(role string) Role {
	if _, ok := ts.templates[Role(role)]; ok {
		return Role(role)
	}
	return ts.defaultRole
}

// Template returns the template for an exact role name
func (ts *TemplateStore) Template(role Role) (RoleTemplate, bool) {
	t, ok := ts.templates[role]
	if !ok {
		return RoleTemplate{}, false
	}
	return *t, true
}

// DefaultRole returns the fallback role
func (ts *TemplateStore) DefaultRole() Role {
	return ts.defaultRole
}

// Roles returns every templated role sorted by name
func (ts *TemplateStore) Roles() []Role {
	roles := make([]Role, 0, len(ts.templates))
	for r := range ts.templates {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
