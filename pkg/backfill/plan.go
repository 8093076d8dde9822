package backfill

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/grant/pkg/rbac"
)

//go:embed default_plan.yaml
var defaultPlanYAML []byte

// Plan describes how stored overrides move from an older registry to the current one
type Plan struct {
	// DeprecatedKeys are removed from every principal
	DeprecatedKeys []string `yaml:"deprecated_keys"`

	// Remap copies the value of a deprecated key onto its replacements
	Remap map[string][]string `yaml:"remap"`

	deprecated map[string]bool
}

// DefaultPlan returns the plan compiled into the binary
func DefaultPlan() (*Plan, error) {
	return LoadPlan(defaultPlanYAML)
}

// LoadPlanFile reads a plan from disk
func LoadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return LoadPlan(data)
}

// LoadPlan parses and validates a YAML plan
func LoadPlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that deprecated keys are no longer registered and that every
// remap goes from a deprecated key to registered keys
func (p *Plan) Validate() error {
	var problems []string

	p.deprecated = make(map[string]bool, len(p.DeprecatedKeys))
	for _, k := range p.DeprecatedKeys {
		if rbac.IsValid(k) {
			problems = append(problems, fmt.Sprintf("deprecated key %s is still registered", k))
		}
		p.deprecated[k] = true
	}

	sources := make([]string, 0, len(p.Remap))
	for src := range p.Remap {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		if !p.deprecated[src] {
			problems = append(problems, fmt.Sprintf("remap source %s is not deprecated", src))
		}
		for _, target := range p.Remap[src] {
			if !rbac.IsValid(target) {
				problems = append(problems, fmt.Sprintf("remap target %s of %s is not registered", target, src))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid plan: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDeprecated reports whether key is removed by the plan
func (p *Plan) IsDeprecated(key string) bool {
	if p.deprecated == nil {
		for _, k := range p.DeprecatedKeys {
			if k == key {
				return true
			}
		}
		return false
	}
	return p.deprecated[key]
}

// PlanMigration computes the complete override map a principal should hold after the backfill.
// It performs no I/O.
//
//  1. start from the role template
//  2. copy each deprecated key's stored value onto its remap targets, unless the
//     principal explicitly overrides the target
//  3. apply stored overrides for registered, non-deprecated keys
//  4. drop every deprecated key
//
// Running it on its own output returns the same map.
func PlanMigration(p rbac.Principal, templates *rbac.TemplateStore, plan *Plan) map[string]bool {
	template := templates.TemplateFor(p.Role)
	merged := template.Map()

	for _, src := range plan.DeprecatedKeys {
		v, ok := p.Overrides[src]
		if !ok {
			continue
		}
		for _, target := range plan.Remap[src] {
			if _, registered := merged[target]; !registered {
				continue
			}
			if _, explicit := p.Overrides[target]; explicit {
				continue
			}
			merged[target] = v
		}
	}

	for k, v := range p.Overrides {
		if _, registered := merged[k]; registered && !plan.IsDeprecated(k) {
			merged[k] = v
		}
	}

	for _, k := range plan.DeprecatedKeys {
		delete(merged, k)
	}

	return merged
}
