package rbac

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedTemplatesParse(t *testing.T) {
	ts, err := LoadTemplates(defaultTemplatesYAML)
	require.NoError(t, err)

	assistant, ok := ts.Template(RoleAssistant)
	require.True(t, ok)
	assert.Equal(t, "Back-office support: sales intake, operations and messaging", assistant.Description)

	broker, ok := ts.Template(RoleBroker)
	require.True(t, ok)
	assert.Equal(t, "Field broker: proposals, own sales, commissions and materials", broker.Description)
}

func TestEmbeddedCatalogParses(t *testing.T) {
	_, err := LoadCatalog(defaultCatalogYAML)
	require.NoError(t, err)
}

func TestDefaultTemplates(t *testing.T) {
	ts := DefaultTemplates()

	assert.Equal(t, RoleBroker, ts.DefaultRole())
	assert.Equal(t, []Role{RoleAdministrator, RoleAssistant, RoleBroker, RoleTrafficManager}, ts.Roles())

	admin := ts.TemplateFor("administrator")
	assert.Equal(t, KeyCount(), admin.Count(), "administrator holds every key")

	broker := ts.TemplateFor("broker")
	assert.True(t, broker.Has(NavSalesProposalsQueue))
	assert.True(t, broker.Has(FinViewCommissions))
	assert.False(t, broker.Has(ActionDeleteLead))
	assert.False(t, broker.Has(ActionManageUsers))
}

func TestTemplateFor_FallsBackToDefault(t *testing.T) {
	ts := DefaultTemplates()

	for _, role := range []string{"", "super_admin", "BROKER", "legacy-role"} {
		t.Run(fmt.Sprintf("role=%q", role), func(t *testing.T) {
			assert.Equal(t, ts.TemplateFor("broker"), ts.TemplateFor(role))
			assert.Equal(t, RoleBroker, ts.ResolveRole(role))
		})
	}
}

func TestTemplate_Lookup(t *testing.T) {
	ts := DefaultTemplates()

	tmpl, ok := ts.Template(RoleTrafficManager)
	require.True(t, ok)
	assert.Equal(t, RoleTrafficManager, tmpl.Name)
	assert.NotEmpty(t, tmpl.DisplayName)

	_, ok = ts.Template(Role("ghost"))
	assert.False(t, ok)
}

// completeRole renders a role with every key set to value, plus extra lines
func completeRole(value bool, extra ...string) string {
	var b strings.Builder
	for _, k := range AllKeys() {
		fmt.Fprintf(&b, "      %s: %t\n", k, value)
	}
	for _, line := range extra {
		b.WriteString("      " + line + "\n")
	}
	return b.String()
}

func TestLoadTemplates_Validation(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		doc := "default_role: only\nroles:\n  only:\n    permissions:\n" + completeRole(false)
		ts, err := LoadTemplates([]byte(doc))
		require.NoError(t, err)
		tmpl := ts.TemplateFor("anything")
		assert.Equal(t, 0, tmpl.Count())
	})

	t.Run("unknown key", func(t *testing.T) {
		doc := "default_role: only\nroles:\n  only:\n    permissions:\n" + completeRole(true, "bogus_key: true")
		_, err := LoadTemplates([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bogus_key")
	})

	t.Run("missing key", func(t *testing.T) {
		body := strings.Replace(completeRole(true), "      nav_home: true\n", "", 1)
		doc := "default_role: only\nroles:\n  only:\n    permissions:\n" + body
		_, err := LoadTemplates([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nav_home")
	})

	t.Run("default role without template", func(t *testing.T) {
		doc := "default_role: ghost\nroles:\n  only:\n    permissions:\n" + completeRole(true)
		_, err := LoadTemplates([]byte(doc))
		assert.Error(t, err)
	})

	t.Run("no roles", func(t *testing.T) {
		_, err := LoadTemplates([]byte("default_role: broker\n"))
		assert.Error(t, err)
	})
}
