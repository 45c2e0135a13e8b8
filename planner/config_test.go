package planner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
domain: property_management
base_url: https://app.example.com
entities:
  - name: landlord
    table: landlords
    display_field: name
    identifier_field: id
    search_fields: [name, email]
routes:
  - name: entity_view
    template: "/{entity_type}/{entity_id}/{view_type}"
    description: view an entity
    intent_patterns: ["show me {entity}'s {view}"]
    parameters:
      entity_type: {type: string, required: true, examples: [landlords]}
      entity_id: {type: uuid, required: true}
      view_type: {type: string, required: true, examples: [overview]}
  - name: admin_only
    template: "/admin/{x}"
    parameters:
      x: {type: string, required: true}
    required_roles: [admin]
schema:
  tables:
    - name: landlords
      primary_key: id
      columns:
        - {name: id, type: uuid}
        - {name: name, type: string}
        - {name: email, type: string}
`

func TestParseSiteConfiguration_Valid(t *testing.T) {
	cfg, err := ParseSiteConfiguration([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "property_management", cfg.Domain)
	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, []string{"admin"}, cfg.Routes[1].RequiredRoles)
}

func TestParseSiteConfiguration_UndeclaredTemplateParam(t *testing.T) {
	bad := `
routes:
  - name: broken
    template: "/{entity_type}/{missing}"
    parameters:
      entity_type: {type: string}
`
	_, err := ParseSiteConfiguration([]byte(bad))
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindConfigurationError, pe.Kind)
}

func TestParseSiteConfiguration_DuplicatePatternName(t *testing.T) {
	bad := `
routes:
  - name: dup
    template: "/a"
  - name: dup
    template: "/b"
`
	_, err := ParseSiteConfiguration([]byte(bad))
	require.Error(t, err)
}

func TestParseSiteConfiguration_EnumWithoutValues(t *testing.T) {
	bad := `
routes:
  - name: r
    template: "/{status}"
    parameters:
      status: {type: enum}
`
	_, err := ParseSiteConfiguration([]byte(bad))
	require.Error(t, err)
}

func TestParseSiteConfiguration_UnknownTable(t *testing.T) {
	bad := `
entities:
  - name: widget
    table: widgets
schema:
  tables:
    - name: landlords
`
	_, err := ParseSiteConfiguration([]byte(bad))
	require.Error(t, err)
}

func TestParseSiteConfiguration_RestrictedIdentifierRejected(t *testing.T) {
	bad := `
entities:
  - name: landlord
    table: landlords
    identifier_field: ssn
restricted_columns: ["landlords.ssn"]
schema:
  tables:
    - name: landlords
      columns: [{name: ssn, type: string}]
`
	_, err := ParseSiteConfiguration([]byte(bad))
	require.Error(t, err)
}

func TestParseSiteConfiguration_EnvSubstitution(t *testing.T) {
	t.Setenv("ROUTER_DOMAIN", "substituted_domain")
	raw := "domain: ${ROUTER_DOMAIN}\nbase_url: \"${MISSING_VAR:-https://fallback.example.com}\"\n"
	cfg, err := ParseSiteConfiguration([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "substituted_domain", cfg.Domain)
	assert.Equal(t, "https://fallback.example.com", cfg.BaseURL)
}

func TestLoadSiteConfiguration_FileNotFound(t *testing.T) {
	_, err := LoadSiteConfiguration("/nonexistent/path.yaml")
	require.Error(t, err)
}

func TestLoadSiteConfiguration_FromFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "site-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(validYAML)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadSiteConfiguration(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "property_management", cfg.Domain)
}
