package planner

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawConfig mirrors the on-disk YAML shape of a SiteConfiguration. It exists
// separately from SiteConfiguration so the wire format (string-keyed maps,
// optional fields) can evolve independently of the in-memory model.
type rawConfig struct {
	Domain            string                   `yaml:"domain"`
	BaseURL           string                   `yaml:"base_url"`
	Entities          []rawEntity              `yaml:"entities"`
	Routes            []rawRoute               `yaml:"routes"`
	Schema            rawSchema                `yaml:"schema"`
	RestrictedColumns []string                 `yaml:"restricted_columns"`
}

type rawEntity struct {
	Name            string   `yaml:"name"`
	Table           string   `yaml:"table"`
	DisplayField    string   `yaml:"display_field"`
	IdentifierField string   `yaml:"identifier_field"`
	SearchFields    []string `yaml:"search_fields"`
	RelatedEntities []string `yaml:"related_entities"`
	Aliases         []string `yaml:"aliases"`
}

type rawRoute struct {
	Name          string                   `yaml:"name"`
	Template      string                   `yaml:"template"`
	Description   string                   `yaml:"description"`
	IntentPhrases []string                 `yaml:"intent_patterns"`
	Parameters    map[string]rawParamSpec  `yaml:"parameters"`
	RequiredRoles []string                 `yaml:"required_roles"`
}

type rawParamSpec struct {
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Values   []string `yaml:"values"`
	Examples []string `yaml:"examples"`
}

type rawSchema struct {
	Tables      []rawTable        `yaml:"tables"`
	ForeignKeys map[string]string `yaml:"foreign_keys"`
}

type rawTable struct {
	Name       string          `yaml:"name"`
	PrimaryKey string          `yaml:"primary_key"`
	Columns    []rawColumn     `yaml:"columns"`
}

type rawColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} substitution tokens.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// substituteEnv replaces ${VAR} and ${VAR:-default} tokens in raw with values
// from the process environment, per §6 "Configuration source".
func substituteEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

// LoadSiteConfiguration reads a declarative YAML site configuration from
// path, applies environment substitution, and validates the result. Any
// invariant violation returns a *Error of KindConfigurationError so callers
// (typically a daemon's startup path) can abort loudly.
func LoadSiteConfiguration(path string) (*SiteConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewWithCause(KindConfigurationError, "read site configuration", err)
	}
	return ParseSiteConfiguration(data)
}

// ParseSiteConfiguration parses and validates a site configuration from raw
// YAML bytes, applying ${VAR} / ${VAR:-default} environment substitution
// first.
func ParseSiteConfiguration(data []byte) (*SiteConfiguration, error) {
	substituted := substituteEnv(data)

	var raw rawConfig
	if err := yaml.Unmarshal(substituted, &raw); err != nil {
		return nil, NewWithCause(KindConfigurationError, "parse site configuration yaml", err)
	}

	cfg := &SiteConfiguration{
		Domain:            raw.Domain,
		BaseURL:           raw.BaseURL,
		RestrictedColumns: raw.RestrictedColumns,
	}

	for _, e := range raw.Entities {
		cfg.Entities = append(cfg.Entities, EntityDefinition{
			Name:            e.Name,
			Table:           e.Table,
			DisplayField:    e.DisplayField,
			IdentifierField: e.IdentifierField,
			SearchFields:    e.SearchFields,
			RelatedEntities: e.RelatedEntities,
			Aliases:         e.Aliases,
		})
	}

	for _, r := range raw.Routes {
		params := make(map[string]ParameterSpec, len(r.Parameters))
		for name, p := range r.Parameters {
			params[name] = ParameterSpec{
				Type:     parseParameterType(p.Type),
				Required: p.Required,
				Values:   p.Values,
				Examples: p.Examples,
			}
		}
		cfg.Routes = append(cfg.Routes, RoutePattern{
			Name:          r.Name,
			Template:      r.Template,
			Description:   r.Description,
			IntentPhrases: r.IntentPhrases,
			Parameters:    params,
			RequiredRoles: r.RequiredRoles,
		})
	}

	for _, t := range raw.Schema.Tables {
		var cols []ColumnSpec
		for _, c := range t.Columns {
			cols = append(cols, ColumnSpec{Name: c.Name, Type: c.Type})
		}
		cfg.Schema.Tables = append(cfg.Schema.Tables, TableSpec{
			Name:       t.Name,
			Columns:    cols,
			PrimaryKey: t.PrimaryKey,
		})
	}
	cfg.Schema.ForeignKeys = raw.Schema.ForeignKeys

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// templateParamPattern matches {name} segments in a route template.
var templateParamPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// TemplateParamNames returns the ordered list of {name} segments in template.
func TemplateParamNames(template string) []string {
	matches := templateParamPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Validate checks the invariants of §4.C1: every {name} in a route template
// must be a declared parameter, pattern names are unique, enum parameters
// must declare a value set, and, when the schema declares any tables,
// EntityDefinitions must reference one of them. It also rejects configurations where a restricted column (§4.C3)
// is also used as an entity's identifier field, since the interaction is
// unspecified (§9 Open Question 2).
func (c *SiteConfiguration) Validate() error {
	seenPatternNames := make(map[string]bool, len(c.Routes))
	for _, route := range c.Routes {
		if route.Name == "" {
			return New(KindConfigurationError, "route pattern missing a name")
		}
		if seenPatternNames[route.Name] {
			return Errorf(KindConfigurationError, "duplicate route pattern name %q", route.Name)
		}
		seenPatternNames[route.Name] = true

		for _, name := range TemplateParamNames(route.Template) {
			spec, ok := route.Parameters[name]
			if !ok {
				return Errorf(KindConfigurationError, "route %q template references undeclared parameter %q", route.Name, name)
			}
			if spec.Type == ParamEnum && len(spec.Values) == 0 {
				return Errorf(KindConfigurationError, "route %q parameter %q is type enum but declares no values", route.Name, name)
			}
		}
	}

	tableNames := make(map[string]bool, len(c.Schema.Tables))
	tableColumns := make(map[string]map[string]bool, len(c.Schema.Tables))
	for _, t := range c.Schema.Tables {
		tableNames[t.Name] = true
		cols := make(map[string]bool, len(t.Columns))
		for _, col := range t.Columns {
			cols[col.Name] = true
		}
		tableColumns[t.Name] = cols
	}

	restricted := make(map[string]bool, len(c.RestrictedColumns))
	for _, rc := range c.RestrictedColumns {
		restricted[rc] = true
	}

	for _, e := range c.Entities {
		if e.Table == "" {
			return Errorf(KindConfigurationError, "entity %q has no table", e.Name)
		}
		if len(tableNames) > 0 && !tableNames[e.Table] {
			return Errorf(KindConfigurationError, "entity %q references unknown table %q", e.Name, e.Table)
		}
		if e.IdentifierField != "" {
			key := fmt.Sprintf("%s.%s", e.Table, e.IdentifierField)
			if restricted[key] {
				return Errorf(KindConfigurationError, "entity %q identifier field %q is a restricted column; restricted columns cannot back entity identity", e.Name, key)
			}
		}
	}

	return nil
}

// strippedTable returns the table name with a trailing plural 's' removed,
// used by entity-type inference (§4.C4) when no hand-coded mapping exists.
func strippedTable(table string) string {
	return strings.TrimSuffix(table, "s")
}
