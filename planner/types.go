// Package planner implements the intent-routing planning pipeline: it turns a
// free-form user query into a structured ActionPlan by combining a single LLM
// call, a layered entity resolver, route validation, and a two-tier cache.
package planner

// ActionKind is the closed set of actions the router can suggest.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionQuery    ActionKind = "query"
	ActionCreate   ActionKind = "create"
	ActionEdit     ActionKind = "edit"
	ActionDelete   ActionKind = "delete"
)

// parseActionKind coerces an arbitrary wire value to the closed ActionKind
// variant, defaulting to ActionNavigate for unknown or empty values so the
// planner never fails closed on a forward-compatible wire value.
func parseActionKind(s string) ActionKind {
	switch ActionKind(s) {
	case ActionNavigate, ActionQuery, ActionCreate, ActionEdit, ActionDelete:
		return ActionKind(s)
	default:
		return ActionNavigate
	}
}

// ParameterType is the closed set of route parameter types.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamInteger ParameterType = "integer"
	ParamUUID    ParameterType = "uuid"
	ParamSlug    ParameterType = "slug"
	ParamEnum    ParameterType = "enum"
)

func parseParameterType(s string) ParameterType {
	switch ParameterType(s) {
	case ParamString, ParamInteger, ParamUUID, ParamSlug, ParamEnum:
		return ParameterType(s)
	default:
		return ParamString
	}
}

// ParameterSource records how a RouteParameter's value was derived.
type ParameterSource string

const (
	SourceEntity   ParameterSource = "entity"
	SourceLiteral  ParameterSource = "literal"
	SourceInferred ParameterSource = "inferred"
	SourceLLM      ParameterSource = "llm"
)

// ParameterSpec declares one route parameter: its type, whether it is
// required, an optional enumerated value set, and example values injected
// into the prompt.
type ParameterSpec struct {
	Type     ParameterType
	Required bool
	Values   []string // enumerated values, only meaningful when Type == ParamEnum
	Examples []string
}

// RoutePattern is a declared URL shape with typed {name} parameter slots.
//
// Invariant: every {name} segment in Template must be a key in Parameters.
type RoutePattern struct {
	Name          string
	Template      string
	Description   string
	IntentPhrases []string
	Parameters    map[string]ParameterSpec
	RequiredRoles []string // empty means no RBAC restriction
}

// EntityDefinition describes a logical domain entity backed by a table.
type EntityDefinition struct {
	Name            string
	Table           string
	DisplayField    string
	IdentifierField string
	SearchFields    []string
	RelatedEntities []string
	Aliases         []string
}

// ColumnSpec describes one column of a TableSpec.
type ColumnSpec struct {
	Name string
	Type string
}

// TableSpec describes one table of a SchemaSpec.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	PrimaryKey string
}

// SchemaSpec is a structural description of the backing tabular store,
// including inter-table foreign-key relationships expressed as
// "tableA.col" -> "tableB.col".
type SchemaSpec struct {
	Tables        []TableSpec
	ForeignKeys   map[string]string
}

// SiteConfiguration aggregates the declarative description of a domain: its
// entities, route patterns, and backing schema. It is loaded once at startup
// and never mutated afterward.
type SiteConfiguration struct {
	Domain   string
	BaseURL  string
	Entities []EntityDefinition
	Routes   []RoutePattern
	Schema   SchemaSpec

	// RestrictedColumns lists "table.column" pairs that RecordSearcher
	// implementations must neither search nor return (§4.C3).
	RestrictedColumns []string
}

// EntityMatch is one entity resolved by the Entity Resolver (C4) from a
// fuzzy name and a set of table/field hints.
type EntityMatch struct {
	ID            string
	Name          string
	Table         string
	EntityType    string
	Confidence    float64
	MatchedFields []string
	Raw           map[string]any
}

// RouteParameter is one filled route parameter, recording both its value and
// how that value was derived.
type RouteParameter struct {
	Name   string
	Value  string
	Type   ParameterType
	Source ParameterSource
}

// ShallowActionPlan is an ActionPlan without its own Alternatives, used to
// prevent unbounded recursive nesting (see spec §9 Design Notes).
type ShallowActionPlan struct {
	ActionKind     ActionKind
	Route          string
	Confidence     float64
	Parameters     []RouteParameter
	Entities       []EntityMatch
	MatchedPattern string
	Reasoning      string
}

// ActionPlan is the unit of output of the planning pipeline.
//
// Invariant: Route matches the template named by MatchedPattern after
// substituting Parameters.
// Invariant: every RouteParameter with Source == SourceEntity has a
// corresponding EntityMatch in Entities.
type ActionPlan struct {
	ActionKind     ActionKind
	Route          string
	Confidence     float64
	Parameters     []RouteParameter
	Entities       []EntityMatch
	MatchedPattern string
	Reasoning      string
	Alternatives   []ShallowActionPlan
}

// Shallow discards a's own Alternatives, producing the bounded nested shape
// used when an ActionPlan is listed as another plan's alternative.
func (a ActionPlan) Shallow() ShallowActionPlan {
	return ShallowActionPlan{
		ActionKind:     a.ActionKind,
		Route:          a.Route,
		Confidence:     a.Confidence,
		Parameters:     a.Parameters,
		Entities:       a.Entities,
		MatchedPattern: a.MatchedPattern,
		Reasoning:      a.Reasoning,
	}
}
