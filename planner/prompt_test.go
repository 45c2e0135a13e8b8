package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSiteConfig() *SiteConfiguration {
	return &SiteConfiguration{
		Domain: "property-management",
		Schema: SchemaSpec{
			Tables: []TableSpec{
				{Name: "landlords", Columns: []ColumnSpec{{Name: "id"}, {Name: "name"}, {Name: "email"}}},
			},
		},
		Routes: []RoutePattern{
			{
				Name:          "entity_overview",
				Template:      "/{entity_type}/{entity_id}/{view_type}",
				Description:   "Navigate to a specific entity's detail view",
				IntentPhrases: []string{"show me James Smith's monthly income"},
				Parameters: map[string]ParameterSpec{
					"entity_type": {Type: ParamString, Required: true, Examples: []string{"landlords"}},
					"entity_id":   {Type: ParamUUID, Required: true},
					"view_type":   {Type: ParamString, Required: true, Examples: []string{"financials"}},
				},
			},
		},
	}
}

func TestBuildPrompt_ContainsQueryAndConstraints(t *testing.T) {
	ctx := PlanningContext{Config: testSiteConfig(), Query: "show me James Smith's monthly income"}
	prompt := BuildPrompt(ctx)

	assert.Contains(t, prompt, "property-management")
	assert.Contains(t, prompt, "show me James Smith's monthly income")
	assert.Contains(t, prompt, "/{entity_type}/{entity_id}/{view_type}")
	assert.Contains(t, prompt, entityIDPlaceholder)
	assert.Contains(t, prompt, "entity_resolution")
	assert.Contains(t, prompt, "NEVER invent new routes")
}

func TestBuildPrompt_NoPatternsUsesFallbackNotice(t *testing.T) {
	ctx := PlanningContext{Config: &SiteConfiguration{Domain: "empty"}, Query: "anything"}
	prompt := BuildPrompt(ctx)
	assert.Contains(t, prompt, "NO ROUTE PATTERNS AVAILABLE")
}

func TestFormatSchemaSummary_TruncatesColumns(t *testing.T) {
	cols := make([]ColumnSpec, 12)
	for i := range cols {
		cols[i] = ColumnSpec{Name: "col"}
	}
	out := formatSchemaSummary(SchemaSpec{Tables: []TableSpec{{Name: "wide", Columns: cols}}})
	assert.Equal(t, maxSchemaColumns, strings.Count(out, "col"))
}

func TestFormatRoutePatterns_LimitsIntentExamples(t *testing.T) {
	p := RoutePattern{
		Name:          "r",
		Template:      "/x/{a}",
		IntentPhrases: []string{"one", "two", "three", "four", "five"},
		Parameters:    map[string]ParameterSpec{"a": {Type: ParamString}},
	}
	out := formatRoutePatterns([]RoutePattern{p})
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "three")
	assert.NotContains(t, out, "four")
}
