package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validatorTestConfig() *SiteConfiguration {
	return &SiteConfiguration{
		Routes: []RoutePattern{
			{
				Name:     "entity_overview",
				Template: "/{entity_type}/{entity_id}/overview",
				Parameters: map[string]ParameterSpec{
					"entity_type": {Type: ParamString},
					"entity_id":   {Type: ParamUUID},
				},
			},
			{
				Name:     "entity_search",
				Template: "/{entity_type}/search",
				Parameters: map[string]ParameterSpec{
					"entity_type": {Type: ParamString, Examples: []string{"landlords"}},
				},
			},
			{
				Name:     "property_create",
				Template: "/properties/create",
			},
		},
	}
}

func TestValidator_IsValid(t *testing.T) {
	v := NewValidator(validatorTestConfig())
	assert.True(t, v.IsValid("/landlords/L-9/overview"))
	assert.True(t, v.IsValid("/landlords/search"))
	assert.True(t, v.IsValid("/properties/create"))
	assert.False(t, v.IsValid("/weird/path"))
	assert.False(t, v.IsValid("no-leading-slash"))
}

func TestValidator_Repair_PrefersEntityOverview(t *testing.T) {
	v := NewValidator(validatorTestConfig())
	route, pattern, err := v.Repair("landlords", "L-9")
	require.NoError(t, err)
	assert.Equal(t, "/landlords/L-9/overview", route)
	assert.Equal(t, "entity_overview", pattern)
}

func TestValidator_Repair_FallsBackToSearch(t *testing.T) {
	v := NewValidator(validatorTestConfig())
	route, pattern, err := v.Repair("", "")
	require.NoError(t, err)
	assert.Equal(t, "/landlords/search", route)
	assert.Equal(t, "entity_search", pattern)
}

func TestValidator_Repair_FallsBackToStaticExamples(t *testing.T) {
	cfg := &SiteConfiguration{
		Routes: []RoutePattern{
			{Name: "property_create", Template: "/properties/create"},
		},
	}
	v := NewValidator(cfg)
	route, pattern, err := v.Repair("", "")
	require.NoError(t, err)
	assert.Equal(t, "/properties/create", route)
	assert.Equal(t, "property_create", pattern)
}

func TestValidator_Repair_NoPatternsFails(t *testing.T) {
	v := NewValidator(&SiteConfiguration{})
	_, _, err := v.Repair("landlords", "L-9")
	require.Error(t, err)
	var plannerErr *Error
	require.ErrorAs(t, err, &plannerErr)
	assert.Equal(t, KindInvalidPlan, plannerErr.Kind)
}

func TestCompileTemplate_AnchorsAndEscapesRegexMeta(t *testing.T) {
	re := compileTemplate("/v1.0/{id}")
	assert.True(t, re.MatchString("/v1.0/abc"))
	assert.False(t, re.MatchString("/v1X0/abc"), "literal dot must not match any character")
}
