package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	prediction Prediction
	err        error
}

func (f *fakePredictor) Predict(context.Context, string, float64) (Prediction, error) {
	return f.prediction, f.err
}

func singleCallTestConfig() *SiteConfiguration {
	return &SiteConfiguration{
		Domain: "property management",
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
		},
	}
}

func newTestSingleCallPlanner(t *testing.T, prediction Prediction, rows map[string][]Row) *SingleCallPlanner {
	t.Helper()
	config := singleCallTestConfig()
	resolver := NewResolver(&fakeSearcher{rows: rows}, nil)
	validator := NewValidator(config)
	return NewSingleCallPlanner(&fakePredictor{prediction: prediction}, resolver, validator, nil)
}

func TestSingleCallPlanner_ValidRouteSubstitutesEntityID(t *testing.T) {
	prediction := Prediction{
		"intent": map[string]any{"action_type": "navigate"},
		"entity_resolution": []any{
			map[string]any{
				"entity_name":   "Michael",
				"search_tables": []any{"landlords"},
				"search_fields": []any{"name"},
			},
		},
		"route_matching": map[string]any{
			"matched_pattern": "entity_overview",
			"resolved_route":  "/landlords/ENTITY_ID_PLACEHOLDER/overview",
			"parameters": []any{
				map[string]any{"name": "entity_type", "value": "landlords", "source": "inferred"},
				map[string]any{"name": "entity_id", "value": "ENTITY_ID_PLACEHOLDER", "source": "entity"},
			},
		},
		"overall_confidence": 0.9,
		"reasoning":          "user wants Michael's landlord overview",
	}
	rows := map[string][]Row{"landlords": {{"id": "m-1", "name": "Michael"}}}
	p := newTestSingleCallPlanner(t, prediction, rows)

	plan, err := p.PlanAction(context.Background(), PlanningContext{Config: singleCallTestConfig(), Query: "show me Michael's overview"})
	require.NoError(t, err)
	assert.Equal(t, "/landlords/m-1/overview", plan.Route)
	assert.Equal(t, ActionNavigate, plan.ActionKind)
	assert.InDelta(t, 0.9, plan.Confidence, 0.001)
	assert.Equal(t, "entity_overview", plan.MatchedPattern)
	require.Len(t, plan.Parameters, 2)
	assert.Equal(t, "m-1", plan.Parameters[1].Value)
}

func TestSingleCallPlanner_InvalidRouteTriggersRepairAndPenalty(t *testing.T) {
	prediction := Prediction{
		"intent": map[string]any{"action_type": "navigate"},
		"route_matching": map[string]any{
			"matched_pattern": "nonexistent",
			"resolved_route":  "/made/up/route",
		},
		"overall_confidence": 0.9,
	}
	p := newTestSingleCallPlanner(t, prediction, nil)

	plan, err := p.PlanAction(context.Background(), PlanningContext{Config: singleCallTestConfig(), Query: "find landlords"})
	require.NoError(t, err)
	assert.Equal(t, "/landlords/search", plan.Route)
	assert.Equal(t, "entity_search", plan.MatchedPattern)
	assert.InDelta(t, 0.6, plan.Confidence, 0.001)
}

func TestSingleCallPlanner_UnknownActionTypeDefaultsToNavigate(t *testing.T) {
	prediction := Prediction{
		"intent":              map[string]any{"action_type": "teleport"},
		"route_matching":      map[string]any{"resolved_route": "/landlords/search"},
		"overall_confidence":  0.5,
	}
	p := newTestSingleCallPlanner(t, prediction, nil)

	plan, err := p.PlanAction(context.Background(), PlanningContext{Config: singleCallTestConfig(), Query: "find landlords"})
	require.NoError(t, err)
	assert.Equal(t, ActionNavigate, plan.ActionKind)
}

func TestSingleCallPlanner_ConfidenceClampedToUnitInterval(t *testing.T) {
	prediction := Prediction{
		"intent":             map[string]any{"action_type": "navigate"},
		"route_matching":     map[string]any{"resolved_route": "/landlords/search"},
		"overall_confidence": 1.5,
	}
	p := newTestSingleCallPlanner(t, prediction, nil)

	plan, err := p.PlanAction(context.Background(), PlanningContext{Config: singleCallTestConfig(), Query: "find landlords"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.Confidence)
}

func TestSingleCallPlanner_PredictorErrorDegradesToLowConfidencePlan(t *testing.T) {
	// §7 "PredictorFailure ... planning still returns success = true" and
	// §8 "Predictor deadline exceeded ⇒ success = true, confidence ≤ 0.1":
	// a Predictor error must never propagate out of PlanAction, it must
	// degrade to a low-confidence ActionPlan instead.
	config := singleCallTestConfig()
	resolver := NewResolver(&fakeSearcher{}, nil)
	validator := NewValidator(config)
	p := NewSingleCallPlanner(&fakePredictor{err: assertAnError{}}, resolver, validator, nil)

	plan, err := p.PlanAction(context.Background(), PlanningContext{Config: config, Query: "find landlords"})
	require.NoError(t, err)
	assert.LessOrEqual(t, plan.Confidence, 0.1)
	assert.Empty(t, plan.Entities)
	assert.Equal(t, ActionNavigate, plan.ActionKind)
	assert.Contains(t, plan.Reasoning, "predictor failure")
	assert.True(t, validator.IsValid(plan.Route))
}

func TestSingleCallPlanner_UnrepairableRouteReturnsInvalidPlan(t *testing.T) {
	// §7 "InvalidPlan — route validation and all repair fallbacks failed"
	config := &SiteConfiguration{Domain: "empty domain"}
	resolver := NewResolver(&fakeSearcher{}, nil)
	validator := NewValidator(config)
	prediction := Prediction{
		"route_matching":     map[string]any{"resolved_route": "/made/up/route"},
		"overall_confidence": 0.9,
	}
	p := NewSingleCallPlanner(&fakePredictor{prediction: prediction}, resolver, validator, nil)

	_, err := p.PlanAction(context.Background(), PlanningContext{Config: config, Query: "find landlords"})
	require.Error(t, err)
	var plannerErr *Error
	require.ErrorAs(t, err, &plannerErr)
	assert.Equal(t, KindInvalidPlan, plannerErr.Kind)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "predictor unavailable" }
