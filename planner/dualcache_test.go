package planner

import (
	"context"
	"testing"

	"github.com/fantastic-router/router/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dualCacheTestConfig() *SiteConfiguration {
	return &SiteConfiguration{
		Entities: []EntityDefinition{
			{Name: "landlord", Table: "landlords", SearchFields: []string{"name"}},
		},
		Routes: []RoutePattern{
			{
				Name:     "entity_overview",
				Template: "/{entity_type}/{entity_id}/overview",
				Parameters: map[string]ParameterSpec{
					"entity_type": {Type: ParamString},
					"entity_id":   {Type: ParamUUID},
				},
			},
		},
	}
}

func newTestDualCache(t *testing.T, rows map[string][]Row) (*DualCache, *fakeSearcher) {
	t.Helper()
	config := dualCacheTestConfig()
	searcher := &fakeSearcher{rows: rows}
	resolver := NewResolver(searcher, nil)
	validator := NewValidator(config)
	dc := NewDualCache(cache.NewInMemoryStore(), cache.NewInMemoryStore(), config, resolver, validator, nil)
	return dc, searcher
}

func successPlan(route string, entity EntityMatch) Response {
	return Response{
		Success: true,
		ActionPlan: ActionPlan{
			ActionKind:     ActionNavigate,
			Route:          route,
			Confidence:     0.9,
			MatchedPattern: "entity_overview",
			Parameters: []RouteParameter{
				{Name: "entity_type", Value: "landlords", Type: ParamString, Source: SourceLiteral},
				{Name: "entity_id", Value: entity.ID, Type: ParamUUID, Source: SourceEntity},
			},
			Entities: []EntityMatch{entity},
		},
	}
}

func TestDualCache_RequestTierExactHit(t *testing.T) {
	dc, _ := newTestDualCache(t, nil)
	ctx := context.Background()
	req := Request{Query: "show me Michael's properties", UserID: "u1", UserRole: "admin"}
	resp := successPlan("/landlords/m-1/overview", EntityMatch{ID: "m-1", Name: "Michael", Table: "landlords"})

	require.NoError(t, dc.Store(ctx, req, resp))

	got, cacheType, err := dc.Lookup(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, CacheTypeRequest, cacheType)
	assert.Equal(t, "/landlords/m-1/overview", got.ActionPlan.Route)
}

func TestDualCache_StructuralHitResolvesNewEntity(t *testing.T) {
	rows := map[string][]Row{
		"landlords": {
			{"id": "m-1", "name": "Michael"},
			{"id": "s-2", "name": "Sarah"},
		},
	}
	dc, _ := newTestDualCache(t, rows)
	ctx := context.Background()

	first := Request{Query: "show me Michael's properties", UserID: "u1", UserRole: "admin"}
	resp := successPlan("/landlords/m-1/overview", EntityMatch{ID: "m-1", Name: "Michael", Table: "landlords"})
	require.NoError(t, dc.Store(ctx, first, resp))

	second := Request{Query: "show me Sarah's properties", UserID: "u1", UserRole: "admin"}
	got, cacheType, err := dc.Lookup(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, CacheTypeStructural, cacheType)
	assert.Equal(t, "/landlords/s-2/overview", got.ActionPlan.Route)
	assert.NotContains(t, got.ActionPlan.Route, "{")
}

func TestDualCache_StructuralMissWhenShapeDiffers(t *testing.T) {
	dc, _ := newTestDualCache(t, map[string][]Row{
		"landlords": {{"id": "m-1", "name": "Michael"}},
	})
	ctx := context.Background()

	first := Request{Query: "show me Michael's properties", UserID: "u1", UserRole: "admin"}
	resp := successPlan("/landlords/m-1/overview", EntityMatch{ID: "m-1", Name: "Michael", Table: "landlords"})
	require.NoError(t, dc.Store(ctx, first, resp))

	second := Request{Query: "show me Michael's tenants history", UserID: "u1", UserRole: "admin"}
	_, cacheType, err := dc.Lookup(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, CacheTypeNone, cacheType)
}

func TestDualCache_StructuralEntryNotStoredWhenRouteUnresolved(t *testing.T) {
	dc, _ := newTestDualCache(t, nil)
	ctx := context.Background()

	req := Request{Query: "show me Michael's properties", UserID: "u1", UserRole: "admin"}
	resp := Response{Success: false, ActionPlan: ActionPlan{Route: "/{entity_type}/{entity_id}/overview"}}
	require.NoError(t, dc.Store(ctx, req, resp))

	keys, err := dc.structural.Keys(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDualCache_ClearAllEmptiesBothTiers(t *testing.T) {
	dc, _ := newTestDualCache(t, map[string][]Row{
		"landlords": {{"id": "m-1", "name": "Michael"}},
	})
	ctx := context.Background()
	req := Request{Query: "show me Michael's properties", UserID: "u1", UserRole: "admin"}
	resp := successPlan("/landlords/m-1/overview", EntityMatch{ID: "m-1", Name: "Michael", Table: "landlords"})
	require.NoError(t, dc.Store(ctx, req, resp))

	require.NoError(t, dc.ClearAll(ctx))

	_, cacheType, err := dc.Lookup(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, CacheTypeNone, cacheType)
}

func TestRequestKey_DiffersByUserAndRole(t *testing.T) {
	k1 := RequestKey("show me Michael's properties", "u1", "admin")
	k2 := RequestKey("show me Michael's properties", "u2", "admin")
	k3 := RequestKey("show me Michael's properties", "u1", "viewer")
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestTokenizeStructural_SameShapeDifferentNames(t *testing.T) {
	a := tokenizeStructural("show me Michael's properties")
	b := tokenizeStructural("show me Sarah's properties")
	assert.True(t, tokensMatch(a, b))
}

func TestTokenizeStructural_DifferentShapeMismatches(t *testing.T) {
	a := tokenizeStructural("show me Michael's properties")
	b := tokenizeStructural("show me Michael's tenants history")
	assert.False(t, tokensMatch(a, b))
}
