package planner

import (
	"context"
	"strconv"
	"strings"
)

// singleCallTemperature is the low temperature used for the one planning
// call, favoring deterministic route selection over creative phrasing
// (§4.C6).
const singleCallTemperature = 0.1

// routeRepairConfidencePenalty and minRepairedConfidence implement the
// §4.C6 rule: a repaired route never keeps the model's original confidence.
const (
	routeRepairConfidencePenalty = 0.3
	minRepairedConfidence        = 0.1
)

// entityResolverMaxResults and entityResolverMinConfidence bound each
// per-entity Resolver call the planner issues from the model's suggestions.
const (
	entityResolverMaxResults    = 5
	entityResolverMinConfidence = 0.5
)

// SingleCallPlanner implements the §4.C6 Single-Call Planner: one Predictor
// call produces intent, entity-resolution hints, and a candidate route
// together, which the planner then resolves, validates, and repairs.
type SingleCallPlanner struct {
	predictor Predictor
	resolver  *Resolver
	validator *Validator
	logger    Logger
}

// NewSingleCallPlanner constructs a SingleCallPlanner. A nil logger falls
// back to a no-op logger.
func NewSingleCallPlanner(predictor Predictor, resolver *Resolver, validator *Validator, logger Logger) *SingleCallPlanner {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &SingleCallPlanner{predictor: predictor, resolver: resolver, validator: validator, logger: logger}
}

// PlanAction runs the full single-call sequence: render the prompt, issue
// one Predictor call, resolve every suggested entity, then assemble a
// validated ActionPlan.
//
// A Predictor failure (timeout, upstream error, unparseable output) is
// absorbed here rather than propagated: per §7 "Propagation policy",
// transient upstream errors are materialized as a low-confidence ActionPlan
// instead of failing the request, so Service.Plan can still return
// success = true (§8 "Predictor deadline exceeded ⇒ success = true,
// confidence ≤ 0.1"). PlanAction only returns a non-nil error for
// KindInvalidPlan, when route validation and every repair fallback failed.
func (p *SingleCallPlanner) PlanAction(ctx context.Context, pc PlanningContext) (*ActionPlan, error) {
	prompt := BuildPrompt(pc)

	prediction, err := p.predictor.Predict(ctx, prompt, singleCallTemperature)
	if err != nil {
		p.logger.Warn(ctx, "predictor call failed, degrading to low-confidence plan", "error", err.Error())
		prediction = errorPrediction(err.Error())
	} else if reason, failed := prediction.hadError(); failed {
		p.logger.Warn(ctx, "predictor returned sentinel failure", "reason", reason)
	}

	entities := p.resolveSuggestedEntities(ctx, prediction)

	return p.buildActionPlan(prediction, entities)
}

// resolveSuggestedEntities issues one Resolver call per entity_resolution
// entry the model returned. A single strategy's failure is logged and
// skipped (§7 KindResolutionFailure), never aborting the whole plan.
func (p *SingleCallPlanner) resolveSuggestedEntities(ctx context.Context, prediction Prediction) []EntityMatch {
	var entities []EntityMatch
	for _, raw := range sliceField(prediction, "entity_resolution") {
		resolution, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(resolution, "entity_name")
		if name == "" {
			continue
		}
		matches, err := p.resolver.Resolve(ctx, ResolveRequest{
			Name:          name,
			Tables:        stringSliceField(resolution, "search_tables"),
			Fields:        stringSliceField(resolution, "search_fields"),
			MaxResults:    entityResolverMaxResults,
			MinConfidence: entityResolverMinConfidence,
		})
		if err != nil {
			p.logger.Warn(ctx, "entity resolution failed", "entity_name", name, "error", err.Error())
			continue
		}
		entities = append(entities, matches...)
	}
	return entities
}

// buildActionPlan assembles the final ActionPlan from the raw prediction and
// the resolved entities: it validates (and if necessary repairs) the route,
// substitutes entityIDPlaceholder with the first resolved entity's id, and
// coerces the action kind and confidence to their closed/bounded forms.
//
// Returns a *Error of KindInvalidPlan when the route fails validation and
// every §4.C7 repair fallback also fails to produce a valid route, per
// §7 "InvalidPlan — ... caller receives a 5xx-shaped error."
func (p *SingleCallPlanner) buildActionPlan(prediction Prediction, entities []EntityMatch) (*ActionPlan, error) {
	intent := mapField(prediction, "intent")
	routeInfo := mapField(prediction, "route_matching")

	resolvedRoute := stringField(routeInfo, "resolved_route")
	if resolvedRoute == "" {
		resolvedRoute = "/"
	}
	matchedPattern := stringField(routeInfo, "matched_pattern")

	isValidRoute := p.validator.IsValid(resolvedRoute)
	if !isValidRoute {
		primaryEntityType, primaryEntityID := "", ""
		if len(entities) > 0 {
			primaryEntityType = entities[0].EntityType
			primaryEntityID = entities[0].ID
		}
		repaired, repairedPattern, err := p.validator.Repair(primaryEntityType, primaryEntityID)
		if err != nil {
			return nil, err
		}
		resolvedRoute = repaired
		matchedPattern = repairedPattern
	}

	parameters := make([]RouteParameter, 0)
	for _, raw := range sliceField(routeInfo, "parameters") {
		param, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		value := stringField(param, "value")
		if value == entityIDPlaceholder && len(entities) > 0 {
			value = entities[0].ID
			resolvedRoute = strings.ReplaceAll(resolvedRoute, entityIDPlaceholder, entities[0].ID)
		}
		parameters = append(parameters, RouteParameter{
			Name:   stringField(param, "name"),
			Value:  value,
			Type:   parseParameterType(stringField(param, "type")),
			Source: ParameterSource(orDefault(stringField(param, "source"), string(SourceLLM))),
		})
	}

	confidence := clampConfidence(floatField(prediction, "overall_confidence", 0.5))
	if !isValidRoute {
		confidence -= routeRepairConfidencePenalty
		if confidence < minRepairedConfidence {
			confidence = minRepairedConfidence
		}
	}

	reasoning := "LLM analysis: " + orDefault(stringField(prediction, "reasoning"), "no reasoning provided")

	return &ActionPlan{
		ActionKind:     parseActionKind(strings.ToLower(stringField(intent, "action_type"))),
		Route:          resolvedRoute,
		Confidence:     confidence,
		Parameters:     parameters,
		Entities:       entities,
		MatchedPattern: matchedPattern,
		Reasoning:      reasoning,
	}, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return map[string]any{}
	}
	mm, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return mm
}

func sliceField(m map[string]any, key string) []any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	s, _ := v.([]any)
	return s
}

func stringSliceField(m map[string]any, key string) []string {
	raw := sliceField(m, key)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatField(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}
