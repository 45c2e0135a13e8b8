package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fantastic-router/router/cache"
)

// Default TTLs for the two cache tiers (§4.C9).
const (
	DefaultRequestCacheTTL    = 5 * time.Minute
	DefaultStructuralCacheTTL = 30 * time.Minute
)

// entitySlot links one "{ENTITY_ID_i}" occurrence in a stored route template
// to the query placeholder whose resolved name originally filled it, so a
// later structurally-matching query can refresh the id with one Resolver
// call instead of a Predictor call (§9 Design Notes: parameterized template
// with explicit placeholder slots, not string substitution on serialized
// JSON).
type entitySlot struct {
	RoutePlaceholder string
	QueryPlaceholder string
	Table            string
	SearchFields     []string
}

// structuralEntry is the structural cache tier's stored value: the query's
// token shape, a route/parameter template with resolved entity ids replaced
// by typed placeholders, and the slot bookkeeping needed to refill them.
type structuralEntry struct {
	QueryTokens   []queryToken
	RouteTemplate string
	ParamTemplate []RouteParameter
	Slots         []entitySlot
	Base          Response
}

// DualCache implements the two-tier cache of §4.C9: an exact request tier
// keyed by (normalized query, user, role), and a structural tier keyed by
// query shape that can serve a new query of the same shape without a
// Predictor call.
type DualCache struct {
	request       cache.Store
	structural    cache.Store
	requestTTL    time.Duration
	structuralTTL time.Duration
	config        *SiteConfiguration
	resolver      *Resolver
	validator     *Validator
	logger        Logger
}

// NewDualCache wires the two cache tiers to the resolver and validator
// needed to refresh and re-validate a structural hit.
func NewDualCache(request, structural cache.Store, config *SiteConfiguration, resolver *Resolver, validator *Validator, logger Logger) *DualCache {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &DualCache{
		request:       request,
		structural:    structural,
		requestTTL:    DefaultRequestCacheTTL,
		structuralTTL: DefaultStructuralCacheTTL,
		config:        config,
		resolver:      resolver,
		validator:     validator,
		logger:        logger,
	}
}

// RequestKey derives the exact-match cache key for a query and caller
// identity, so two callers never share a plan cached for someone else's
// RBAC context.
func RequestKey(query, userID, userRole string) string {
	sum := sha256.Sum256([]byte(Normalize(query) + "|" + userID + "|" + userRole))
	return hex.EncodeToString(sum[:])
}

// Lookup tries the request tier, then the structural tier. A structural hit
// re-resolves every entity slot before returning, so the caller always sees
// a freshly valid route.
func (c *DualCache) Lookup(ctx context.Context, req Request) (*Response, CacheType, error) {
	resp, ok, err := c.lookupRequest(ctx, req)
	if err != nil {
		return nil, CacheTypeNone, err
	}
	if ok {
		return resp, CacheTypeRequest, nil
	}

	resp, ok, err = c.lookupStructural(ctx, req)
	if err != nil {
		return nil, CacheTypeNone, err
	}
	if ok {
		return resp, CacheTypeStructural, nil
	}

	return nil, CacheTypeNone, nil
}

func (c *DualCache) lookupRequest(ctx context.Context, req Request) (*Response, bool, error) {
	entry, ok, err := c.request.Get(ctx, RequestKey(req.Query, req.UserID, req.UserRole))
	if err != nil || !ok {
		return nil, false, err
	}
	var resp Response
	if err := json.Unmarshal(entry.Value, &resp); err != nil {
		c.logger.Warn(ctx, "dual cache: corrupt request cache entry", "error", err)
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *DualCache) lookupStructural(ctx context.Context, req Request) (*Response, bool, error) {
	keys, err := c.structural.Keys(ctx, 0)
	if err != nil {
		return nil, false, err
	}
	candidate := tokenizeStructural(req.Query)

	for _, key := range keys {
		entry, ok, err := c.structural.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		var stored structuralEntry
		if err := json.Unmarshal(entry.Value, &stored); err != nil {
			c.logger.Warn(ctx, "dual cache: corrupt structural cache entry", "error", err)
			continue
		}
		if !tokensMatch(stored.QueryTokens, candidate) {
			continue
		}
		resp, ok := c.reconstruct(ctx, stored, candidate)
		if ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// reconstruct refills every entity slot in stored by re-resolving its name
// from candidate, then rebuilds the route and parameters and re-validates
// the result. It returns ok == false if any slot fails to resolve or the
// rebuilt route doesn't validate, so the caller falls through to a fresh
// Predictor call rather than ever serving a templated "{...}" route.
func (c *DualCache) reconstruct(ctx context.Context, stored structuralEntry, candidate []queryToken) (*Response, bool) {
	ids := make(map[string]string, len(stored.Slots))
	entities := make([]EntityMatch, 0, len(stored.Slots))

	for _, slot := range stored.Slots {
		idx := indexOfPlaceholder(stored.QueryTokens, slot.QueryPlaceholder)
		if idx < 0 || idx >= len(candidate) {
			return nil, false
		}
		name := strings.TrimSuffix(candidate[idx].Raw, "'s")

		table := slot.Table
		if table == "" && c.config != nil && len(c.config.Entities) > 0 {
			table = c.config.Entities[0].Table
		}
		fields := slot.SearchFields
		if len(fields) == 0 {
			fields = c.searchFieldsFor(table)
		}

		matches, err := c.resolver.Resolve(ctx, ResolveRequest{
			Name:          name,
			Tables:        []string{table},
			Fields:        fields,
			MaxResults:    1,
			MinConfidence: 0.6,
		})
		if err != nil {
			c.logger.Warn(ctx, "dual cache: structural slot re-resolution failed", "error", err)
			return nil, false
		}
		if len(matches) == 0 {
			return nil, false
		}
		ids[slot.RoutePlaceholder] = matches[0].ID
		entities = append(entities, matches[0])
	}

	route := substitutePlaceholders(stored.RouteTemplate, ids)
	if strings.Contains(route, "{") || !c.validator.IsValid(route) {
		return nil, false
	}

	params := make([]RouteParameter, len(stored.ParamTemplate))
	for i, p := range stored.ParamTemplate {
		p.Value = substitutePlaceholders(p.Value, ids)
		params[i] = p
	}

	resp := stored.Base
	resp.ActionPlan.Route = route
	resp.ActionPlan.Parameters = params
	if len(entities) > 0 {
		resp.ActionPlan.Entities = entities
	}
	return &resp, true
}

// Store saves resp into the request tier unconditionally, and additionally
// derives a structural entry when resp's route is fully resolved (no
// remaining "{...}" placeholders), so future structurally-similar queries
// can reuse it.
func (c *DualCache) Store(ctx context.Context, req Request, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("dual cache: marshal response: %w", err)
	}
	if err := c.request.Set(ctx, RequestKey(req.Query, req.UserID, req.UserRole), payload, c.requestTTL); err != nil {
		return fmt.Errorf("dual cache: store request entry: %w", err)
	}

	entry, ok := c.deriveStructuralEntry(req, resp)
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("dual cache: marshal structural entry: %w", err)
	}
	if err := c.structural.Set(ctx, structuralStoreKey(entry), encoded, c.structuralTTL); err != nil {
		return fmt.Errorf("dual cache: store structural entry: %w", err)
	}
	return nil
}

// ClearAll empties both cache tiers, for the cache-management "clear_all"
// operation (§6).
func (c *DualCache) ClearAll(ctx context.Context) error {
	if err := c.request.ClearAll(ctx); err != nil {
		return err
	}
	return c.structural.ClearAll(ctx)
}

// CacheStats reports both tiers' live entry counts, for the cache-management
// "stats" operation (§6).
type CacheStats struct {
	Request    cache.Stats
	Structural cache.Stats
}

// Stats returns the current size of both cache tiers.
func (c *DualCache) Stats(ctx context.Context) (CacheStats, error) {
	requestStats, err := c.request.Stats(ctx)
	if err != nil {
		return CacheStats{}, fmt.Errorf("dual cache: request tier stats: %w", err)
	}
	structuralStats, err := c.structural.Stats(ctx)
	if err != nil {
		return CacheStats{}, fmt.Errorf("dual cache: structural tier stats: %w", err)
	}
	return CacheStats{Request: requestStats, Structural: structuralStats}, nil
}

func (c *DualCache) deriveStructuralEntry(req Request, resp Response) (structuralEntry, bool) {
	if !resp.Success || strings.Contains(resp.ActionPlan.Route, "{") {
		return structuralEntry{}, false
	}

	tokens := tokenizeStructural(req.Query)
	personPlaceholders := placeholdersOfType(tokens, "PERSON")

	route := resp.ActionPlan.Route
	params := append([]RouteParameter(nil), resp.ActionPlan.Parameters...)
	var slots []entitySlot

	for i, entity := range resp.ActionPlan.Entities {
		if entity.ID == "" || !strings.Contains(route, entity.ID) {
			continue
		}
		if i >= len(personPlaceholders) {
			break
		}
		routePlaceholder := placeholderLabel("ENTITY_ID", len(slots))
		route = strings.ReplaceAll(route, entity.ID, routePlaceholder)
		for j, p := range params {
			params[j].Value = strings.ReplaceAll(p.Value, entity.ID, routePlaceholder)
		}
		slots = append(slots, entitySlot{
			RoutePlaceholder: routePlaceholder,
			QueryPlaceholder: personPlaceholders[i],
			Table:            entity.Table,
			SearchFields:     c.searchFieldsFor(entity.Table),
		})
	}

	base := resp
	base.ActionPlan.Route = ""
	base.ActionPlan.Parameters = nil
	base.ActionPlan.Entities = nil

	return structuralEntry{
		QueryTokens:   tokens,
		RouteTemplate: route,
		ParamTemplate: params,
		Slots:         slots,
		Base:          base,
	}, true
}

func (c *DualCache) searchFieldsFor(table string) []string {
	if c.config == nil {
		return nil
	}
	for _, e := range c.config.Entities {
		if e.Table == table {
			return e.SearchFields
		}
	}
	return nil
}

func indexOfPlaceholder(tokens []queryToken, placeholder string) int {
	for i, t := range tokens {
		if t.Placeholder == placeholder {
			return i
		}
	}
	return -1
}

func placeholdersOfType(tokens []queryToken, typ string) []string {
	prefix := "{" + typ + "_"
	var out []string
	for _, t := range tokens {
		if strings.HasPrefix(t.Placeholder, prefix) {
			out = append(out, t.Placeholder)
		}
	}
	return out
}

func substitutePlaceholders(s string, values map[string]string) string {
	for placeholder, value := range values {
		s = strings.ReplaceAll(s, placeholder, value)
	}
	return s
}

// structuralStoreKey is the "{templated_query}|{templated_route}" cache key
// of §4.C9.
func structuralStoreKey(entry structuralEntry) string {
	var b strings.Builder
	for i, t := range entry.QueryTokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		if t.IsPlaceholder() {
			b.WriteString(t.Placeholder)
		} else {
			b.WriteString(t.Literal)
		}
	}
	b.WriteByte('|')
	b.WriteString(entry.RouteTemplate)
	return b.String()
}
