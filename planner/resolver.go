package planner

import (
	"context"
	"sort"
	"strings"
)

// entityTypeByTable is the small hand-coded map from table name to inferred
// entity type (§4.C4). Tables not listed fall back to the stripped-plural
// table name.
var entityTypeByTable = map[string]string{
	"users":      "person",
	"landlords":  "landlord",
	"tenants":    "tenant",
	"properties": "property",
	"documents":  "document",
	"events":     "event",
}

// inferEntityType maps a table name to an informational entity-type hint. It
// is never an invariant the caller may depend on for correctness (§4.C4).
func inferEntityType(table string) string {
	if t, ok := entityTypeByTable[table]; ok {
		return t
	}
	return strippedTable(table)
}

// ResolveRequest bundles the inputs to one Entity Resolver call (§4.C4).
type ResolveRequest struct {
	Name          string
	Tables        []string
	Fields        []string
	JoinHint      string
	MaxResults    int
	MinConfidence float64
}

// Resolver implements the layered entity-matching strategy of §4.C4 on top
// of a RecordSearcher.
type Resolver struct {
	searcher RecordSearcher
	logger   Logger
}

// NewResolver constructs a Resolver backed by searcher. A nil logger falls
// back to a no-op logger.
func NewResolver(searcher RecordSearcher, logger Logger) *Resolver {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Resolver{searcher: searcher, logger: logger}
}

// strategyConfidenceThreshold is the confidence above which Resolve stops
// trying further strategies (§4.C4: "stopping early when any strategy
// yields a match with confidence > 0.8").
const strategyConfidenceThreshold = 0.8

// Resolve runs the exact -> fuzzy -> semantic -> full-text strategy sequence
// in order, deduplicating by (table, id) and returning results sorted by
// descending confidence, truncated to req.MaxResults.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) ([]EntityMatch, error) {
	type strategyFn func(context.Context, ResolveRequest) ([]EntityMatch, error)

	strategies := []strategyFn{
		r.exactMatch,
		r.fuzzyMatch,
		r.semanticMatch,
		r.fullTextMatch,
	}

	var all []EntityMatch
	for _, strategy := range strategies {
		matches, err := strategy(ctx, req)
		if err != nil {
			r.logger.Warn(ctx, "entity resolver strategy failed", "error", err.Error())
			continue
		}
		all = append(all, matches...)
		if hasConfidentMatch(matches, strategyConfidenceThreshold) {
			break
		}
	}

	return rankAndDedup(all, req.MinConfidence, req.MaxResults), nil
}

func hasConfidentMatch(matches []EntityMatch, threshold float64) bool {
	for _, m := range matches {
		if m.Confidence > threshold {
			return true
		}
	}
	return false
}

// rankAndDedup deduplicates matches by (table, id), keeping the
// highest-confidence occurrence, drops anything below minConfidence, sorts
// by descending confidence, and truncates to maxResults.
func rankAndDedup(matches []EntityMatch, minConfidence float64, maxResults int) []EntityMatch {
	best := make(map[[2]string]EntityMatch, len(matches))
	order := make([][2]string, 0, len(matches))
	for _, m := range matches {
		if m.Confidence < minConfidence {
			continue
		}
		key := [2]string{m.Table, m.ID}
		if existing, ok := best[key]; !ok || m.Confidence > existing.Confidence {
			if !ok {
				order = append(order, key)
			}
			best[key] = m
		}
	}

	out := make([]EntityMatch, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// exactMatch looks for the canonical name appearing verbatim as one of the
// searched field values; a hit scores 0.95.
func (r *Resolver) exactMatch(ctx context.Context, req ResolveRequest) ([]EntityMatch, error) {
	rows, err := r.searcher.Search(ctx, req.Name, req.Tables, req.Fields, resultFetchLimit(req))
	if err != nil {
		return nil, err
	}
	return matchesFromRows(rows, req.Name, req.Fields, func(field, value, query string) (float64, bool) {
		if strings.EqualFold(value, query) {
			return 0.95, true
		}
		return 0, false
	}), nil
}

// fuzzyMatch probes the lowercased name, the name with whitespace removed,
// and the first token only, scoring via confidenceScore (0.6-0.95).
func (r *Resolver) fuzzyMatch(ctx context.Context, req ResolveRequest) ([]EntityMatch, error) {
	candidates := []string{
		strings.ToLower(req.Name),
		strings.ReplaceAll(strings.ToLower(req.Name), " ", ""),
		firstToken(req.Name),
	}

	var out []EntityMatch
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		rows, err := r.searcher.Search(ctx, candidate, req.Tables, req.Fields, resultFetchLimit(req))
		if err != nil {
			return out, err
		}
		out = append(out, matchesFromRows(rows, req.Name, req.Fields, confidenceScore)...)
	}
	return out, nil
}

// semanticMatch is reserved for an embedding-based backend; in the absence
// of one, it yields nothing (§4.C4).
func (r *Resolver) semanticMatch(context.Context, ResolveRequest) ([]EntityMatch, error) {
	return nil, nil
}

// fullTextMatch splits the name into tokens of length > 2 and searches each,
// capping confidence at 0.7 times the fuzzy confidence score.
func (r *Resolver) fullTextMatch(ctx context.Context, req ResolveRequest) ([]EntityMatch, error) {
	var out []EntityMatch
	for _, token := range strings.Fields(req.Name) {
		if len(token) <= 2 {
			continue
		}
		rows, err := r.searcher.Search(ctx, token, req.Tables, req.Fields, resultFetchLimit(req))
		if err != nil {
			return out, err
		}
		matches := matchesFromRows(rows, req.Name, req.Fields, func(field, value, query string) (float64, bool) {
			score, ok := confidenceScore(field, value, query)
			if !ok {
				return 0, false
			}
			return 0.7 * score, true
		})
		out = append(out, matches...)
	}
	return out, nil
}

// confidenceScore implements the §4.C4 confidence rubric for a field value v
// against a query q, compared case-insensitively: v == q -> 0.95; q is a substring of v or vice versa -> 0.8;
// sharing a token -> 0.6; otherwise no match.
func confidenceScore(_, value, query string) (float64, bool) {
	v := strings.ToLower(value)
	q := strings.ToLower(query)
	if v == "" || q == "" {
		return 0, false
	}
	if v == q {
		return 0.95, true
	}
	if strings.Contains(v, q) || strings.Contains(q, v) {
		return 0.8, true
	}
	if sharesToken(v, q) {
		return 0.6, true
	}
	return 0, false
}

func sharesToken(a, b string) bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(a) {
		tokens[t] = true
	}
	for _, t := range strings.Fields(b) {
		if tokens[t] {
			return true
		}
	}
	return false
}

func firstToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func resultFetchLimit(req ResolveRequest) int {
	if req.MaxResults > 0 {
		return req.MaxResults * 4 // over-fetch so later dedup/rank still has enough headroom
	}
	return 20
}

// matchesFromRows converts searcher rows into EntityMatch values, taking the
// maximum score over all searched fields per row (§4.C4 "Return the maximum
// over searched fields").
func matchesFromRows(rows []Row, query string, fields []string, score func(field, value, query string) (float64, bool)) []EntityMatch {
	out := make([]EntityMatch, 0, len(rows))
	for _, row := range rows {
		id := row.RowID()
		if id == "" {
			continue
		}
		best := 0.0
		var bestFields []string
		for _, field := range fields {
			raw, ok := row[field]
			if !ok {
				continue
			}
			value, ok := raw.(string)
			if !ok {
				continue
			}
			s, matched := score(field, value, query)
			if !matched {
				continue
			}
			if s > best {
				best = s
				bestFields = []string{field}
			} else if s == best {
				bestFields = append(bestFields, field)
			}
		}
		if best <= 0 {
			continue
		}
		table, _ := row["__table"].(string)
		name, _ := row["name"].(string)
		if name == "" {
			if dn, ok := row["display_name"].(string); ok {
				name = dn
			}
		}
		out = append(out, EntityMatch{
			ID:            id,
			Name:          name,
			Table:         table,
			EntityType:    inferEntityType(table),
			Confidence:    best,
			MatchedFields: bestFields,
			Raw:           row,
		})
	}
	return out
}
