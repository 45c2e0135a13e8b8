package planner

import (
	"context"
	"strings"
	"time"
)

// Service implements the §4.C10 Planning Service: the single entry point
// that ties together cache lookup, the Single-Call Planner, route
// validation, RBAC clamping, and asynchronous cache population.
type Service struct {
	config  *SiteConfiguration
	planner *SingleCallPlanner
	cache   *DualCache
	logger  Logger
	metrics Metrics
	now     func() time.Time
}

// NewService wires a Service from its already-constructed collaborators. A
// nil logger/metrics falls back to a no-op implementation.
func NewService(config *SiteConfiguration, planner *SingleCallPlanner, cache *DualCache, logger Logger, metrics Metrics) *Service {
	if logger == nil {
		logger = NoopLogger{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Service{config: config, planner: planner, cache: cache, logger: logger, metrics: metrics, now: time.Now}
}

// Plan runs the full §4.C10 sequence for one request: validate, probe both
// cache tiers, fall through to the Single-Call Planner on a miss, clamp for
// RBAC, classify latency, and asynchronously populate the cache.
func (s *Service) Plan(ctx context.Context, req Request) (*Response, error) {
	start := s.now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, cacheType, err := s.cache.Lookup(ctx, req)
	if err != nil {
		s.logger.Warn(ctx, "cache lookup failed", "error", err.Error())
	}
	if resp != nil {
		s.clampRBAC(resp, req.UserRole)
		s.patchCacheHitPerformance(resp, start, cacheType)
		s.metrics.IncCounter("planner.cache_hit", 1, "type", string(cacheType))
		return resp, nil
	}

	plan, err := s.planner.PlanAction(ctx, PlanningContext{Config: s.config, Query: req.Query, Session: req.Context})
	if err != nil {
		s.metrics.IncCounter("planner.predictor_error", 1)
		return nil, err
	}

	fresh := &Response{
		Success:      true,
		ActionPlan:   *plan,
		Alternatives: boundAlternatives(plan.Alternatives, req.MaxAlternatives),
	}
	s.clampRBAC(fresh, req.UserRole)
	s.stampFreshResponse(fresh, req, start)
	s.metrics.IncCounter("planner.cache_miss", 1)

	go s.storeAsync(req, *fresh)

	return fresh, nil
}

// storeAsync runs Store on a background context, since req's ctx may already
// be canceled by the time the response has been returned to the caller
// (§6: "asynchronously store into both cache tiers").
func (s *Service) storeAsync(req Request, resp Response) {
	ctx := context.Background()
	if err := s.cache.Store(ctx, req, resp); err != nil {
		s.logger.Warn(ctx, "async cache store failed", "error", err.Error())
	}
}

// clampRBAC applies the RBAC check at the service layer rather than inside
// the planner (§4.C6 note): if the matched pattern declares required roles
// and the caller's role isn't among them, confidence is clamped to 0 and a
// reason is appended to Reasoning. The route itself is left visible — an
// Open Question resolved in favor of transparency, since redacting it is a
// product decision this pipeline doesn't own.
func (s *Service) clampRBAC(resp *Response, role string) {
	pattern := s.findPattern(resp.ActionPlan.MatchedPattern)
	if pattern == nil || len(pattern.RequiredRoles) == 0 {
		return
	}
	for _, allowed := range pattern.RequiredRoles {
		if allowed == role {
			return
		}
	}
	resp.ActionPlan.Confidence = 0
	note := " (access denied: role '" + role + "' lacks permission for this route)"
	if !strings.HasSuffix(resp.ActionPlan.Reasoning, note) {
		resp.ActionPlan.Reasoning += note
	}
}

// ClearCache empties both cache tiers, mirroring the reference server's
// "/cache/clear" operator endpoint (§6 "Cache management interface").
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.ClearAll(ctx)
}

// CacheStats reports both cache tiers' live entry counts, mirroring the
// reference server's "/cache/stats" operator endpoint.
func (s *Service) CacheStats(ctx context.Context) (CacheStats, error) {
	return s.cache.Stats(ctx)
}

// RouteCount reports how many route patterns the active site configuration
// declares, for the reference server's "/stats" operator endpoint.
func (s *Service) RouteCount() int {
	return len(s.config.Routes)
}

func (s *Service) findPattern(name string) *RoutePattern {
	for i := range s.config.Routes {
		if s.config.Routes[i].Name == name {
			return &s.config.Routes[i]
		}
	}
	return nil
}

// stampFreshResponse populates Performance and Metadata in full for a
// response the planner just computed (never served from cache), per §6
// "performance"/"metadata".
func (s *Service) stampFreshResponse(resp *Response, req Request, start time.Time) {
	duration := s.elapsedMs(start)
	resp.Performance = Performance{
		DurationMs: duration,
		Level:      classifyLatency(duration),
		LLMCalls:   1,
		CacheHits:  0,
		CacheType:  CacheTypeNone,
	}
	resp.Metadata = Metadata{
		QueryLength: len(req.Query),
		UserID:      req.UserID,
		UserRole:    req.UserRole,
		TimestampMS: s.now().UnixMilli(),
	}
}

// patchCacheHitPerformance updates only performance.duration_ms,
// performance.cache_hits, and performance.cache_type on a cache hit. Per §8
// "response is byte-identical to the originally stored response except for
// [those three fields]", performance.llm_calls, performance.level, and all
// of metadata (including the original timestamp) are left exactly as
// stored rather than recomputed for the serving request.
func (s *Service) patchCacheHitPerformance(resp *Response, start time.Time, cacheType CacheType) {
	resp.Performance.DurationMs = s.elapsedMs(start)
	resp.Performance.CacheHits = 1
	resp.Performance.CacheType = cacheType
}

func (s *Service) elapsedMs(start time.Time) float64 {
	return float64(s.now().Sub(start)) / float64(time.Millisecond)
}

func boundAlternatives(alts []ShallowActionPlan, max int) []ShallowActionPlan {
	if max <= 0 {
		return []ShallowActionPlan{}
	}
	if len(alts) <= max {
		return alts
	}
	return alts[:max]
}
