// Command routerd runs the planning service as an HTTP daemon. It mirrors
// the reference server's route surface ("/plan", "/health", "/validate",
// "/stats", "/cache/stats", "/cache/clear") on top of a thin net/http mux,
// since this module has no goa-generated transport layer (there is no
// DSL-declared service here to generate from).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/fantastic-router/router/cache"
	"github.com/fantastic-router/router/internal/adapters/anthropic"
	"github.com/fantastic-router/router/internal/adapters/memsearch"
	"github.com/fantastic-router/router/internal/adapters/pgsearch"
	"github.com/fantastic-router/router/internal/adapters/ratelimit"
	"github.com/fantastic-router/router/planner"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		configPath = flag.String("config", "", "path to the site configuration YAML file")
		apiKey     = flag.String("anthropic-api-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key")
		model      = flag.String("model", "claude-sonnet-4-5", "Anthropic model identifier")
		rpm        = flag.Float64("rpm", 60, "initial Predictor requests-per-minute budget")
		maxRPM     = flag.Float64("max-rpm", 120, "maximum Predictor requests-per-minute budget")

		searcherBackend  = flag.String("searcher-backend", "memory", "RecordSearcher backend: memory or postgres")
		postgresDSN      = flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres connection string, required when -searcher-backend=postgres")
		postgresMaxConns = flag.Int64("postgres-max-concurrent", 4, "max concurrent Resolver queries against Postgres")

		cacheBackend   = flag.String("cache-backend", "memory", "DualCache tier backend: memory or redis")
		redisAddr      = flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address (host:port), required when -cache-backend=redis")
		redisKeyPrefix = flag.String("redis-key-prefix", "router:", "key prefix shared by both Redis-backed cache tiers")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	if *configPath == "" {
		log.Fatalf(ctx, errors.New("missing -config flag"), "startup")
	}
	config, err := planner.LoadSiteConfiguration(*configPath)
	if err != nil {
		log.Fatalf(ctx, err, "loading site configuration")
	}

	srv, err := buildService(ctx, config, serviceOptions{
		apiKey:           *apiKey,
		model:            *model,
		initialRPM:       *rpm,
		maxRPM:           *maxRPM,
		searcherBackend:  *searcherBackend,
		postgresDSN:      *postgresDSN,
		postgresMaxConns: *postgresMaxConns,
		cacheBackend:     *cacheBackend,
		redisAddr:        *redisAddr,
		redisKeyPrefix:   *redisKeyPrefix,
	})
	if err != nil {
		log.Fatalf(ctx, err, "wiring planning service")
	}

	mux := newMux(srv, config)

	httpServer := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf(ctx, "HTTP server listening on %q", *addr)
		errc <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, err, log.KV{K: "msg", V: "http server exited"})
		}
	case <-stop:
		log.Printf(ctx, "shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "graceful shutdown failed"})
		}
	}
	wg.Wait()
}

// serviceOptions collects buildService's wiring knobs: Predictor credentials
// plus the two backend-selection choices SPEC_FULL.md §4.C9 calls out (the
// -searcher-backend and -cache-backend flags) for the RecordSearcher and the
// Dual Cache's two store tiers.
type serviceOptions struct {
	apiKey     string
	model      string
	initialRPM float64
	maxRPM     float64

	searcherBackend  string // "memory" or "postgres"
	postgresDSN      string
	postgresMaxConns int64

	cacheBackend   string // "memory" or "redis"
	redisAddr      string
	redisKeyPrefix string
}

// buildService wires the Predictor, Resolver, Validator, Dual Cache, and
// Planning Service. The RecordSearcher and the two cache-tier stores are
// each selected at startup from opts, per SPEC_FULL.md §4.C9 and §4.C3.
func buildService(ctx context.Context, config *planner.SiteConfiguration, opts serviceOptions) (*planner.Service, error) {
	var predictor planner.Predictor
	if opts.apiKey != "" {
		anthropicPredictor, err := anthropic.NewFromAPIKey(opts.apiKey, opts.model)
		if err != nil {
			return nil, err
		}
		predictor = ratelimit.New(anthropicPredictor, opts.initialRPM, opts.maxRPM)
	} else {
		log.Printf(ctx, "no Anthropic API key configured, running with a stub predictor")
		predictor = stubPredictor{}
	}

	searcher, err := buildSearcher(ctx, config, opts)
	if err != nil {
		return nil, err
	}

	requestStore, structuralStore, err := buildCacheStores(ctx, opts)
	if err != nil {
		return nil, err
	}

	logger := planner.NewClueLogger()
	metrics := planner.NewClueMetrics()
	resolver := planner.NewResolver(searcher, logger)
	validator := planner.NewValidator(config)

	singleCall := planner.NewSingleCallPlanner(predictor, resolver, validator, logger)
	dualCache := planner.NewDualCache(requestStore, structuralStore, config, resolver, validator, logger)

	return planner.NewService(config, singleCall, dualCache, logger, metrics), nil
}

// buildSearcher selects the RecordSearcher backend. "memory" (the default)
// populates an in-memory store from the site configuration's declared
// entities (empty tables, since there is no seed-data source in this
// daemon); "postgres" opens a pool against -postgres-dsn and bounds Resolver
// concurrency against it with -postgres-max-concurrent.
func buildSearcher(ctx context.Context, config *planner.SiteConfiguration, opts serviceOptions) (planner.RecordSearcher, error) {
	switch opts.searcherBackend {
	case "", "memory":
		tables := make(map[string][]planner.Row, len(config.Entities))
		for _, e := range config.Entities {
			tables[e.Table] = nil
		}
		return memsearch.New(tables, config.RestrictedColumns), nil
	case "postgres":
		if opts.postgresDSN == "" {
			return nil, fmt.Errorf("-searcher-backend=postgres requires -postgres-dsn (or POSTGRES_DSN)")
		}
		pool, err := pgxpool.New(ctx, opts.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return pgsearch.NewFromPool(pool, opts.postgresMaxConns, config.RestrictedColumns), nil
	default:
		return nil, fmt.Errorf("unknown -searcher-backend %q (want memory or postgres)", opts.searcherBackend)
	}
}

// buildCacheStores selects the cache.Store backend shared by both Dual
// Cache tiers. "memory" (the default) uses two independent InMemoryStore
// instances; "redis" uses one Redis client with the two tiers distinguished
// by key prefix, since both satisfy the same cache.Store interface and the
// service layer is storage-agnostic (§4.C9).
func buildCacheStores(ctx context.Context, opts serviceOptions) (request, structural cache.Store, err error) {
	switch opts.cacheBackend {
	case "", "memory":
		return cache.NewInMemoryStore(), cache.NewInMemoryStore(), nil
	case "redis":
		if opts.redisAddr == "" {
			return nil, nil, fmt.Errorf("-cache-backend=redis requires -redis-addr (or REDIS_ADDR)")
		}
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis at %q: %w", opts.redisAddr, err)
		}
		return cache.NewRedisStore(client, opts.redisKeyPrefix+"request:"),
			cache.NewRedisStore(client, opts.redisKeyPrefix+"structural:"), nil
	default:
		return nil, nil, fmt.Errorf("unknown -cache-backend %q (want memory or redis)", opts.cacheBackend)
	}
}

// stubPredictor is the no-credentials fallback: a degraded but functioning
// Predictor so the daemon can still boot and serve /health in environments
// without an Anthropic key configured (demos, smoke tests).
type stubPredictor struct{}

func (stubPredictor) Predict(context.Context, string, float64) (planner.Prediction, error) {
	return nil, planner.New(planner.KindPredictorFailure, "no predictor backend configured")
}

func newMux(svc *planner.Service, config *planner.SiteConfiguration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth(config))
	mux.HandleFunc("POST /plan", handlePlan(svc))
	mux.HandleFunc("POST /validate", handleValidate(config))
	mux.HandleFunc("GET /stats", handleStats(svc))
	mux.HandleFunc("GET /cache/stats", handleCacheStats(svc))
	mux.HandleFunc("POST /cache/clear", handleCacheClear(svc))
	return mux
}

type healthResponse struct {
	Status string `json:"status"`
	Domain string `json:"domain"`
	Routes int    `json:"routes"`
}

func handleHealth(config *planner.SiteConfiguration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Domain: config.Domain, Routes: len(config.Routes)})
	}
}

type planRequest struct {
	Query           string         `json:"query"`
	UserID          string         `json:"user_id"`
	UserRole        string         `json:"user_role"`
	Context         map[string]any `json:"context"`
	MaxAlternatives int            `json:"max_alternatives"`
}

func handlePlan(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body planRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		resp, err := svc.Plan(r.Context(), planner.Request{
			Query:           body.Query,
			UserID:          body.UserID,
			UserRole:        body.UserRole,
			Context:         body.Context,
			MaxAlternatives: body.MaxAlternatives,
		})
		if err != nil {
			writePlannerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type validateRequest struct {
	Route string `json:"route"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func handleValidate(config *planner.SiteConfiguration) http.HandlerFunc {
	validator := planner.NewValidator(config)
	return func(w http.ResponseWriter, r *http.Request) {
		var body validateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		writeJSON(w, http.StatusOK, validateResponse{Valid: validator.IsValid(body.Route)})
	}
}

type statsResponse struct {
	Routes int `json:"routes"`
}

func handleStats(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{Routes: svc.RouteCount()})
	}
}

type tierStats struct {
	TotalEntries  int `json:"total_entries"`
	ActiveEntries int `json:"active_entries"`
}

type cacheStatsResponse struct {
	Request    tierStats `json:"request"`
	Structural tierStats `json:"structural"`
}

func handleCacheStats(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.CacheStats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cacheStatsResponse{
			Request:    tierStats{TotalEntries: stats.Request.TotalEntries, ActiveEntries: stats.Request.ActiveEntries},
			Structural: tierStats{TotalEntries: stats.Structural.TotalEntries, ActiveEntries: stats.Structural.ActiveEntries},
		})
	}
}

func handleCacheClear(svc *planner.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ClearCache(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writePlannerError(w http.ResponseWriter, err error) {
	var plannerErr *planner.Error
	if errors.As(err, &plannerErr) {
		status := http.StatusInternalServerError
		switch plannerErr.Kind {
		case planner.KindMalformedQuery:
			status = http.StatusBadRequest
		case planner.KindAccessDenied:
			status = http.StatusForbidden
		}
		writeJSON(w, status, map[string]string{"error": plannerErr.Message, "kind": string(plannerErr.Kind)})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
