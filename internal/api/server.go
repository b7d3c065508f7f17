package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/batch"
	"github.com/vishalm/serp-forge/internal/id/uuid"
	"github.com/vishalm/serp-forge/internal/metrics"
	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/search"
	"github.com/vishalm/serp-forge/internal/serp"
)

const maxBodyBytes = 1 << 20

// QueryRunner executes one query; *pipeline.Pipeline satisfies it.
type QueryRunner interface {
	Run(ctx context.Context, req pipeline.Request) *serp.QueryResult
}

// BatchRunner executes a batch; *batch.Orchestrator satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, req batch.Request) *serp.BatchResult
}

// CheckFunc reports whether a dependency is ready.
type CheckFunc func(ctx context.Context) error

// Config controls server behavior and request defaults.
type Config struct {
	// APIKey enables X-API-Key authentication on /v1 routes when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	Tracing        bool
	// Defaults applied when a request omits the field.
	MaxResults       int
	UseProxyRotation bool
	Concurrent       bool
}

// Server wires HTTP handlers to the query pipeline and batch orchestrator.
type Server struct {
	cfg     Config
	router  chi.Router
	queries QueryRunner
	batches BatchRunner
	ids     serp.IDGenerator
	checks  map[string]CheckFunc
	logger  *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, fn CheckFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.checks[name] = fn
		}
	}
}

// WithIDs overrides request ID generation.
func WithIDs(ids serp.IDGenerator) Option {
	return func(s *Server) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, queries QueryRunner, batches BatchRunner, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		cfg:     cfg,
		queries: queries,
		batches: batches,
		ids:     uuid.New(),
		checks:  make(map[string]CheckFunc),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		if cfg.APIKey != "" {
			r.Use(s.apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/search", s.search)
		r.Post("/batch", s.batch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	if s.cfg.Tracing {
		return otelhttp.NewHandler(s.router, "serpforge.api")
	}
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]string{}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failures": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Query            string `json:"query"`
	SearchType       string `json:"search_type"`
	MaxResults       *int   `json:"max_results"`
	IncludeContent   *bool  `json:"include_content"`
	UseProxyRotation *bool  `json:"use_proxy_rotation"`
	Country          string `json:"country"`
	Language         string `json:"language"`
	TimePeriod       string `json:"time_period"`
	SafeSearch       bool   `json:"safe_search"`
}

type batchRequest struct {
	Queries            []string `json:"queries"`
	SearchType         string   `json:"search_type"`
	MaxResultsPerQuery *int     `json:"max_results_per_query"`
	Concurrent         *bool    `json:"concurrent"`
	IncludeContent     *bool    `json:"include_content"`
	UseProxyRotation   *bool    `json:"use_proxy_rotation"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.queries.Run(r.Context(), pipeline.Request{
		Query:            req.Query,
		SearchType:       serp.SearchType(req.SearchType),
		MaxResults:       valueOrDefault(req.MaxResults, s.cfg.MaxResults),
		IncludeContent:   valueOrDefault(req.IncludeContent, true),
		UseProxyRotation: valueOrDefault(req.UseProxyRotation, s.cfg.UseProxyRotation),
		Options: search.Options{
			Country:    req.Country,
			Language:   req.Language,
			TimePeriod: req.TimePeriod,
			SafeSearch: req.SafeSearch,
		},
	})
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, res)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.batches.Run(r.Context(), batch.Request{
		Queries:            req.Queries,
		SearchType:         serp.SearchType(req.SearchType),
		MaxResultsPerQuery: valueOrDefault(req.MaxResultsPerQuery, s.cfg.MaxResults),
		Concurrent:         valueOrDefault(req.Concurrent, s.cfg.Concurrent),
		IncludeContent:     valueOrDefault(req.IncludeContent, true),
		UseProxyRotation:   valueOrDefault(req.UseProxyRotation, s.cfg.UseProxyRotation),
	})
	status := http.StatusOK
	if res.ErrorMessage != "" {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, res)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
