package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/cache"
	"github.com/vishalm/serp-forge/internal/metrics"
	"github.com/vishalm/serp-forge/internal/serp"
)

var tracer = otel.Tracer("github.com/vishalm/serp-forge/internal/search")

// Acquirer gates outbound calls; ratelimit.Limiter implements it.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Retrier re-runs an operation on retryable failures; retry.ExponentialPolicy implements it.
type Retrier interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// RawResponse is the unparsed JSON body returned by the upstream API.
type RawResponse []byte

// Config points the gateway at the upstream API.
type Config struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

// Gateway issues rate-limited, retried search calls.
type Gateway struct {
	cfg       Config
	transport serp.SearchTransport
	limiter   Acquirer
	retrier   Retrier
	cache     cache.Store
	hasher    serp.Hasher
	logger    *zap.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithCache enables the response cache; hasher derives cache keys from payloads.
func WithCache(store cache.Store, hasher serp.Hasher) Option {
	return func(g *Gateway) {
		g.cache = store
		g.hasher = hasher
	}
}

// NewGateway wires a gateway from its collaborators.
func NewGateway(cfg Config, transport serp.SearchTransport, limiter Acquirer, retrier Retrier, logger *zap.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	g := &Gateway{
		cfg:       cfg,
		transport: transport,
		limiter:   limiter,
		retrier:   retrier,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Search runs one query against the upstream API and returns the raw JSON body.
func (g *Gateway) Search(ctx context.Context, query string, searchType serp.SearchType, num int, opts Options) (RawResponse, error) {
	ctx, span := tracer.Start(ctx, "search.Search", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("serp.search_type", string(searchType)),
		attribute.Int("serp.num", num),
	))
	defer span.End()

	body, err := json.Marshal(buildPayload(query, searchType, num, opts))
	if err != nil {
		return nil, fmt.Errorf("encode search payload: %w", err)
	}
	endpoint := g.cfg.BaseURL + endpointPath(searchType)

	cacheKey := g.cacheKey(endpoint, body)
	if cached, ok := g.lookup(ctx, cacheKey); ok {
		span.SetAttributes(attribute.Bool("serp.cache_hit", true))
		return cached, nil
	}

	headers := http.Header{}
	headers.Set("X-API-KEY", g.cfg.APIKey)
	headers.Set("Content-Type", "application/json")

	start := time.Now()
	var raw RawResponse
	err = g.retrier.Do(ctx, func(ctx context.Context) error {
		if err := g.limiter.Acquire(ctx); err != nil {
			return err
		}
		g.logger.Info("searching", zap.String("query", query), zap.String("type", string(searchType)))
		status, resp, err := g.transport.Post(ctx, endpoint, body, headers)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("search %q: %w", query, ctx.Err())
			}
			return &serp.UpstreamError{Message: fmt.Sprintf("request failed for query %q: %v", query, err)}
		}
		if status < 200 || status > 299 {
			return &serp.UpstreamError{Message: upstreamMessage(resp), StatusCode: status, Body: string(resp)}
		}
		if !gjson.ValidBytes(resp) {
			return &serp.UpstreamError{Message: "invalid JSON response", StatusCode: status, Body: string(resp)}
		}
		raw = resp
		return nil
	})
	if err != nil {
		metrics.ObserveSearch(string(searchType), "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.ObserveSearch(string(searchType), "ok", time.Since(start))
	g.store(ctx, cacheKey, raw)
	return raw, nil
}

func (g *Gateway) cacheKey(endpoint string, body []byte) string {
	if g.cache == nil || g.hasher == nil {
		return ""
	}
	key, err := g.hasher.Hash(append([]byte(endpoint+"\n"), body...))
	if err != nil {
		g.logger.Warn("search cache key failed", zap.Error(err))
		return ""
	}
	return "search:" + key
}

func (g *Gateway) lookup(ctx context.Context, key string) (RawResponse, bool) {
	if key == "" {
		return nil, false
	}
	val, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("search cache lookup failed", zap.Error(err))
		return nil, false
	}
	metrics.ObserveCacheLookup(ok)
	return val, ok
}

func (g *Gateway) store(ctx context.Context, key string, raw RawResponse) {
	if key == "" {
		return
	}
	if err := g.cache.Set(ctx, key, raw, g.cfg.CacheTTL); err != nil {
		g.logger.Warn("search cache store failed", zap.Error(err))
	}
}

// upstreamMessage prefers the API's message field and falls back to the body text.
func upstreamMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "Unknown error"
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
