// Package pipeline runs one query end to end: validate, search, then fetch
// and extract every hit with per-URL failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vishalm/serp-forge/internal/antidetect"
	"github.com/vishalm/serp-forge/internal/clock/system"
	"github.com/vishalm/serp-forge/internal/metrics"
	"github.com/vishalm/serp-forge/internal/progress"
	"github.com/vishalm/serp-forge/internal/search"
	"github.com/vishalm/serp-forge/internal/serp"
)

var tracer = otel.Tracer("github.com/vishalm/serp-forge/internal/pipeline")

// Searcher calls the upstream search API.
type Searcher interface {
	Search(ctx context.Context, query string, searchType serp.SearchType, num int, opts search.Options) (search.RawResponse, error)
}

// PageFetcher retrieves one page with anti-detection applied.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, useProxy bool) (antidetect.Page, error)
}

// DocumentBuilder turns fetched HTML into an analyzed document.
type DocumentBuilder interface {
	Document(html []byte, pageURL string, now time.Time) (*serp.Document, error)
}

// Config bounds page fetching for one query.
type Config struct {
	// MaxConcurrent caps in-flight fetches; values below 2 fetch sequentially.
	MaxConcurrent int
	// Sequential forces in-order fetching regardless of MaxConcurrent.
	Sequential bool
	// RequestTimeout bounds each fetch including any headless render.
	RequestTimeout time.Duration
	// IncludeRawHTML keeps the fetched body on each document.
	IncludeRawHTML bool
}

// Request describes one query run.
type Request struct {
	Query            string          `json:"query" validate:"required"`
	SearchType       serp.SearchType `json:"search_type" validate:"searchtype"`
	MaxResults       int             `json:"max_results" validate:"gt=0,lte=100"`
	IncludeContent   bool            `json:"include_content"`
	UseProxyRotation bool            `json:"use_proxy_rotation"`
	Options          search.Options  `json:"-"`
}

// Pipeline is safe for concurrent use; the batch orchestrator shares one across queries.
type Pipeline struct {
	cfg       Config
	searcher  Searcher
	fetcher   PageFetcher
	extractor DocumentBuilder
	validator *Validator
	emitter   progress.Emitter
	sink      serp.ResultSink
	clock     serp.Clock
	ids       serp.IDGenerator
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEmitter reports progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithSink persists every finished result.
func WithSink(s serp.ResultSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithClock overrides the wall clock.
func WithClock(c serp.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithIDs overrides request ID generation.
func WithIDs(g serp.IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// New wires a pipeline.
func New(cfg Config, searcher Searcher, fetcher PageFetcher, extractor DocumentBuilder, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:       cfg,
		searcher:  searcher,
		fetcher:   fetcher,
		extractor: extractor,
		validator: NewValidator(),
		emitter:   progress.Nop{},
		clock:     system.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validator exposes the request validator so callers share its messages.
func (p *Pipeline) Validator() *Validator {
	return p.validator
}

// Run executes req. It never returns nil; failures are reported on the result.
func (p *Pipeline) Run(ctx context.Context, req Request) *serp.QueryResult {
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("serp.search_type", string(req.SearchType)),
		attribute.Int("serp.max_results", req.MaxResults),
	))
	defer span.End()

	res := p.run(ctx, req)
	span.SetAttributes(
		attribute.String("serp.request_id", res.RequestID),
		attribute.Int("serp.total_results", res.TotalResults),
		attribute.Int("serp.scraped", res.ScrapedSuccessfully),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.ErrorMessage)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, req Request) *serp.QueryResult {
	start := p.clock.Now()
	req.Query = strings.TrimSpace(req.Query)
	if req.SearchType == "" {
		req.SearchType = serp.SearchWeb
	}
	res := serp.NewQueryResult(p.newID(start), req.Query, req.SearchType, start)
	logger := p.logger.With(zap.String("request_id", res.RequestID), zap.String("query", req.Query))

	metrics.IncActiveQueries()
	defer metrics.DecActiveQueries()

	if err := p.validate(req); err != nil {
		logger.Warn("rejected query", zap.Error(err))
		res.Fail(err.Error())
		p.finish(ctx, res, start)
		return res
	}
	if !req.SearchType.FetchesContent() {
		req.IncludeContent = false
	}

	p.emit(progress.Event{RunID: res.RequestID, Stage: progress.StageSearchStart, Query: req.Query})
	raw, err := p.searcher.Search(ctx, req.Query, req.SearchType, req.MaxResults, req.Options)
	if err != nil {
		logger.Error("search failed", zap.Error(err))
		res.Fail(err.Error())
		p.finish(ctx, res, start)
		p.emit(progress.Event{
			RunID: res.RequestID,
			Stage: progress.StageSearchError,
			Query: req.Query,
			Dur:   p.clock.Now().Sub(start),
			Note:  err.Error(),
		})
		return res
	}

	hits := search.ParseResults(raw, logger)
	if len(hits) > req.MaxResults {
		hits = hits[:req.MaxResults]
	}
	res.Hits = hits
	res.TotalResults = len(hits)
	res.Success = true

	if req.IncludeContent && len(hits) > 0 {
		p.scrape(ctx, res, hits, req.UseProxyRotation)
	}

	p.finish(ctx, res, start)
	p.emit(progress.Event{
		RunID: res.RequestID,
		Stage: progress.StageSearchDone,
		Query: req.Query,
		Count: res.TotalResults,
		Dur:   p.clock.Now().Sub(start),
	})
	logger.Info("query completed",
		zap.Int("hits", res.TotalResults),
		zap.Int("scraped", res.ScrapedSuccessfully),
		zap.Int("failed", len(res.FailedURLs)),
	)
	return res
}

func (p *Pipeline) validate(req Request) error {
	if err := p.validator.Check(req); err != nil {
		return err
	}
	return req.Options.Validate()
}

func (p *Pipeline) scrape(ctx context.Context, res *serp.QueryResult, hits []serp.SearchHit, useProxy bool) {
	if p.cfg.Sequential || p.cfg.MaxConcurrent < 2 {
		for _, hit := range hits {
			p.scrapeOne(ctx, res, hit, useProxy)
		}
		return
	}
	// Plain Group: one hit's failure must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, hit := range hits {
		g.Go(func() error {
			p.scrapeOne(ctx, res, hit, useProxy)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) scrapeOne(ctx context.Context, res *serp.QueryResult, hit serp.SearchHit, useProxy bool) {
	fetchCtx := ctx
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	page, err := p.fetcher.Fetch(fetchCtx, hit.URL, useProxy)
	if err != nil {
		p.recordFailure(res, hit, err)
		return
	}
	p.emit(progress.Event{
		RunID:       res.RequestID,
		Stage:       progress.StageFetchDone,
		Query:       res.Query,
		Site:        serp.Domain(hit.URL),
		URL:         hit.URL,
		Bytes:       int64(len(page.Body)),
		StatusClass: progress.ClassifyStatus(page.StatusCode),
		Dur:         page.Elapsed,
	})

	doc, err := p.extractor.Document(page.Body, hit.URL, p.clock.Now())
	if err != nil {
		p.recordFailure(res, hit, err)
		return
	}
	if doc.Title == "" {
		doc.Title = hit.Title
	}
	doc.ProxyUsed = page.Proxy
	doc.UserAgent = page.UserAgent
	doc.ResponseTimeSeconds = page.Elapsed.Seconds()
	doc.HTTPStatus = page.StatusCode
	if p.cfg.IncludeRawHTML {
		doc.RawHTML = string(page.Body)
	}
	res.AddDocument(doc)
}

func (p *Pipeline) recordFailure(res *serp.QueryResult, hit serp.SearchHit, err error) {
	p.logger.Debug("url failed",
		zap.String("request_id", res.RequestID),
		zap.String("url", hit.URL),
		zap.Error(err),
	)
	res.AddFailure(hit.URL)
	p.emit(progress.Event{
		RunID: res.RequestID,
		Stage: progress.StageFetchFailed,
		Query: res.Query,
		Site:  serp.Domain(hit.URL),
		URL:   hit.URL,
		Note:  err.Error(),
	})
}

type batchKey struct{}

// WithinBatch marks ctx as part of a batch run. Query results run under it are
// persisted once, inside the batch result, instead of individually.
func WithinBatch(ctx context.Context) context.Context {
	return context.WithValue(ctx, batchKey{}, true)
}

// PartOfBatch reports whether ctx was marked by WithinBatch.
func PartOfBatch(ctx context.Context) bool {
	v, _ := ctx.Value(batchKey{}).(bool)
	return v
}

// finish stamps the execution time and hands the result to the sink.
// Sink failures are logged and never change the outcome.
func (p *Pipeline) finish(ctx context.Context, res *serp.QueryResult, start time.Time) {
	res.ExecutionTimeSeconds = p.clock.Now().Sub(start).Seconds()
	if p.sink == nil || PartOfBatch(ctx) {
		return
	}
	if err := p.sink.SaveQuery(context.WithoutCancel(ctx), res); err != nil {
		p.logger.Warn("saving query result failed", zap.String("request_id", res.RequestID), zap.Error(err))
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = p.clock.Now()
	}
	p.emitter.Emit(evt)
}

func (p *Pipeline) newID(now time.Time) string {
	if p.ids != nil {
		id, err := p.ids.NewID()
		if err == nil {
			return id
		}
		p.logger.Warn("id generation failed; using timestamp id", zap.Error(err))
	}
	return fmt.Sprintf("req-%d", now.UnixNano())
}
