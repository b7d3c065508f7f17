// Package app builds and holds the long-lived services behind the CLI and the
// HTTP server: the search gateway, the fetch stack, the pipeline and batch
// orchestrator, result sinks, progress reporting and tracing.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/antidetect"
	"github.com/vishalm/serp-forge/internal/api"
	"github.com/vishalm/serp-forge/internal/batch"
	"github.com/vishalm/serp-forge/internal/cache"
	"github.com/vishalm/serp-forge/internal/config"
	"github.com/vishalm/serp-forge/internal/extract"
	collyfetcher "github.com/vishalm/serp-forge/internal/fetcher/colly"
	headlessfetcher "github.com/vishalm/serp-forge/internal/fetcher/headless"
	"github.com/vishalm/serp-forge/internal/hash/sha256"
	"github.com/vishalm/serp-forge/internal/headless/detector"
	"github.com/vishalm/serp-forge/internal/id/uuid"
	"github.com/vishalm/serp-forge/internal/metrics"
	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/policy/ratelimit"
	"github.com/vishalm/serp-forge/internal/policy/retry"
	"github.com/vishalm/serp-forge/internal/progress"
	"github.com/vishalm/serp-forge/internal/progress/sinks"
	"github.com/vishalm/serp-forge/internal/publisher"
	pubsubpublisher "github.com/vishalm/serp-forge/internal/publisher/pubsub"
	"github.com/vishalm/serp-forge/internal/search"
	"github.com/vishalm/serp-forge/internal/serp"
	"github.com/vishalm/serp-forge/internal/storage"
	"github.com/vishalm/serp-forge/internal/storage/gcs"
	"github.com/vishalm/serp-forge/internal/storage/local"
	"github.com/vishalm/serp-forge/internal/storage/postgres"
	"github.com/vishalm/serp-forge/internal/telemetry"
)

// Version is stamped at build time with -ldflags "-X github.com/vishalm/serp-forge/internal/app.Version=...".
var Version = "dev"

// App holds the shared services. Build it once with New and release it with Close.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	batch    *batch.Orchestrator
	hub      *progress.Hub
	sink     *storage.Multi
	checks   map[string]api.CheckFunc
	closers  []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option customizes construction, mainly so tests can swap network edges.
type Option func(*options)

type options struct {
	searchTransport serp.SearchTransport
	pageTransport   serp.PageTransport
	registerer      prometheus.Registerer
	extraSinks      []serp.ResultSink
	spanProcessors  []sdktrace.SpanProcessor
}

// WithSearchTransport replaces the HTTP transport used for upstream search calls.
func WithSearchTransport(t serp.SearchTransport) Option {
	return func(o *options) { o.searchTransport = t }
}

// WithPageTransport replaces the colly page transport.
func WithPageTransport(t serp.PageTransport) Option {
	return func(o *options) { o.pageTransport = t }
}

// WithRegisterer registers progress collectors somewhere other than the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithResultSink adds a sink next to the configured storage backend.
func WithResultSink(s serp.ResultSink) Option {
	return func(o *options) { o.extraSinks = append(o.extraSinks, s) }
}

// WithSpanProcessor attaches a span processor when tracing is enabled.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessors = append(o.spanProcessors, p) }
}

// New wires every component from cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, checks: make(map[string]api.CheckFunc)}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()

	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.TracingEnabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, o.spanProcessors...)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.addCloser("tracer", func(ctx context.Context) error { return telemetry.Shutdown(ctx, tp) })

	gateway, err := a.buildGateway(ctx, o)
	if err != nil {
		return nil, err
	}
	fetcher, err := a.buildFetcher(o)
	if err != nil {
		return nil, err
	}
	extractor := extract.New(extract.Config{
		MinContentLength:  cfg.ContentExtraction.MinContentLength,
		MaxContentLength:  cfg.ContentExtraction.MaxContentLength,
		SentimentAnalysis: cfg.ContentExtraction.SentimentAnalysis,
		KeywordExtraction: cfg.ContentExtraction.KeywordExtraction,
		LanguageDetection: cfg.ContentExtraction.LanguageDetection,
		AutoSummarization: cfg.ContentExtraction.AutoSummarization,
	}, logger.Named("extract"))

	if err := a.buildHub(ctx, o); err != nil {
		return nil, err
	}
	if err := a.buildSinks(ctx, o); err != nil {
		return nil, err
	}

	a.pipeline = pipeline.New(pipeline.Config{
		MaxConcurrent:  cfg.Scraping.MaxConcurrent,
		Sequential:     cfg.Scraping.Sequential,
		RequestTimeout: cfg.Scraping.RequestTimeout,
		IncludeRawHTML: cfg.Output.IncludeRawHTML,
	}, gateway, fetcher, extractor, logger.Named("pipeline"),
		pipeline.WithEmitter(a.hub),
		pipeline.WithSink(a.sink),
		pipeline.WithIDs(uuid.New()),
	)
	a.batch = batch.New(batch.Config{
		MaxConcurrentQueries: cfg.Batch.MaxConcurrentQueries,
	}, a.pipeline, logger.Named("batch"),
		batch.WithEmitter(a.hub),
		batch.WithSink(a.sink),
		batch.WithIDs(uuid.New()),
	)

	logger.Info("application services initialized",
		zap.String("version", Version),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("result_sinks", a.sink.Len()),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("tracing", cfg.Telemetry.TracingEnabled),
	)
	return a, nil
}

func (a *App) buildGateway(ctx context.Context, o options) (*search.Gateway, error) {
	cfg := a.cfg
	transport := o.searchTransport
	if transport == nil {
		transport = search.NewHTTPTransport(cfg.Serper.Timeout)
	}
	limiter := ratelimit.New(ratelimit.Config{MaxRequestsPerMinute: cfg.Serper.MaxRequestsPerMinute})
	retrier := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}, a.logger.Named("retry"))

	var gwOpts []search.Option
	if cfg.Cache.Enabled {
		store, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, "serpforge", a.logger.Named("cache"))
		if err != nil {
			return nil, fmt.Errorf("init search cache: %w", err)
		}
		a.addCloser("cache", func(context.Context) error { return store.Close() })
		a.checks["redis"] = store.Ping
		gwOpts = append(gwOpts, search.WithCache(store, sha256.New()))
	}

	return search.NewGateway(search.Config{
		BaseURL:  cfg.Serper.BaseURL,
		APIKey:   cfg.Serper.APIKey,
		CacheTTL: cfg.Cache.TTL,
	}, transport, limiter, retrier, a.logger.Named("search"), gwOpts...), nil
}

func (a *App) buildFetcher(o options) (*antidetect.Fetcher, error) {
	cfg := a.cfg
	transport := o.pageTransport
	if transport == nil {
		pages := collyfetcher.New(collyfetcher.Config{Timeout: cfg.Scraping.RequestTimeout})
		a.addCloser("page transport", func(context.Context) error { pages.Close(); return nil })
		transport = pages
	}

	agents, err := antidetect.LoadUserAgents(cfg.AntiDetection.UserAgentsFile)
	if err != nil {
		return nil, fmt.Errorf("load user agents: %w", err)
	}
	headers := antidetect.NewHeaderBuilder(antidetect.HeaderConfig{
		RotateHeaders:    cfg.AntiDetection.RotateHeaders,
		RotateUserAgents: cfg.AntiDetection.RotateUserAgents,
		UserAgents:       agents,
	})
	proxies := antidetect.NewProxySelector(antidetect.ProxyConfig{
		Enabled:     cfg.Proxy.Enabled,
		RoundRobin:  cfg.Proxy.Rotation == config.RotationRoundRobin,
		Residential: cfg.Proxy.Residential,
		Datacenter:  cfg.Proxy.Datacenter,
	})
	delayer := antidetect.NewDelayer(cfg.AntiDetection.DelayMin, cfg.AntiDetection.DelayMax)

	fetchOpts := []antidetect.FetcherOption{
		antidetect.WithRobots(antidetect.NewRobotsPolicy(cfg.AntiDetection.RespectRobots, transport, a.logger.Named("robots"))),
		antidetect.WithSkipDomains(cfg.AntiDetection.SkipDomains),
		antidetect.WithForbiddenThreshold(cfg.AntiDetection.BlockAfterForbidden),
	}
	if cfg.AntiDetection.HeadlessFallback {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.AntiDetection.HeadlessMaxParallel,
			NavigationTimeout: cfg.AntiDetection.HeadlessNavTimeout,
		})
		if err != nil {
			a.logger.Warn("headless renderer init failed; continuing without fallback", zap.Error(err))
		} else {
			a.addCloser("headless renderer", func(context.Context) error { renderer.Close(); return nil })
			fetchOpts = append(fetchOpts, antidetect.WithRenderer(renderer, detector.NewHeuristic(0)))
		}
	}
	return antidetect.NewFetcher(transport, headers, proxies, delayer, a.logger.Named("fetch"), fetchOpts...), nil
}

func (a *App) buildHub(ctx context.Context, o options) error {
	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress"),
	}, sinks.NewLogSink(a.logger.Named("progress")), promSink)
	a.addCloser("progress hub", a.hub.Close)
	return nil
}

func (a *App) buildSinks(ctx context.Context, o options) error {
	cfg := a.cfg
	var all []serp.ResultSink

	switch cfg.Storage.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		all = append(all, storage.NewBlobSink(store, cfg.Storage.Prefix, a.logger.Named("storage")))
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.addCloser("gcs", func(context.Context) error { return store.Close() })
		all = append(all, storage.NewBlobSink(store, cfg.Storage.Prefix, a.logger.Named("storage")))
	case config.BackendPostgres:
		store, err := postgres.NewResultStore(ctx, postgres.ResultStoreConfig{
			DSN:   cfg.Storage.PostgresDSN,
			Table: cfg.Storage.PostgresTable,
		})
		if err != nil {
			return fmt.Errorf("init postgres storage: %w", err)
		}
		a.addCloser("postgres", func(context.Context) error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		all = append(all, store)
	}

	if cfg.Notify.PubSubProject != "" && cfg.Notify.PubSubTopic != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.Notify.PubSubProject)
		if err != nil {
			return fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.addCloser("pubsub", func(context.Context) error { return pub.Close() })
		all = append(all, publisher.NewNotifier(pub, cfg.Notify.PubSubTopic, a.logger.Named("notify")))
	}

	all = append(all, o.extraSinks...)
	a.sink = storage.NewMulti(all...)
	return nil
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Pipeline returns the single-query pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Batch returns the batch orchestrator.
func (a *App) Batch() *batch.Orchestrator { return a.batch }

// RunQuery runs one query through the pipeline.
func (a *App) RunQuery(ctx context.Context, req pipeline.Request) *serp.QueryResult {
	return a.pipeline.Run(ctx, req)
}

// RunBatch runs a batch through the orchestrator.
func (a *App) RunBatch(ctx context.Context, req batch.Request) *serp.BatchResult {
	return a.batch.Run(ctx, req)
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.Server().Handler()
}

// Server builds the HTTP API over the App's pipeline and orchestrator.
func (a *App) Server() *api.Server {
	opts := make([]api.Option, 0, len(a.checks))
	for name, check := range a.checks {
		opts = append(opts, api.WithReadinessCheck(name, check))
	}
	return api.NewServer(api.Config{
		APIKey:           a.cfg.Server.APIKey,
		RequestTimeout:   a.cfg.Server.RequestTimeout,
		Tracing:          a.cfg.Telemetry.TracingEnabled,
		MaxResults:       a.cfg.Scraping.MaxResults,
		UseProxyRotation: a.cfg.Proxy.Enabled,
		Concurrent:       true,
	}, a.pipeline, a.batch, a.logger.Named("api"), opts...)
}

// Close releases services in reverse construction order. The progress hub is
// drained before tracing shuts down so late events are still delivered.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
