// Package batch runs many independent queries through the single-query
// pipeline and aggregates their results.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vishalm/serp-forge/internal/clock/system"
	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/progress"
	"github.com/vishalm/serp-forge/internal/search"
	"github.com/vishalm/serp-forge/internal/serp"
)

var tracer = otel.Tracer("github.com/vishalm/serp-forge/internal/batch")

// Runner executes one query. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *serp.QueryResult
}

// Config bounds query-level concurrency.
type Config struct {
	// MaxConcurrentQueries caps in-flight queries in concurrent mode; <= 0 means no cap.
	MaxConcurrentQueries int
}

// Request describes one batch run.
type Request struct {
	Queries            []string        `json:"queries" validate:"min=1"`
	SearchType         serp.SearchType `json:"search_type"`
	MaxResultsPerQuery int             `json:"max_results_per_query"`
	Concurrent         bool            `json:"concurrent"`
	IncludeContent     bool            `json:"include_content"`
	UseProxyRotation   bool            `json:"use_proxy_rotation"`
	Options            search.Options  `json:"-"`
}

// Orchestrator fans queries out to a Runner.
type Orchestrator struct {
	cfg       Config
	runner    Runner
	validator *pipeline.Validator
	emitter   progress.Emitter
	sink      serp.ResultSink
	clock     serp.Clock
	ids       serp.IDGenerator
	logger    *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter reports the batch summary to e.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithSink persists every finished batch.
func WithSink(s serp.ResultSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithClock overrides the wall clock.
func WithClock(c serp.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDs overrides batch ID generation.
func WithIDs(g serp.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

// New wires an orchestrator over runner.
func New(cfg Config, runner Runner, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:       cfg,
		runner:    runner,
		validator: pipeline.NewValidator(),
		emitter:   progress.Nop{},
		clock:     system.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every distinct query in req. It never returns nil. Individual
// query failures are isolated; the batch succeeds when at least one query did.
func (o *Orchestrator) Run(ctx context.Context, req Request) *serp.BatchResult {
	ctx, span := tracer.Start(ctx, "batch.Run")
	defer span.End()

	res := o.run(ctx, req)
	span.SetAttributes(
		attribute.String("serp.batch_id", res.BatchID),
		attribute.Int("serp.total_queries", res.TotalQueries),
		attribute.Int("serp.successful_queries", res.SuccessfulQueries),
	)
	if !res.Success {
		span.SetStatus(codes.Error, "no query succeeded")
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, req Request) *serp.BatchResult {
	start := o.clock.Now()
	res := &serp.BatchResult{BatchID: o.newID(start), Timestamp: start}
	logger := o.logger.With(zap.String("batch_id", res.BatchID))

	queries, dupes := Dedupe(req.Queries)
	if dupes > 0 {
		logger.Warn("duplicate queries removed", zap.Int("duplicates", dupes), zap.Int("remaining", len(queries)))
	}
	req.Queries = queries
	if err := o.validator.Check(req); err != nil {
		logger.Warn("rejected batch", zap.Error(err))
		res.ErrorMessage = err.Error()
		o.finish(ctx, res, start)
		return res
	}

	results := make([]*serp.QueryResult, len(queries))
	queryCtx := pipeline.WithinBatch(ctx)
	runOne := func(i int) {
		results[i] = o.runner.Run(queryCtx, pipeline.Request{
			Query:            queries[i],
			SearchType:       req.SearchType,
			MaxResults:       req.MaxResultsPerQuery,
			IncludeContent:   req.IncludeContent,
			UseProxyRotation: req.UseProxyRotation,
			Options:          req.Options,
		})
	}

	if req.Concurrent {
		// Plain Group: no cancel-on-failure, every query runs to completion.
		var g errgroup.Group
		if o.cfg.MaxConcurrentQueries > 0 {
			g.SetLimit(o.cfg.MaxConcurrentQueries)
		}
		for i := range queries {
			g.Go(func() error {
				runOne(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range queries {
			runOne(i)
		}
	}

	aggregate(res, queries, results)
	o.finish(ctx, res, start)
	o.emitter.Emit(progress.Event{
		RunID: res.BatchID,
		TS:    o.clock.Now(),
		Stage: progress.StageBatchDone,
		Count: res.SuccessfulQueries,
		Total: res.TotalQueries,
		Dur:   o.clock.Now().Sub(start),
	})
	logger.Info("batch completed",
		zap.Int("queries", res.TotalQueries),
		zap.Int("successful", res.SuccessfulQueries),
		zap.Int("failed", res.FailedQueries),
		zap.Int("scraped", res.TotalScraped),
	)
	return res
}

func aggregate(res *serp.BatchResult, queries []string, results []*serp.QueryResult) {
	res.TotalQueries = len(queries)
	for i, q := range queries {
		qr := results[i]
		if qr == nil {
			qr = serp.NewQueryResult("", q, "", res.Timestamp)
			qr.Fail("query did not run")
		}
		res.ResultsByQuery.Set(q, qr)
		if qr.Success {
			res.SuccessfulQueries++
		} else {
			res.FailedQueries++
		}
		res.TotalResults += qr.TotalResults
		res.TotalScraped += qr.ScrapedSuccessfully
	}
	res.Success = res.SuccessfulQueries > 0
}

func (o *Orchestrator) finish(ctx context.Context, res *serp.BatchResult, start time.Time) {
	res.TotalExecutionTimeSeconds = o.clock.Now().Sub(start).Seconds()
	if o.sink == nil {
		return
	}
	if err := o.sink.SaveBatch(context.WithoutCancel(ctx), res); err != nil {
		o.logger.Warn("saving batch result failed", zap.String("batch_id", res.BatchID), zap.Error(err))
	}
}

func (o *Orchestrator) newID(now time.Time) string {
	if o.ids != nil {
		id, err := o.ids.NewID()
		if err == nil {
			return id
		}
		o.logger.Warn("id generation failed; using timestamp id", zap.Error(err))
	}
	return fmt.Sprintf("batch-%d", now.UnixNano())
}
