package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vishalm/serp-forge/internal/progress"
)

// PrometheusSink turns progress events into query, fetch and batch metrics.
// Running queries are tracked by run ID so repeated starts count once.
type PrometheusSink struct {
	queriesStarted   prometheus.Counter
	queriesCompleted *prometheus.CounterVec
	queriesRunning   prometheus.Gauge
	queryRuntime     *prometheus.HistogramVec
	queryHits        prometheus.Histogram

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchFailures *prometheus.CounterVec

	batchesCompleted *prometheus.CounterVec
	batchQueries     prometheus.Histogram

	mu      sync.Mutex
	running map[string]bool
}

// registrar registers collectors in order and keeps the first failure.
type registrar struct {
	reg prometheus.Registerer
	err error
}

func register[C prometheus.Collector](r *registrar, c C) C {
	if r.err == nil {
		if err := r.reg.Register(c); err != nil {
			r.err = fmt.Errorf("register progress collector: %w", err)
		}
	}
	return c
}

// NewPrometheusSink registers the collectors against reg, or the default registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &registrar{reg: reg}
	s := &PrometheusSink{
		queriesStarted: register(r, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serpforge_queries_started_total",
			Help: "Total queries that have started.",
		})),
		queriesCompleted: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpforge_queries_completed_total",
			Help: "Total queries completed partitioned by result.",
		}, []string{"result"})),
		queriesRunning: register(r, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "serpforge_queries_running",
			Help: "Current number of running queries.",
		})),
		queryRuntime: register(r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "serpforge_query_runtime_seconds",
			Help:    "Wall time per completed query.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"result"})),
		queryHits: register(r, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "serpforge_query_hits",
			Help:    "Hits returned per successful search.",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		})),
		fetchRequests: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpforge_progress_fetch_requests_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"})),
		fetchBytes: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpforge_progress_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"})),
		fetchDuration: register(r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "serpforge_progress_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site", "status_class"})),
		fetchFailures: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpforge_progress_fetch_failures_total",
			Help: "URLs that could not be fetched or extracted, per site.",
		}, []string{"site"})),
		batchesCompleted: register(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpforge_batches_completed_total",
			Help: "Batches completed partitioned by result.",
		}, []string{"result"})),
		batchQueries: register(r, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "serpforge_batch_queries",
			Help:    "Distinct queries per batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		})),
		running: map[string]bool{},
	}
	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// Consume implements progress.Sink.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		site := evt.Site
		if site == "" {
			site = "unknown"
		}
		switch evt.Stage {
		case progress.StageSearchStart:
			s.queriesStarted.Inc()
			if s.markRunning(evt.RunID, true) {
				s.queriesRunning.Inc()
			}
		case progress.StageSearchDone:
			s.queryHits.Observe(float64(evt.Count))
			s.finishQuery(evt, "success")
		case progress.StageSearchError:
			s.finishQuery(evt, "error")
		case progress.StageFetchDone:
			class := string(evt.StatusClass)
			if class == "" {
				class = string(progress.StatusOther)
			}
			s.fetchRequests.WithLabelValues(site, class).Inc()
			if evt.Bytes > 0 {
				s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
			}
			if evt.Dur > 0 {
				s.fetchDuration.WithLabelValues(site, class).Observe(evt.Dur.Seconds())
			}
		case progress.StageFetchFailed:
			s.fetchFailures.WithLabelValues(site).Inc()
		case progress.StageBatchDone:
			result := "success"
			if evt.Count == 0 {
				result = "error"
			}
			s.batchesCompleted.WithLabelValues(result).Inc()
			s.batchQueries.Observe(float64(evt.Total))
		}
	}
	return nil
}

func (s *PrometheusSink) finishQuery(evt progress.Event, result string) {
	s.queriesCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.queryRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.markRunning(evt.RunID, false) {
		s.queriesRunning.Dec()
	}
}

// markRunning flips id's running state and reports whether it changed.
func (s *PrometheusSink) markRunning(id string, running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] == running {
		return false
	}
	if running {
		s.running[id] = true
	} else {
		delete(s.running, id)
	}
	return true
}

// Close implements progress.Sink.
func (*PrometheusSink) Close(context.Context) error {
	return nil
}
