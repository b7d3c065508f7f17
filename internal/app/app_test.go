package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vishalm/serp-forge/internal/app"
	"github.com/vishalm/serp-forge/internal/batch"
	"github.com/vishalm/serp-forge/internal/config"
	"github.com/vishalm/serp-forge/internal/id/uuid"
	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/serp"
	"github.com/vishalm/serp-forge/internal/storage"
)

type stubSearch struct{ body string }

func (s stubSearch) Post(context.Context, string, []byte, http.Header) (int, []byte, error) {
	return http.StatusOK, []byte(s.body), nil
}

type stubPages struct{}

func (stubPages) Get(_ context.Context, url string, _ http.Header, _ string) (serp.PageResponse, error) {
	body := `<html><head><title>Page</title></head><body><main><p>` +
		strings.Repeat("Go makes concurrent programs simple to write and to read. ", 10) +
		`</p></main></body></html>`
	return serp.PageResponse{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func testConfig(dir string) config.Config {
	return config.Config{
		Serper:   config.SerperConfig{APIKey: "k", BaseURL: "https://search.test", Timeout: time.Second, MaxRequestsPerMinute: 0},
		Retry:    config.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Scraping: config.ScrapingConfig{MaxConcurrent: 2, RequestTimeout: time.Second, MaxResults: 10},
		Batch:    config.BatchConfig{MaxConcurrentQueries: 2},
		Proxy:    config.ProxyConfig{Rotation: config.RotationRandom},
		ContentExtraction: config.ContentExtractionConfig{
			KeywordExtraction: true,
			MinContentLength:  100,
			MaxContentLength:  5000,
		},
		Storage: config.StorageConfig{Backend: config.BackendLocal, LocalDir: dir, Prefix: "serp"},
		Server:  config.ServerConfig{Port: 8080},
	}
}

func TestNew_RunsQueryAndPersistsLocally(t *testing.T) {
	dir := t.TempDir()
	extra := &storage.MockSink{}
	extra.On("SaveQuery", mock.Anything, mock.Anything).Return(nil).Once()
	extra.On("SaveBatch", mock.Anything, mock.Anything).Return(nil).Once()

	a, err := app.New(context.Background(), testConfig(dir), nil,
		app.WithSearchTransport(stubSearch{body: `{"organic":[{"title":"A","link":"https://a.test/1","snippet":"s"}]}`}),
		app.WithPageTransport(stubPages{}),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithResultSink(extra),
	)
	require.NoError(t, err)

	res := a.Pipeline().Run(context.Background(), pipeline.Request{
		Query:          "golang",
		MaxResults:     5,
		IncludeContent: true,
	})
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.ScrapedSuccessfully)

	b := a.Batch().Run(context.Background(), batch.Request{})
	assert.Equal(t, "query list cannot be empty", b.ErrorMessage)

	require.NoError(t, a.Close(context.Background()))
	extra.AssertExpectations(t)

	day := res.Timestamp.UTC().Format("2006/01/02")
	_, err = os.Stat(filepath.Join(dir, "serp", "queries", day, res.RequestID+".json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "serp", "batches", day, b.BatchID+".json"))
	assert.NoError(t, err)
}

func TestNew_BatchUsesUUIDsAndSavesOnce(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage.Backend = config.BackendNone
	sink := &storage.MockSink{}
	sink.On("SaveBatch", mock.Anything, mock.Anything).Return(nil).Once()

	a, err := app.New(context.Background(), cfg, nil,
		app.WithSearchTransport(stubSearch{body: `{"organic":[{"title":"A","link":"https://a.test/1","snippet":"s"}]}`}),
		app.WithPageTransport(stubPages{}),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithResultSink(sink),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	b := a.Batch().Run(context.Background(), batch.Request{
		Queries:            []string{"golang", "rust", "zig"},
		MaxResultsPerQuery: 1,
		Concurrent:         true,
	})
	require.True(t, b.Success)
	assert.True(t, uuid.Valid(b.BatchID), b.BatchID)

	seen := map[string]bool{b.BatchID: true}
	for _, q := range b.ResultsByQuery.Keys() {
		qr, ok := b.ResultsByQuery.Get(q)
		require.True(t, ok)
		assert.True(t, uuid.Valid(qr.RequestID), qr.RequestID)
		assert.False(t, seen[qr.RequestID], "duplicate id %s", qr.RequestID)
		seen[qr.RequestID] = true
	}
	assert.Len(t, seen, 4)
	sink.AssertExpectations(t)
	sink.AssertNotCalled(t, "SaveQuery", mock.Anything, mock.Anything)
}

func TestNew_ServerServesSearch(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage.Backend = config.BackendNone
	cfg.Server.APIKey = "secret"

	a, err := app.New(context.Background(), cfg, nil,
		app.WithSearchTransport(stubSearch{body: `{"organic":[]}`}),
		app.WithPageTransport(stubPages{}),
		app.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"golang"}`))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total_results":0`)
}

func TestNew_TracingRecordsPipelineSpans(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage.Backend = config.BackendNone
	cfg.Telemetry = config.TelemetryConfig{TracingEnabled: true, ServiceName: "serpforge-test", SampleRatio: 1}
	recorder := tracetest.NewSpanRecorder()

	a, err := app.New(context.Background(), cfg, nil,
		app.WithSearchTransport(stubSearch{body: `{"organic":[]}`}),
		app.WithPageTransport(stubPages{}),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithSpanProcessor(recorder),
	)
	require.NoError(t, err)

	a.Pipeline().Run(context.Background(), pipeline.Request{Query: "golang", MaxResults: 3})
	require.NoError(t, a.Close(context.Background()))

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "pipeline.Run")
	assert.Contains(t, names, "search.Search")
}

func TestNew_StorageInitFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := testConfig(file)
	_, err := app.New(context.Background(), cfg, nil,
		app.WithSearchTransport(stubSearch{}),
		app.WithPageTransport(stubPages{}),
		app.WithRegisterer(prometheus.NewRegistry()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init local storage")
}

func TestNew_PostgresBadDSN(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage = config.StorageConfig{Backend: config.BackendPostgres, PostgresDSN: "::not a dsn::"}
	_, err := app.New(context.Background(), cfg, nil,
		app.WithSearchTransport(stubSearch{}),
		app.WithPageTransport(stubPages{}),
		app.WithRegisterer(prometheus.NewRegistry()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("init %s storage", config.BackendPostgres))
}
