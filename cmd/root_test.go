package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vishalm/serp-forge/internal/batch"
	"github.com/vishalm/serp-forge/internal/config"
	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/serp"
)

type fakeApp struct {
	cfg      config.Config
	queries  []pipeline.Request
	batches  []batch.Request
	queryRes *serp.QueryResult
	batchRes *serp.BatchResult
	closed   bool
}

func (f *fakeApp) Config() config.Config { return f.cfg }
func (f *fakeApp) Logger() *zap.Logger   { return zap.NewNop() }
func (f *fakeApp) Handler() http.Handler { return http.NotFoundHandler() }

func (f *fakeApp) RunQuery(_ context.Context, req pipeline.Request) *serp.QueryResult {
	f.queries = append(f.queries, req)
	return f.queryRes
}

func (f *fakeApp) RunBatch(_ context.Context, req batch.Request) *serp.BatchResult {
	f.batches = append(f.batches, req)
	return f.batchRes
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func baseConfig() config.Config {
	return config.Config{
		Serper:   config.SerperConfig{APIKey: "secret-key"},
		Scraping: config.ScrapingConfig{MaxResults: 8},
		Proxy:    config.ProxyConfig{Enabled: true},
	}
}

// withFakes swaps the config loader and app factory for the duration of t.
func withFakes(t *testing.T, fake *fakeApp, loadErr error) *int {
	t.Helper()
	origLoad, origNew := loadConfig, newApp
	t.Cleanup(func() { loadConfig, newApp = origLoad, origNew })

	built := 0
	loadConfig = func(string) (config.Config, error) {
		if loadErr != nil {
			return config.Config{}, loadErr
		}
		return fake.cfg, nil
	}
	newApp = func(context.Context, config.Config) (App, error) {
		built++
		return fake, nil
	}
	return &built
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSearchCommandBuildsRequest(t *testing.T) {
	res := serp.NewQueryResult("req-1", "golang", serp.SearchNews, time.Unix(0, 0).UTC())
	res.Success = true
	fake := &fakeApp{cfg: baseConfig(), queryRes: res}
	withFakes(t, fake, nil)

	saveTo := filepath.Join(t.TempDir(), "out.json")
	stdout, _, err := run(t, "news", "golang", "--no-content", "--country", "us",
		"--time-period", "week", "--save-to", saveTo)
	require.NoError(t, err)

	require.Len(t, fake.queries, 1)
	got := fake.queries[0]
	assert.Equal(t, serp.SearchNews, got.SearchType)
	assert.Equal(t, 8, got.MaxResults, "falls back to scraping.max_results")
	assert.False(t, got.IncludeContent)
	assert.True(t, got.UseProxyRotation)
	assert.Equal(t, "us", got.Options.Country)
	assert.Equal(t, "week", got.Options.TimePeriod)
	assert.Contains(t, stdout, `"request_id":"req-1"`)
	assert.True(t, fake.closed)

	saved, err := os.ReadFile(saveTo)
	require.NoError(t, err)
	assert.Equal(t, stdout, string(saved))
}

func TestSearchCommandFlagsOverrideConfig(t *testing.T) {
	res := serp.NewQueryResult("req-1", "golang", serp.SearchWeb, time.Now())
	res.Success = true
	fake := &fakeApp{cfg: baseConfig(), queryRes: res}
	withFakes(t, fake, nil)

	stdout, _, err := run(t, "search", "golang", "-n", "3", "--no-proxy", "--pretty")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.queries[0].MaxResults)
	assert.True(t, fake.queries[0].IncludeContent)
	assert.False(t, fake.queries[0].UseProxyRotation)
	assert.Contains(t, stdout, "\n  \"request_id\"")
}

func TestSearchCommandFailureExitsNonZero(t *testing.T) {
	res := serp.NewQueryResult("req-1", "", serp.SearchWeb, time.Now())
	res.Fail("query cannot be empty")
	fake := &fakeApp{cfg: baseConfig(), queryRes: res}
	withFakes(t, fake, nil)

	stdout, _, err := run(t, "search", " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query cannot be empty")
	assert.Contains(t, stdout, `"success":false`)
}

func TestSearchCommandWritesCSV(t *testing.T) {
	res := serp.NewQueryResult("req-1", "golang", serp.SearchWeb, time.Now())
	res.Success = true
	doc := serp.NewDocument("https://go.dev/blog", "Go, the blog", "go.dev", time.Now())
	doc.SetContent(strings.Repeat("é", 250))
	doc.Author = "Gopher"
	doc.PublishDate = "2025-01-02"
	res.AddDocument(doc)
	fake := &fakeApp{cfg: baseConfig(), queryRes: res}
	withFakes(t, fake, nil)

	saveTo := filepath.Join(t.TempDir(), "out.csv")
	stdout, _, err := run(t, "search", "golang", "--format", "csv", "--save-to", saveTo)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Query", "Title", "URL", "Source", "Content", "Author", "Publish Date"}, rows[0])
	assert.Equal(t, "golang", rows[1][0])
	assert.Equal(t, "Go, the blog", rows[1][1])
	assert.Equal(t, "https://go.dev/blog", rows[1][2])
	assert.Equal(t, "go.dev", rows[1][3])
	assert.Equal(t, strings.Repeat("é", 200)+"...", rows[1][4])
	assert.Equal(t, "Gopher", rows[1][5])
	assert.Equal(t, "2025-01-02", rows[1][6])

	saved, err := os.ReadFile(saveTo)
	require.NoError(t, err)
	assert.Equal(t, stdout, string(saved))
}

func TestBatchCommandWritesCSVInQueryOrder(t *testing.T) {
	b := &serp.BatchResult{BatchID: "b-1", Success: true, TotalQueries: 2, SuccessfulQueries: 2}
	for _, q := range []string{"rust", "golang"} {
		qr := serp.NewQueryResult("r-"+q, q, serp.SearchWeb, time.Now())
		qr.Success = true
		doc := serp.NewDocument("https://"+q+".test/", q+" title", q+".test", time.Now())
		doc.SetContent("short body")
		qr.AddDocument(doc)
		b.ResultsByQuery.Set(q, qr)
	}
	fake := &fakeApp{cfg: baseConfig(), batchRes: b}
	withFakes(t, fake, nil)

	file := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(file, []byte("rust\ngolang\n"), 0o600))

	stdout, _, err := run(t, "batch", file, "-f", "csv")
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "rust", rows[1][0])
	assert.Equal(t, "short body", rows[1][4])
	assert.Equal(t, "golang", rows[2][0])
}

func TestUnknownFormatIsRejectedBeforeRunning(t *testing.T) {
	fake := &fakeApp{cfg: baseConfig()}
	built := withFakes(t, fake, nil)

	_, _, err := run(t, "search", "golang", "--format", "xml")
	require.ErrorContains(t, err, `unknown format "xml"`)
	assert.Empty(t, fake.queries)
	assert.Equal(t, 0, *built)
}

func TestBatchCommandReadsFile(t *testing.T) {
	fake := &fakeApp{cfg: baseConfig(), batchRes: &serp.BatchResult{
		BatchID: "b-1", Success: true, TotalQueries: 2, SuccessfulQueries: 2,
	}}
	withFakes(t, fake, nil)

	file := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(file, []byte("# topics\ngolang\n\nrust\n"), 0o600))

	_, stderr, err := run(t, "batch", file, "--sequential", "--type", "news")
	require.NoError(t, err)
	require.Len(t, fake.batches, 1)
	got := fake.batches[0]
	assert.Equal(t, []string{"golang", "rust"}, got.Queries)
	assert.False(t, got.Concurrent)
	assert.Equal(t, serp.SearchNews, got.SearchType)
	assert.Equal(t, 8, got.MaxResultsPerQuery)
	assert.Contains(t, stderr, "2/2 queries succeeded")
}

func TestBatchCommandAllFailed(t *testing.T) {
	fake := &fakeApp{cfg: baseConfig(), batchRes: &serp.BatchResult{BatchID: "b", TotalQueries: 1, FailedQueries: 1}}
	withFakes(t, fake, nil)

	file := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(file, []byte("golang\n"), 0o600))

	_, _, err := run(t, "batch", file)
	require.ErrorContains(t, err, "no query succeeded")

	_, _, err = run(t, "batch", filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorContains(t, err, "open queries file")
}

func TestConfigCommandsSkipServices(t *testing.T) {
	fake := &fakeApp{cfg: baseConfig()}
	built := withFakes(t, fake, nil)

	stdout, _, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "api_key: secr******")
	assert.NotContains(t, stdout, "secret-key")

	stdout, _, err = run(t, "config", "validate")
	require.NoError(t, err)
	assert.Equal(t, "configuration is valid\n", stdout)
	assert.Equal(t, 0, *built)
}

func TestConfigShowSavesWithoutSecrets(t *testing.T) {
	cfg := baseConfig()
	cfg.Serper.MaxRequestsPerMinute = 30
	withFakes(t, &fakeApp{cfg: cfg}, nil)

	file := filepath.Join(t.TempDir(), "saved.yaml")
	stdout, stderr, err := run(t, "config", "show", "--save", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "api_key: secr******")
	assert.Contains(t, stderr, "configuration saved to "+file)

	saved, err := os.ReadFile(file)
	require.NoError(t, err)
	var settings map[string]any
	require.NoError(t, yaml.Unmarshal(saved, &settings))
	serper, ok := settings["serper"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "", serper["api_key"])
	assert.Equal(t, 30, serper["max_requests_per_minute"])
	assert.NotContains(t, string(saved), "secr")
}

func TestConfigValidateReportsErrors(t *testing.T) {
	withFakes(t, &fakeApp{}, errors.New("serper.api_key is required"))

	_, _, err := run(t, "config", "validate")
	require.ErrorContains(t, err, "serper.api_key is required")
}

func TestVersionNeedsNoConfig(t *testing.T) {
	withFakes(t, &fakeApp{}, errors.New("should not load"))

	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "serpforge dev"))
}

func TestListenPort(t *testing.T) {
	t.Setenv("PORT", "9090")
	assert.Equal(t, 9090, listenPort(8080))
	t.Setenv("PORT", "nope")
	assert.Equal(t, 8080, listenPort(8080))
}
