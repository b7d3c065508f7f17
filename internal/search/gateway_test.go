package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalm/serp-forge/internal/hash/sha256"
	"github.com/vishalm/serp-forge/internal/policy/ratelimit"
	"github.com/vishalm/serp-forge/internal/policy/retry"
	"github.com/vishalm/serp-forge/internal/serp"
)

type noPause struct{}

func (noPause) Pause(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type countingLimiter struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLimiter) Acquire(context.Context) error {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return nil
}

type scriptedResponse struct {
	status int
	body   string
	err    error
}

type scriptedTransport struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	lastURL   string
	lastBody  []byte
	lastHdr   http.Header
}

func (s *scriptedTransport) Post(_ context.Context, url string, payload []byte, headers http.Header) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastURL, s.lastBody, s.lastHdr = url, payload, headers
	r := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	return r.status, []byte(r.body), r.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func newTestGateway(tr serp.SearchTransport, lim Acquirer, opts ...Option) *Gateway {
	policy := retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil).
		WithPauser(noPause{})
	return NewGateway(Config{BaseURL: "https://api.test/", APIKey: "secret"}, tr, lim, policy, nil, opts...)
}

func TestGateway_SearchBuildsPayload(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{{status: 200, body: `{"organic":[]}`}}}
	lim := &countingLimiter{}
	g := newTestGateway(tr, lim)

	raw, err := g.Search(context.Background(), "golang", serp.SearchNews, 5, Options{
		Country: "US", Language: "en", TimePeriod: "week", SafeSearch: true,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"organic":[]}`, string(raw))
	assert.Equal(t, "https://api.test/news", tr.lastURL)
	assert.Equal(t, "secret", tr.lastHdr.Get("X-API-KEY"))
	assert.Equal(t, 1, lim.calls)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(tr.lastBody, &sent))
	assert.Equal(t, "golang", sent["q"])
	assert.Equal(t, "news", sent["type"])
	assert.EqualValues(t, 5, sent["num"])
	assert.Equal(t, "us", sent["gl"])
	assert.Equal(t, "en", sent["hl"])
	assert.Equal(t, "qdr:w", sent["tbs"])
	assert.Equal(t, "active", sent["safe"])
}

func TestGateway_RetriesServerErrorsThenSucceeds(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{
		{status: 503, body: `{"message":"busy"}`},
		{status: 200, body: `{"organic":[]}`},
	}}
	lim := &countingLimiter{}
	g := newTestGateway(tr, lim)

	_, err := g.Search(context.Background(), "q", serp.SearchWeb, 10, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, tr.calls)
	assert.Equal(t, 2, lim.calls, "every attempt passes through the limiter")
}

func TestGateway_RateLimitedExhaustsRetries(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{{status: 429, body: `{"message":"Too many requests"}`}}}
	g := newTestGateway(tr, &countingLimiter{})

	_, err := g.Search(context.Background(), "q", serp.SearchWeb, 10, Options{})
	var upstream *serp.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 429, upstream.StatusCode)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "Too many requests")
	assert.Equal(t, 3, tr.calls)
}

func TestGateway_LimiterPastDeadlineIsNotRetried(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{{status: 200, body: `{"organic":[]}`}}}
	g := newTestGateway(tr, ratelimit.New(ratelimit.Config{MaxRequestsPerMinute: 1}))

	_, err := g.Search(context.Background(), "first", serp.SearchWeb, 10, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err = g.Search(ctx, "second", serp.SearchWeb, 10, Options{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, tr.calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGateway_ClientErrorIsNotRetried(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{{status: 403, body: "forbidden"}}}
	g := newTestGateway(tr, &countingLimiter{})

	_, err := g.Search(context.Background(), "q", serp.SearchWeb, 10, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, tr.calls)
	assert.Contains(t, err.Error(), "403 - forbidden")
}

func TestGateway_MalformedJSONIsUpstreamError(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{{status: 200, body: `{"organic": [`}}}
	g := newTestGateway(tr, &countingLimiter{})

	_, err := g.Search(context.Background(), "q", serp.SearchWeb, 10, Options{})
	var upstream *serp.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "invalid JSON response", upstream.Message)
}

func TestGateway_TransportErrorIsRetried(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{
		{err: errors.New("dial tcp: connection refused")},
		{status: 200, body: `{}`},
	}}
	g := newTestGateway(tr, &countingLimiter{})

	_, err := g.Search(context.Background(), "q", serp.SearchWeb, 10, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, tr.calls)
}

func TestGateway_CacheHitSkipsTransportAndLimiter(t *testing.T) {
	tr := &scriptedTransport{responses: []scriptedResponse{{status: 200, body: `{"organic":[]}`}}}
	lim := &countingLimiter{}
	g := newTestGateway(tr, lim, WithCache(&mapCache{data: map[string][]byte{}}, sha256.New()))

	for i := 0; i < 3; i++ {
		_, err := g.Search(context.Background(), "cached", serp.SearchWeb, 10, Options{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 1, lim.calls)
}

func TestHTTPTransport_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	hdr := http.Header{}
	hdr.Set("X-API-KEY", "k")
	status, body, err := NewHTTPTransport(time.Second).Post(context.Background(), srv.URL, []byte(`{}`), hdr)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, Options{Country: "gb", Language: "en-GB", TimePeriod: "d"}.Validate())

	err := Options{TimePeriod: "decade"}.Validate()
	var verr *serp.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "time_period", verr.Field)

	require.Error(t, Options{Country: "zzzz"}.Validate())
	require.Error(t, Options{Language: "not a tag"}.Validate())
}
