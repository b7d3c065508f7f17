// Package collyfetcher implements serp.PageTransport using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vishalm/serp-forge/internal/serp"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	// MaxBodySize caps downloaded bytes; zero keeps colly's default.
	MaxBodySize int
}

// Transport performs page GETs with a fresh collector per request so headers
// and proxies never leak between pages. The underlying http.Transport is
// shared per proxy to keep connections warm.
type Transport struct {
	cfg Config

	mu      sync.Mutex
	byProxy map[string]*http.Transport
}

// New builds a Transport.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Transport{cfg: cfg, byProxy: map[string]*http.Transport{}}
}

// Get fetches rawURL with headers, optionally through proxy. Redirects are followed.
// Any HTTP status is returned as a response; only transport failures are errors.
func (t *Transport) Get(ctx context.Context, rawURL string, headers http.Header, proxy string) (serp.PageResponse, error) {
	base, err := t.transport(proxy)
	if err != nil {
		return serp.PageResponse{}, err
	}

	c := colly.NewCollector()
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	if t.cfg.MaxBodySize > 0 {
		c.MaxBodySize = t.cfg.MaxBodySize
	}
	c.SetRequestTimeout(t.cfg.Timeout)
	c.WithTransport(boundTransport{ctx: ctx, next: otelhttp.NewTransport(base)})

	v := &visit{headers: headers, start: time.Now()}
	c.OnRequest(v.onRequest)
	c.OnResponse(v.onResponse)
	c.OnError(v.onError)

	done := make(chan error, 1)
	go func() { done <- c.Visit(rawURL) }()

	select {
	case <-ctx.Done():
		return serp.PageResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return serp.PageResponse{}, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if v.err != nil {
		return serp.PageResponse{}, fmt.Errorf("colly response failed: %w", v.err)
	}
	return v.page, nil
}

// visit collects one page's outcome from collector callbacks.
type visit struct {
	headers http.Header
	start   time.Time
	page    serp.PageResponse
	err     error
}

// onRequest replaces collector defaults such as User-Agent with the caller's headers.
func (v *visit) onRequest(r *colly.Request) {
	for key, values := range v.headers {
		r.Headers.Del(key)
		for _, val := range values {
			r.Headers.Add(key, val)
		}
	}
}

func (v *visit) onResponse(r *colly.Response) {
	v.page = serp.PageResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Elapsed:    time.Since(v.start),
	}
}

func (v *visit) onError(_ *colly.Response, err error) {
	v.err = err
}

func (t *Transport) transport(proxy string) (*http.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.byProxy[proxy]; ok {
		return tr, nil
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	t.byProxy[proxy] = tr
	return tr, nil
}

// Close drops idle connections held by every cached transport.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.byProxy {
		tr.CloseIdleConnections()
	}
}

// boundTransport ties every outbound request, redirects included, to the caller's context.
type boundTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (b boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := b.next.RoundTrip(req.WithContext(b.ctx))
	if err != nil {
		return nil, fmt.Errorf("page roundtrip: %w", err)
	}
	return resp, nil
}
