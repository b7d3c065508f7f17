package antidetect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/metrics"
	"github.com/vishalm/serp-forge/internal/serp"
)

var (
	// ErrRobotsDisallowed marks a URL refused by robots.txt.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrHostBlocked marks a URL whose host is skipped by configuration or repeated refusals.
	ErrHostBlocked = errors.New("host blocked")
)

// Page is a fetched document plus the request shape that produced it.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	UserAgent  string
	Proxy      string
	Rendered   bool
}

// Renderer re-fetches a page in a browser; headless.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, rawURL string, headers http.Header) (serp.PageResponse, error)
}

// RenderDetector flags pages that are JavaScript shells; detector.Heuristic implements it.
type RenderDetector interface {
	ShouldRender(status int, body []byte) bool
}

// Fetcher composes delay, headers, proxy, robots and transport into one page fetch.
type Fetcher struct {
	transport serp.PageTransport
	headers   *HeaderBuilder
	proxies   *ProxySelector
	delayer   *Delayer
	robots    RobotsPolicy
	renderer  Renderer
	detector  RenderDetector
	skip      *hostList
	forbidden *hostStrikes
	logger    *zap.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithRenderer enables the headless fallback for pages the detector flags.
func WithRenderer(r Renderer, d RenderDetector) FetcherOption {
	return func(f *Fetcher) {
		f.renderer = r
		f.detector = d
	}
}

// WithRobots sets the robots.txt policy. The default allows everything.
func WithRobots(p RobotsPolicy) FetcherOption {
	return func(f *Fetcher) { f.robots = p }
}

// WithSkipDomains refuses hosts matching the patterns without a request.
func WithSkipDomains(patterns []string) FetcherOption {
	return func(f *Fetcher) { f.skip = newHostList(patterns) }
}

// WithForbiddenThreshold blocks a host after n 403/429 responses.
func WithForbiddenThreshold(n int) FetcherOption {
	return func(f *Fetcher) { f.forbidden = newHostStrikes(n) }
}

// NewFetcher wires a Fetcher. A nil delayer or proxy selector disables that step.
func NewFetcher(
	transport serp.PageTransport,
	headers *HeaderBuilder,
	proxies *ProxySelector,
	delayer *Delayer,
	logger *zap.Logger,
	opts ...FetcherOption,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if headers == nil {
		headers = NewHeaderBuilder(HeaderConfig{})
	}
	f := &Fetcher{
		transport: transport,
		headers:   headers,
		proxies:   proxies,
		delayer:   delayer,
		robots:    allowAllPolicy{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL. Any failure, including a non-2xx status, is a *serp.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, useProxy bool) (Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, &serp.FetchError{URL: rawURL, Err: err}
	}
	host := parsed.Hostname()
	if f.skip.Contains(host) || f.forbidden.Blocked(host) {
		metrics.ObserveFetch(rawURL, "blocked", 0)
		return Page{}, &serp.FetchError{URL: rawURL, Err: ErrHostBlocked}
	}

	if err := f.delayer.Wait(ctx); err != nil {
		return Page{}, &serp.FetchError{URL: rawURL, Err: err}
	}

	headers := f.headers.Build()
	page := Page{UserAgent: headers.Get("User-Agent")}
	if useProxy {
		page.Proxy, _ = f.proxies.Select()
	}

	if !f.robots.Allowed(ctx, rawURL, page.UserAgent) {
		metrics.ObserveFetch(rawURL, "robots", 0)
		return Page{}, &serp.FetchError{URL: rawURL, Err: ErrRobotsDisallowed}
	}

	resp, err := f.transport.Get(ctx, rawURL, headers, page.Proxy)
	if err != nil {
		metrics.ObserveFetch(rawURL, "error", 0)
		return Page{}, &serp.FetchError{URL: rawURL, Err: err}
	}
	page.URL = resp.URL
	if page.URL == "" {
		page.URL = rawURL
	}
	page.StatusCode = resp.StatusCode
	page.Body = resp.Body
	page.Elapsed = resp.Elapsed

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveFetch(rawURL, statusOutcome(resp.StatusCode), len(resp.Body))
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			if f.forbidden.Strike(host) {
				f.logger.Warn("host blocked after repeated refusals", zap.String("host", host))
			}
		}
		return Page{}, &serp.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	f.maybeRender(ctx, rawURL, headers, &page)
	metrics.ObserveFetch(rawURL, "ok", len(page.Body))
	return page, nil
}

// maybeRender swaps in the browser-rendered DOM when the page looks like a JS shell.
// A failed render keeps the original body.
func (f *Fetcher) maybeRender(ctx context.Context, rawURL string, headers http.Header, page *Page) {
	if f.renderer == nil || f.detector == nil || !f.detector.ShouldRender(page.StatusCode, page.Body) {
		return
	}
	rendered, err := f.renderer.Render(ctx, rawURL, headers)
	if err != nil {
		f.logger.Warn("headless render failed; keeping raw page", zap.String("url", rawURL), zap.Error(err))
		return
	}
	page.Body = rendered.Body
	page.Elapsed += rendered.Elapsed
	page.Rendered = true
	if rendered.URL != "" {
		page.URL = rendered.URL
	}
}

func statusOutcome(code int) string {
	return fmt.Sprintf("status_%dxx", code/100)
}
