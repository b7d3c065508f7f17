// Package headless renders JavaScript-heavy pages with a headless browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/vishalm/serp-forge/internal/serp"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettle            = 500 * time.Millisecond
)

// Config controls the behavior of the headless renderer.
type Config struct {
	// MaxParallel caps open tabs; zero means unlimited.
	MaxParallel       int
	NavigationTimeout time.Duration
	// Settle is how long to wait after the body is ready for late scripts.
	Settle time.Duration
}

// Renderer loads pages in headless Chrome and returns the rendered DOM.
// One browser process is shared; each Render opens its own tab.
type Renderer struct {
	cfg         Config
	slots       *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a renderer backed by chromedp. Chrome itself starts
// lazily on the first Render.
func NewChromedp(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	r := &Renderer{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
	if cfg.MaxParallel > 0 {
		r.slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	return r, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to rawURL and returns the rendered DOM as the response body.
// ctx bounds both the wait for a free tab and the navigation itself.
func (r *Renderer) Render(ctx context.Context, rawURL string, headers http.Header) (serp.PageResponse, error) {
	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			return serp.PageResponse{}, fmt.Errorf("headless slot wait canceled: %w", err)
		}
		defer r.slots.Release(1)
	}

	tab, closeTab := chromedp.NewContext(r.allocator)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	tab, cancel := context.WithTimeout(tab, r.navTimeout())
	defer cancel()

	var doc documentResponse
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tab,
		prepareTab(headers),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return serp.PageResponse{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, finalURL := doc.result(rawURL, location)
	return serp.PageResponse{
		URL:        finalURL,
		StatusCode: status,
		Body:       []byte(html),
		Elapsed:    time.Since(start),
	}, nil
}

func (r *Renderer) navTimeout() time.Duration {
	if r.cfg.NavigationTimeout > 0 {
		return r.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// prepareTab carries the fetch layer's identity into the tab: the User-Agent
// goes through emulation, every other header rides on each request.
func prepareTab(headers http.Header) chromedp.Action {
	extra := headers.Clone()
	if extra == nil {
		extra = http.Header{}
	}
	userAgent := extra.Get("User-Agent")
	extra.Del("User-Agent")

	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(networkHeaders(extra)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}

// documentResponse remembers the main document's status, which chromedp
// does not return from Navigate.
type documentResponse struct {
	mu     sync.Mutex
	status int
	url    string
}

func (d *documentResponse) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
	d.mu.Unlock()
}

// result falls back to the tab location, then the requested URL, and assumes
// 200 when no document response was seen.
func (d *documentResponse) result(requested, location string) (int, string) {
	d.mu.Lock()
	status, url := d.status, d.url
	d.mu.Unlock()
	if url == "" {
		url = location
	}
	if url == "" {
		url = requested
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
