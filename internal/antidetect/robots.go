package antidetect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vishalm/serp-forge/internal/serp"
)

// RobotsPolicy decides whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL, userAgent string) bool
}

// NewRobotsPolicy returns an enforcing policy when respect is set, or one that allows everything.
func NewRobotsPolicy(respect bool, transport serp.PageTransport, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return allowAllPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsEnforcer{transport: transport, logger: logger, rules: map[string]*robotstxt.RobotsData{}}
}

// RobotsEnforcer fetches each origin's robots.txt once and tests paths against it.
// Concurrent lookups for the same origin share one fetch. An unreachable
// robots.txt allows access and is retried on the next lookup.
type RobotsEnforcer struct {
	transport serp.PageTransport
	logger    *zap.Logger

	mu    sync.RWMutex
	rules map[string]*robotstxt.RobotsData
	group singleflight.Group
}

// Allowed implements RobotsPolicy.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	rules, err := r.rulesFor(ctx, u, userAgent)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access", zap.String("host", u.Host), zap.Error(err))
		return true
	}
	return rules.TestAgent(u.EscapedPath(), userAgent)
}

func (r *RobotsEnforcer) rulesFor(ctx context.Context, u *url.URL, userAgent string) (*robotstxt.RobotsData, error) {
	origin := strings.ToLower(u.Scheme + "://" + u.Host)

	r.mu.RLock()
	rules, ok := r.rules[origin]
	r.mu.RUnlock()
	if ok {
		return rules, nil
	}

	v, err, _ := r.group.Do(origin, func() (any, error) {
		robotsURL := origin + "/robots.txt"
		headers := http.Header{}
		headers.Set("User-Agent", userAgent)
		resp, err := r.transport.Get(ctx, robotsURL, headers, "")
		if err != nil {
			return nil, fmt.Errorf("fetch robots: %w", err)
		}
		rules, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
		if err != nil {
			return nil, fmt.Errorf("parse robots: %w", err)
		}
		r.mu.Lock()
		r.rules[origin] = rules
		r.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string, string) bool { return true }
