// Package antidetect shapes outbound page requests so they look like ordinary browser traffic.
package antidetect

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
)

// FallbackUserAgents is used when no user agent file is configured or readable.
var FallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-CA,en;q=0.9",
	"en-AU,en;q=0.9",
}

var referers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://www.yahoo.com/",
	"https://duckduckgo.com/",
}

// Accept-Encoding is left to the HTTP transport, which negotiates and decodes gzip itself.
var baseHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Cache-Control":             "max-age=0",
}

// HeaderConfig toggles randomization.
type HeaderConfig struct {
	RotateHeaders    bool
	RotateUserAgents bool
	UserAgents       []string
}

// HeaderBuilder produces browser-like request headers.
type HeaderBuilder struct {
	cfg        HeaderConfig
	userAgents []string
	pick       func(n int) int
}

// NewHeaderBuilder returns a builder over cfg.UserAgents, or the fallback pool when empty.
func NewHeaderBuilder(cfg HeaderConfig) *HeaderBuilder {
	pool := cfg.UserAgents
	if len(pool) == 0 {
		pool = FallbackUserAgents
	}
	return &HeaderBuilder{cfg: cfg, userAgents: pool, pick: rand.IntN}
}

// Build returns a fresh header set. With rotation disabled the first pool entries are used.
func (b *HeaderBuilder) Build() http.Header {
	h := make(http.Header, len(baseHeaders)+3)
	for k, v := range baseHeaders {
		h.Set(k, v)
	}
	ua := b.userAgents[0]
	if b.cfg.RotateUserAgents {
		ua = b.choose(b.userAgents)
	}
	h.Set("User-Agent", ua)

	if b.cfg.RotateHeaders {
		h.Set("Accept-Language", b.choose(acceptLanguages))
		h.Set("Referer", b.choose(referers))
	} else {
		h.Set("Accept-Language", acceptLanguages[0])
	}
	return h
}

func (b *HeaderBuilder) choose(pool []string) string {
	return pool[b.pick(len(pool))]
}

// LoadUserAgents reads one user agent per line, skipping blanks and # comments.
// A missing file yields an empty pool rather than an error.
func LoadUserAgents(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open user agents file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var agents []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		agents = append(agents, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read user agents file: %w", err)
	}
	return agents, nil
}
