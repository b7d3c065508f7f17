package serp

import (
	"context"
	"net/http"
	"time"
)

// SearchTransport posts a JSON payload to the upstream search API.
type SearchTransport interface {
	Post(ctx context.Context, url string, payload []byte, headers http.Header) (status int, body []byte, err error)
}

// PageTransport performs a GET for one page, following redirects.
// proxy is empty when no proxy should be used.
type PageTransport interface {
	Get(ctx context.Context, url string, headers http.Header, proxy string) (PageResponse, error)
}

// PageResponse is the raw outcome of a page GET.
type PageResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request and batch identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// ResultSink persists finished results. Failures never change a result's outcome.
type ResultSink interface {
	SaveQuery(ctx context.Context, res *QueryResult) error
	SaveBatch(ctx context.Context, res *BatchResult) error
}

// Hasher derives stable keys for cache entries and stored objects.
type Hasher interface {
	Hash(data []byte) (string, error)
}
