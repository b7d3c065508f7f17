// Package serp holds the shared data model for search hits, extracted documents and query results.
package serp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SearchType selects the upstream search vertical.
type SearchType string

// Supported search verticals.
const (
	SearchWeb    SearchType = "web"
	SearchNews   SearchType = "news"
	SearchImages SearchType = "images"
	SearchVideos SearchType = "videos"
)

// Valid reports whether t is a known search vertical.
func (t SearchType) Valid() bool {
	switch t {
	case SearchWeb, SearchNews, SearchImages, SearchVideos:
		return true
	default:
		return false
	}
}

// FetchesContent reports whether hits of this type point at pages worth extracting.
func (t SearchType) FetchesContent() bool {
	return t == SearchWeb || t == SearchNews
}

// Method names the strategy that produced a document's content.
type Method string

// Extraction strategies in fallback order.
const (
	MethodTrafilatura Method = "trafilatura"
	MethodReadability Method = "readability"
	MethodDOM         Method = "dom"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SiteLink is a nested link listed under an organic hit.
type SiteLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchHit is one upstream result before its page is fetched.
type SearchHit struct {
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	Snippet      string     `json:"snippet"`
	Position     int        `json:"position"`
	SourceDomain string     `json:"source"`
	ImageURL     string     `json:"image_url,omitempty"`
	SiteLinks    []SiteLink `json:"site_links,omitempty"`
	Date         string     `json:"date,omitempty"`
}

// Image is an <img> reference found on a page.
type Image struct {
	Src   string `json:"src"`
	Alt   string `json:"alt"`
	Title string `json:"title"`
}

// Document is the extracted and analyzed content for one hit.
type Document struct {
	Title               string    `json:"title"`
	URL                 string    `json:"url"`
	SourceDomain        string    `json:"source"`
	Snippet             string    `json:"snippet"`
	Author              string    `json:"author,omitempty"`
	PublishDate         string    `json:"publish_date,omitempty"`
	LastModified        string    `json:"last_modified,omitempty"`
	Images              []Image   `json:"images"`
	FeaturedImage       string    `json:"featured_image,omitempty"`
	SentimentLabel      string    `json:"sentiment,omitempty"`
	SentimentScore      *float64  `json:"sentiment_score,omitempty"`
	Keywords            []string  `json:"keywords"`
	Summary             string    `json:"summary,omitempty"`
	Language            string    `json:"language,omitempty"`
	QualityScore        float64   `json:"quality_score"`
	ExtractionMethod    Method    `json:"extraction_method"`
	ConfidenceScore     float64   `json:"confidence_score"`
	ProxyUsed           string    `json:"proxy_used,omitempty"`
	UserAgent           string    `json:"user_agent,omitempty"`
	ResponseTimeSeconds float64   `json:"response_time,omitempty"`
	HTTPStatus          int       `json:"status_code,omitempty"`
	RawHTML             string    `json:"raw_html,omitempty"`
	ScrapedAt           time.Time `json:"scraped_at"`

	content            string
	wordCount          int
	readingTimeMinutes int
}

// NewDocument creates a document stamped with the creation time.
func NewDocument(url, title, source string, now time.Time) *Document {
	return &Document{
		URL:          url,
		Title:        title,
		SourceDomain: source,
		Images:       []Image{},
		Keywords:     []string{},
		ScrapedAt:    now,
	}
}

// SetContent replaces the content and recomputes the derived counters.
func (d *Document) SetContent(content string) {
	d.content = content
	d.wordCount = len(strings.Fields(content))
	d.readingTimeMinutes = max(1, d.wordCount/200)
}

// Content returns the cleaned document text.
func (d *Document) Content() string { return d.content }

// WordCount is the whitespace token count of Content.
func (d *Document) WordCount() int { return d.wordCount }

// ReadingTimeMinutes assumes 200 words per minute with a floor of one minute.
func (d *Document) ReadingTimeMinutes() int { return d.readingTimeMinutes }

type documentJSON struct {
	*documentAlias
	Content     string `json:"content"`
	WordCount   int    `json:"word_count"`
	ReadingTime int    `json:"reading_time_minutes"`
}

type documentAlias Document

// MarshalJSON includes the derived fields alongside the exported ones.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{
		documentAlias: (*documentAlias)(d),
		Content:       d.content,
		WordCount:     d.wordCount,
		ReadingTime:   d.readingTimeMinutes,
	})
}

// UnmarshalJSON restores a document and re-derives its counters from content.
func (d *Document) UnmarshalJSON(data []byte) error {
	aux := documentJSON{documentAlias: (*documentAlias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	d.SetContent(aux.Content)
	return nil
}

// QueryResult aggregates the outcome of one single-query pipeline run.
type QueryResult struct {
	RequestID            string      `json:"request_id"`
	Timestamp            time.Time   `json:"timestamp"`
	Success              bool        `json:"success"`
	Query                string      `json:"query"`
	SearchType           SearchType  `json:"search_type"`
	TotalResults         int         `json:"total_results"`
	ScrapedSuccessfully  int         `json:"scraped_successfully"`
	ExecutionTimeSeconds float64     `json:"execution_time"`
	Hits                 []SearchHit `json:"hits"`
	Documents            []*Document `json:"results"`
	FailedURLs           []string    `json:"failed_urls"`
	ErrorMessage         string      `json:"error_message,omitempty"`

	mu sync.Mutex
}

// NewQueryResult returns an empty result for query.
func NewQueryResult(requestID, query string, searchType SearchType, now time.Time) *QueryResult {
	return &QueryResult{
		RequestID:  requestID,
		Timestamp:  now,
		Query:      query,
		SearchType: searchType,
		Hits:       []SearchHit{},
		Documents:  []*Document{},
		FailedURLs: []string{},
	}
}

// AddDocument appends doc; safe for concurrent use.
func (r *QueryResult) AddDocument(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Documents = append(r.Documents, doc)
	r.ScrapedSuccessfully = len(r.Documents)
}

// AddFailure records a URL that could not be fetched or extracted; safe for concurrent use.
func (r *QueryResult) AddFailure(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailedURLs = append(r.FailedURLs, url)
}

// Fail marks the result failed with msg.
func (r *QueryResult) Fail(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Success = false
	r.ErrorMessage = msg
	r.TotalResults = 0
}

// BatchResult aggregates several independent query results.
type BatchResult struct {
	BatchID                   string         `json:"batch_id"`
	Timestamp                 time.Time      `json:"timestamp"`
	Success                   bool           `json:"success"`
	TotalQueries              int            `json:"total_queries"`
	SuccessfulQueries         int            `json:"successful_queries"`
	FailedQueries             int            `json:"failed_queries"`
	TotalExecutionTimeSeconds float64        `json:"total_execution_time"`
	ResultsByQuery            OrderedResults `json:"results"`
	TotalResults              int            `json:"total_results"`
	TotalScraped              int            `json:"total_scraped"`
	ErrorMessage              string         `json:"error_message,omitempty"`
}

// OrderedResults maps query to result while preserving insertion order.
type OrderedResults struct {
	keys   []string
	values map[string]*QueryResult
}

// Set stores res under query, keeping the first insertion position.
func (o *OrderedResults) Set(query string, res *QueryResult) {
	if o.values == nil {
		o.values = make(map[string]*QueryResult)
	}
	if _, ok := o.values[query]; !ok {
		o.keys = append(o.keys, query)
	}
	o.values[query] = res
}

// Get returns the result for query.
func (o *OrderedResults) Get(query string) (*QueryResult, bool) {
	res, ok := o.values[query]
	return res, ok
}

// Keys returns queries in insertion order.
func (o *OrderedResults) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len is the number of stored queries.
func (o *OrderedResults) Len() int { return len(o.keys) }

// MarshalJSON writes an object whose keys follow insertion order.
func (o OrderedResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("encode key: %w", err)
		}
		v, err := json.Marshal(o.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode result %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the key order found in data.
func (o *OrderedResults) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}
	*o = OrderedResults{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode results key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode results key: unexpected %T", tok)
		}
		var res QueryResult
		if err := dec.Decode(&res); err != nil {
			return fmt.Errorf("decode result %q: %w", key, err)
		}
		o.Set(key, &res)
	}
	return nil
}
