// Package extract turns raw HTML into clean, analyzed document text.
//
// Text comes from an ordered chain of strategies; the first that yields
// acceptable content wins. Metadata, lexical analysis and the quality score
// are computed independently of which strategy won.
package extract

import (
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/metrics"
	"github.com/vishalm/serp-forge/internal/serp"
)

// Config bounds content and toggles each analysis feature.
type Config struct {
	MinContentLength  int
	MaxContentLength  int
	SentimentAnalysis bool
	KeywordExtraction bool
	LanguageDetection bool
	AutoSummarization bool
}

// Result is the winning strategy's cleaned text.
type Result struct {
	Method serp.Method
	Text   string
}

// Engine runs the strategy chain and builds documents.
type Engine struct {
	cfg        Config
	strategies []Strategy
	logger     *zap.Logger
}

// New builds an engine with the default strategy chain.
func New(cfg Config, logger *zap.Logger) *Engine {
	return NewWithStrategies(cfg, DefaultStrategies(cfg.MinContentLength), logger)
}

// NewWithStrategies builds an engine over an explicit chain.
func NewWithStrategies(cfg Config, strategies []Strategy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, strategies: strategies, logger: logger}
}

// Extract runs the chain and returns the first accepted text, cleaned and truncated.
// ok is false when every strategy came back empty or failed.
func (e *Engine) Extract(html []byte, pageURL string) (Result, bool) {
	parsed, _ := url.Parse(pageURL)
	for _, s := range e.strategies {
		out := e.run(s, html, parsed)
		switch out.Status {
		case StatusOK:
			text := Clean(out.Text, e.cfg.MaxContentLength)
			if text == "" {
				continue
			}
			metrics.ObserveExtraction(string(s.Method()))
			return Result{Method: s.Method(), Text: text}, true
		case StatusFailed:
			e.logger.Debug("extraction strategy failed",
				zap.String("method", string(s.Method())),
				zap.String("url", pageURL),
				zap.Error(out.Err),
			)
		}
	}
	metrics.ObserveExtraction("")
	return Result{}, false
}

// run isolates a strategy so a panic counts as a failure.
func (e *Engine) run(s Strategy, html []byte, pageURL *url.URL) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.Extract(html, pageURL)
}

// Document extracts, analyzes and scores html. It returns serp.ErrNoContent
// when no strategy produced text.
func (e *Engine) Document(html []byte, pageURL string, now time.Time) (*serp.Document, error) {
	res, ok := e.Extract(html, pageURL)
	if !ok {
		return nil, serp.ErrNoContent
	}
	md := ExtractMetadata(html)

	doc := serp.NewDocument(pageURL, md.Title, serp.Domain(pageURL), now)
	doc.SetContent(res.Text)
	doc.Snippet = Snippet(res.Text)
	doc.Author = md.Author
	doc.PublishDate = md.PublishDate
	doc.LastModified = md.LastModified
	doc.Images = md.Images
	doc.FeaturedImage = md.FeaturedImage
	doc.ExtractionMethod = res.Method

	e.analyze(doc)

	doc.QualityScore = QualityScore(doc.Content(), md)
	doc.ConfidenceScore = doc.QualityScore
	return doc, nil
}

func (e *Engine) analyze(doc *serp.Document) {
	content := doc.Content()
	if e.cfg.SentimentAnalysis {
		polarity := Polarity(content)
		doc.SentimentScore = &polarity
		doc.SentimentLabel = SentimentLabel(polarity)
	}
	if e.cfg.KeywordExtraction {
		doc.Keywords = Keywords(content)
	}
	if e.cfg.LanguageDetection {
		doc.Language = DetectLanguage(content)
	}
	if e.cfg.AutoSummarization {
		doc.Summary = Summary(content)
	}
}
