package extract

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalm/serp-forge/internal/serp"
)

type stubStrategy struct {
	method serp.Method
	out    Outcome
	panics bool
	calls  int
}

func (s *stubStrategy) Method() serp.Method { return s.method }

func (s *stubStrategy) Extract([]byte, *url.URL) Outcome {
	s.calls++
	if s.panics {
		panic("strategy blew up")
	}
	return s.out
}

const articleHTML = `<html>
<head>
  <title>Go Concurrency Patterns</title>
  <meta name="description" content="A tour of pipelines">
  <meta name="author" content="Jane Gopher">
  <meta property="article:published_time" content="2025-01-02T10:00:00Z">
  <meta property="article:modified_time" content="2025-01-03T10:00:00Z">
  <meta property="og:image" content="https://example.com/cover.png">
  <script>window.tracking = true;</script>
</head>
<body>
  <nav>Home About</nav>
  <main>
    <h1>Go Concurrency Patterns</h1>
    <p>Pipelines are great. Channels connect stages. Goroutines run each stage.
       Errgroup bounds the fan-out. Contexts cancel work. Results are excellent.</p>
    <img src="/diagram.png" alt="diagram" title="Pipeline">
    <img alt="no source">
  </main>
  <style>.x{}</style>
</body>
</html>`

func TestEngine_FirstAcceptedStrategyWins(t *testing.T) {
	first := &stubStrategy{method: serp.MethodTrafilatura, out: Outcome{Status: StatusEmpty}}
	second := &stubStrategy{method: serp.MethodReadability, panics: true}
	third := &stubStrategy{method: serp.MethodDOM, out: Outcome{Status: StatusOK, Text: "  dom   text\n here "}}
	never := &stubStrategy{method: "unused", out: Outcome{Status: StatusOK, Text: "x"}}

	e := NewWithStrategies(Config{MaxContentLength: 100}, []Strategy{first, second, third, never}, nil)
	res, ok := e.Extract([]byte("<html></html>"), "https://example.com")
	require.True(t, ok)
	assert.Equal(t, serp.MethodDOM, res.Method)
	assert.Equal(t, "dom text here", res.Text)
	assert.Equal(t, 1, second.calls, "panicking strategy counts as failed")
	assert.Equal(t, 0, never.calls)
}

func TestEngine_AllStrategiesEmptyIsNoContent(t *testing.T) {
	failing := &stubStrategy{method: serp.MethodTrafilatura, out: Outcome{Status: StatusFailed, Err: errors.New("bad")}}
	empty := &stubStrategy{method: serp.MethodDOM, out: Outcome{Status: StatusEmpty}}
	e := NewWithStrategies(Config{}, []Strategy{failing, empty}, nil)

	_, ok := e.Extract([]byte(""), "https://example.com")
	assert.False(t, ok)

	doc, err := e.Document([]byte(""), "https://example.com", time.Now())
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, serp.ErrNoContent)
}

func TestDOMStrategy_PrefersMainAndStripsScripts(t *testing.T) {
	out := domStrategy{}.Extract([]byte(articleHTML), nil)
	require.Equal(t, StatusOK, out.Status)
	assert.Contains(t, out.Text, "Pipelines are great")
	assert.NotContains(t, out.Text, "Home About")
	assert.NotContains(t, out.Text, "tracking")
}

func TestDOMStrategy_FallsBackToBody(t *testing.T) {
	out := domStrategy{}.Extract([]byte(`<html><body><div>Just body text</div><script>x()</script></body></html>`), nil)
	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, "Just body text", strings.TrimSpace(out.Text))

	empty := domStrategy{}.Extract([]byte(`<html><body><script>only()</script></body></html>`), nil)
	assert.Equal(t, StatusEmpty, empty.Status)
}

const minifiedHTML = `<html><head><title>Minified</title></head><body><main><h1>Title</h1>` +
	`<p>First paragraph.</p><ul><li>Alpha</li><li>Beta</li></ul><!-- note --></main></body></html>`

func TestDOMStrategy_SeparatesAdjacentBlocks(t *testing.T) {
	out := domStrategy{}.Extract([]byte(minifiedHTML), nil)
	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, "Title First paragraph. Alpha Beta", out.Text)
}

func TestReadabilityStrategy_SeparatesAdjacentBlocks(t *testing.T) {
	para := strings.Repeat("Readers follow the long argument about pipelines and stages carefully, ", 6)
	page := `<html><head><title>Minified</title></head><body><article>` +
		`<p>` + para + `and the story starts here.</p>` +
		`<p>Second paragraph continues ` + para + `until the end.</p>` +
		`</article></body></html>`
	u, err := url.Parse("https://example.com/post")
	require.NoError(t, err)

	out := readabilityStrategy{}.Extract([]byte(page), u)
	require.Equal(t, StatusOK, out.Status)
	assert.Contains(t, out.Text, "starts here. Second paragraph")
	assert.NotContains(t, out.Text, "here.Second")
}

func TestEngine_MinifiedMarkupCountsWords(t *testing.T) {
	e := NewWithStrategies(Config{MaxContentLength: 5000, KeywordExtraction: true}, []Strategy{domStrategy{}}, nil)
	doc, err := e.Document([]byte(minifiedHTML), "https://example.com/post", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "Title First paragraph. Alpha Beta", doc.Content())
	assert.Equal(t, 5, doc.WordCount())
	assert.Contains(t, doc.Keywords, "alpha")
	assert.Contains(t, doc.Keywords, "beta")
	assert.NotContains(t, doc.Keywords, "alphabeta")
	assert.NotContains(t, doc.Keywords, "titlefirst")
}

func TestThresholdOutcome(t *testing.T) {
	assert.Equal(t, StatusEmpty, thresholdOutcome(strings.Repeat("a", 100), 100).Status)
	assert.Equal(t, StatusOK, thresholdOutcome(strings.Repeat("a", 101), 100).Status)
	assert.Equal(t, StatusEmpty, thresholdOutcome("   ", 0).Status)
}

func TestEngine_DocumentPopulatesEverything(t *testing.T) {
	e := NewWithStrategies(Config{
		MaxContentLength:  5000,
		SentimentAnalysis: true,
		KeywordExtraction: true,
		LanguageDetection: true,
		AutoSummarization: true,
	}, []Strategy{domStrategy{}}, nil)
	now := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

	doc, err := e.Document([]byte(articleHTML), "https://www.example.com/post", now)
	require.NoError(t, err)

	assert.Equal(t, "Go Concurrency Patterns", doc.Title)
	assert.Equal(t, "example.com", doc.SourceDomain)
	assert.Equal(t, "Jane Gopher", doc.Author)
	assert.Equal(t, "2025-01-02T10:00:00Z", doc.PublishDate)
	assert.Equal(t, "2025-01-03T10:00:00Z", doc.LastModified)
	assert.Equal(t, "https://example.com/cover.png", doc.FeaturedImage)
	require.Len(t, doc.Images, 1)
	assert.Equal(t, serp.Image{Src: "/diagram.png", Alt: "diagram", Title: "Pipeline"}, doc.Images[0])
	assert.Equal(t, serp.MethodDOM, doc.ExtractionMethod)
	assert.Equal(t, now, doc.ScrapedAt)

	assert.Equal(t, len(strings.Fields(doc.Content())), doc.WordCount())
	assert.Equal(t, 1, doc.ReadingTimeMinutes())
	require.NotNil(t, doc.SentimentScore)
	assert.Equal(t, serp.SentimentPositive, doc.SentimentLabel)
	assert.NotEmpty(t, doc.Keywords)
	assert.NotEmpty(t, doc.Summary)
	assert.Equal(t, doc.QualityScore, doc.ConfidenceScore)
	assert.GreaterOrEqual(t, doc.QualityScore, 0.8)
}

func TestEngine_DocumentRespectsToggles(t *testing.T) {
	e := NewWithStrategies(Config{MaxContentLength: 5000}, []Strategy{domStrategy{}}, nil)
	doc, err := e.Document([]byte(articleHTML), "https://example.com/post", time.Now())
	require.NoError(t, err)
	assert.Nil(t, doc.SentimentScore)
	assert.Empty(t, doc.SentimentLabel)
	assert.Empty(t, doc.Keywords)
	assert.Empty(t, doc.Summary)
	assert.Empty(t, doc.Language)
}

func TestEngine_WordCountAfterTruncation(t *testing.T) {
	long := strings.Repeat("word ", 500)
	e := NewWithStrategies(Config{MaxContentLength: 50}, []Strategy{
		&stubStrategy{method: serp.MethodTrafilatura, out: Outcome{Status: StatusOK, Text: long}},
	}, nil)

	doc, err := e.Document([]byte("<html></html>"), "https://example.com", time.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(doc.Content(), "..."))
	assert.Equal(t, 52, len(doc.Content()))
	assert.Equal(t, len(strings.Fields(doc.Content())), doc.WordCount())
	assert.Equal(t, 10, doc.WordCount())
}

func TestEngine_DefaultChainExtractsArticle(t *testing.T) {
	e := New(Config{MinContentLength: 100, MaxContentLength: 50000}, nil)
	res, ok := e.Extract([]byte(articleHTML), "https://example.com/post")
	require.True(t, ok)
	assert.Contains(t, res.Text, "Channels connect stages")
}
