package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"

	"github.com/vishalm/serp-forge/internal/serp"
)

// Status is the tri-state result of one strategy.
type Status int

// Strategy outcomes.
const (
	StatusOK Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Outcome is what a strategy produced. Text is set only when Status is StatusOK.
type Outcome struct {
	Status Status
	Text   string
	Err    error
}

// Strategy turns raw HTML into article text.
type Strategy interface {
	Method() serp.Method
	Extract(html []byte, pageURL *url.URL) Outcome
}

// DefaultStrategies returns the fallback chain: trafilatura, readability, then DOM heuristics.
// minLength is the trimmed rune count the first two must exceed.
func DefaultStrategies(minLength int) []Strategy {
	return []Strategy{
		trafilaturaStrategy{minLength: minLength},
		readabilityStrategy{minLength: minLength},
		domStrategy{},
	}
}

func thresholdOutcome(text string, minLength int) Outcome {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) <= minLength {
		return Outcome{Status: StatusEmpty}
	}
	return Outcome{Status: StatusOK, Text: text}
}

type trafilaturaStrategy struct {
	minLength int
}

func (trafilaturaStrategy) Method() serp.Method { return serp.MethodTrafilatura }

func (s trafilaturaStrategy) Extract(html []byte, pageURL *url.URL) Outcome {
	result, err := trafilatura.Extract(bytes.NewReader(html), trafilatura.Options{
		OriginalURL:     pageURL,
		ExcludeComments: true,
	})
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("trafilatura: %w", err)}
	}
	if result == nil {
		return Outcome{Status: StatusEmpty}
	}
	return thresholdOutcome(result.ContentText, s.minLength)
}

type readabilityStrategy struct {
	minLength int
}

func (readabilityStrategy) Method() serp.Method { return serp.MethodReadability }

func (s readabilityStrategy) Extract(html []byte, pageURL *url.URL) Outcome {
	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("readability: %w", err)}
	}
	if article.Node == nil {
		return Outcome{Status: StatusEmpty}
	}
	return thresholdOutcome(spacedText(goquery.NewDocumentFromNode(article.Node).Selection), s.minLength)
}

// containerSelectors are tried in order before falling back to <body>.
var containerSelectors = []string{
	"main",
	"article",
	`[role="main"]`,
	".content",
	".post-content",
}

type domStrategy struct{}

func (domStrategy) Method() serp.Method { return serp.MethodDOM }

func (domStrategy) Extract(html []byte, _ *url.URL) Outcome {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("parse html: %w", err)}
	}
	doc.Find("script, style, noscript").Remove()

	selection := doc.Find("body")
	for _, sel := range containerSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			selection = found
			break
		}
	}
	text := spacedText(selection)
	if text == "" {
		return Outcome{Status: StatusEmpty}
	}
	return Outcome{Status: StatusOK, Text: text}
}

// spacedText joins the text nodes under sel with single spaces so minified
// markup like <p>a</p><p>b</p> yields "a b" rather than "ab".
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "#comment", "script", "style", "noscript", "template":
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}
