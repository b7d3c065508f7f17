// Package detector decides when a fetched page is a JavaScript shell worth rendering headlessly.
package detector

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultBodyLengthThreshold = 2048
	defaultMinVisibleText      = 200
	scriptSharePercent         = 25
)

// spaMountPoints selects the root elements common client-side frameworks render into.
const spaMountPoints = "#__next, #root, #app, [data-reactroot], [ng-app], [ng-version]"

// Heuristic promotes pages to headless rendering with a few DOM rules.
type Heuristic struct {
	// BodyLengthThreshold bounds the raw size under which script-heavy pages are promoted.
	BodyLengthThreshold int
	// MinVisibleText is the visible character count below which framework shells are promoted.
	MinVisibleText int
}

// NewHeuristic returns a detector; a zero threshold selects 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = defaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, MinVisibleText: defaultMinVisibleText}
}

// ShouldRender reports whether a 200 response needs a headless re-fetch.
func (h *Heuristic) ShouldRender(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	if len(body) < h.BodyLengthThreshold && scriptShare(doc, len(body)) >= scriptSharePercent {
		return true
	}
	if doc.Find(spaMountPoints).Length() == 0 {
		return false
	}
	return visibleText(doc) < h.MinVisibleText
}

// scriptShare is the percentage of the raw body taken by script elements.
func scriptShare(doc *goquery.Document, total int) int {
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			covered += len(html)
		}
	})
	return covered * 100 / total
}

// visibleText counts body runes outside non-rendered elements. It mutates doc.
func visibleText(doc *goquery.Document) int {
	doc.Find("script, style, noscript, template").Remove()
	return utf8.RuneCountInString(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
}
