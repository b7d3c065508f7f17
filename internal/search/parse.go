package search

import (
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/serp"
)

// section describes where an upstream result list lives and which field names its source.
type section struct {
	name      string
	sourceKey string
}

var sections = []section{
	{name: "organic", sourceKey: "displayLink"},
	{name: "news", sourceKey: "source"},
	{name: "images", sourceKey: "source"},
	{name: "videos", sourceKey: "source"},
}

// ParseResults merges every result section into one position-ordered list.
// Organic hits come first; later sections continue the position sequence.
// Entries without a title or an absolute link are skipped.
func ParseResults(raw RawResponse, logger *zap.Logger) []serp.SearchHit {
	if logger == nil {
		logger = zap.NewNop()
	}
	hits := make([]serp.SearchHit, 0)
	doc := gjson.ParseBytes(raw)

	for _, sec := range sections {
		entries := doc.Get(sec.name)
		if !entries.IsArray() {
			continue
		}
		for i, entry := range entries.Array() {
			hit, ok := parseEntry(entry, sec)
			if !ok {
				logger.Warn("skipping malformed search result",
					zap.String("section", sec.name),
					zap.Int("index", i),
				)
				continue
			}
			hit.Position = len(hits) + 1
			hits = append(hits, hit)
		}
	}

	logger.Info("parsed search results", zap.Int("count", len(hits)))
	return hits
}

func parseEntry(entry gjson.Result, sec section) (serp.SearchHit, bool) {
	if !entry.IsObject() {
		return serp.SearchHit{}, false
	}
	title := entry.Get("title").String()
	link, err := serp.NormalizeURL(entry.Get("link").String())
	if title == "" || err != nil {
		return serp.SearchHit{}, false
	}

	source := entry.Get(sec.sourceKey).String()
	if source == "" {
		source = serp.Domain(link)
	}
	hit := serp.SearchHit{
		Title:        title,
		URL:          link,
		Snippet:      entry.Get("snippet").String(),
		SourceDomain: source,
		ImageURL:     entry.Get("imageUrl").String(),
		Date:         entry.Get("date").String(),
	}
	entry.Get("sitelinks").ForEach(func(_, sl gjson.Result) bool {
		if t, l := sl.Get("title").String(), sl.Get("link").String(); t != "" && l != "" {
			hit.SiteLinks = append(hit.SiteLinks, serp.SiteLink{Title: t, URL: l})
		}
		return true
	})
	return hit, true
}
