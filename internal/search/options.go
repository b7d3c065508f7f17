// Package search talks to the upstream search API and turns its responses into hits.
package search

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/vishalm/serp-forge/internal/serp"
)

// Options are the optional knobs of one upstream search call.
// Zero values leave the corresponding field out of the payload.
type Options struct {
	// Country is a two-letter region code sent as gl, e.g. "us".
	Country string
	// Language is a BCP 47 tag sent as hl, e.g. "en".
	Language string
	// TimePeriod restricts results by age: hour, day, week, month or year.
	TimePeriod string
	SafeSearch bool
}

var timePeriods = map[string]string{
	"h": "qdr:h", "hour": "qdr:h",
	"d": "qdr:d", "day": "qdr:d",
	"w": "qdr:w", "week": "qdr:w",
	"m": "qdr:m", "month": "qdr:m",
	"y": "qdr:y", "year": "qdr:y",
}

// Validate checks country, language and time period values.
func (o Options) Validate() error {
	if o.Country != "" {
		if _, err := language.ParseRegion(o.Country); err != nil {
			return serp.NewValidationError("country", fmt.Sprintf("country %q is not a valid region code", o.Country))
		}
	}
	if o.Language != "" {
		if _, err := language.Parse(o.Language); err != nil {
			return serp.NewValidationError("language", fmt.Sprintf("language %q is not a valid language tag", o.Language))
		}
	}
	if o.TimePeriod != "" {
		if _, ok := timePeriods[strings.ToLower(o.TimePeriod)]; !ok {
			return serp.NewValidationError("time_period", "time_period must be one of hour, day, week, month, year")
		}
	}
	return nil
}

type payload struct {
	Query string `json:"q"`
	Type  string `json:"type"`
	Num   int    `json:"num,omitempty"`
	GL    string `json:"gl,omitempty"`
	HL    string `json:"hl,omitempty"`
	TBS   string `json:"tbs,omitempty"`
	Safe  string `json:"safe,omitempty"`
}

func buildPayload(query string, searchType serp.SearchType, num int, opts Options) payload {
	p := payload{
		Query: query,
		Type:  string(searchType),
		Num:   num,
		GL:    strings.ToLower(opts.Country),
		HL:    opts.Language,
		TBS:   timePeriods[strings.ToLower(opts.TimePeriod)],
	}
	if opts.SafeSearch {
		p.Safe = "active"
	}
	return p
}

// endpointPath maps a vertical to its upstream path.
func endpointPath(t serp.SearchType) string {
	switch t {
	case serp.SearchNews:
		return "/news"
	case serp.SearchImages:
		return "/images"
	case serp.SearchVideos:
		return "/videos"
	default:
		return "/search"
	}
}
