package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxKeywords      = 10
	minKeywordLength = 4
	summarySentences = 3
)

var lowerCaser = cases.Lower(language.Und)

// wordTokens splits text into lowercased runs of letters and digits.
func wordTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, f := range fields {
		fields[i] = lowerCaser.String(f)
	}
	return fields
}

// sentimentTokens is wordTokens but keeps apostrophes so contractions like "don't" survive.
func sentimentTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	for i, f := range fields {
		fields[i] = strings.ReplaceAll(lowerCaser.String(f), "’", "'")
	}
	return fields
}

// Keywords returns up to ten lowercased tokens longer than three runes,
// by descending frequency with ties broken by first occurrence.
func Keywords(text string) []string {
	type entry struct {
		word  string
		count int
	}
	index := make(map[string]*entry)
	var order []*entry
	for _, tok := range wordTokens(text) {
		if utf8.RuneCountInString(tok) < minKeywordLength {
			continue
		}
		if e, ok := index[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1}
		index[tok] = e
		order = append(order, e)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})

	n := min(maxKeywords, len(order))
	out := make([]string, 0, n)
	for _, e := range order[:n] {
		out = append(out, e.word)
	}
	return out
}

// DetectLanguage returns the ISO 639-1 code of text, or "" when detection is unreliable.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// Summary joins the first three period-delimited segments when content has more than three.
func Summary(content string) string {
	segments := strings.Split(content, ".")
	if len(segments) <= summarySentences {
		return ""
	}
	parts := make([]string, 0, summarySentences)
	for _, s := range segments[:summarySentences] {
		parts = append(parts, strings.TrimSpace(s))
	}
	return strings.Join(parts, ". ") + "."
}

// segmentCount is the number of period-delimited segments in content.
func segmentCount(content string) int {
	return len(strings.Split(content, "."))
}
