package extract

import (
	"math"
	"unicode/utf8"
)

// QualityScore estimates how complete an extraction is. The result is in [0, 1].
func QualityScore(content string, md Metadata) float64 {
	score := 0.5

	switch n := utf8.RuneCountInString(content); {
	case n > 500:
		score += 0.2
	case n > 200:
		score += 0.1
	}
	if md.Title != "" {
		score += 0.1
	}
	if md.Author != "" {
		score += 0.1
	}
	if md.PublishDate != "" {
		score += 0.1
	}
	if segmentCount(content) > 5 {
		score += 0.1
	}

	return math.Max(0, math.Min(1, score))
}
