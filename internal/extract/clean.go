package extract

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Clean collapses whitespace runs to single spaces and truncates to maxLength runes,
// appending an ellipsis when text was cut. A non-positive maxLength disables truncation.
// Word counts are taken after Clean, so the ellipsis joins the last word rather than adding one.
func Clean(text string, maxLength int) string {
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, maxLength)
}

// Snippet is the first 200 runes of content, with an ellipsis when longer.
func Snippet(content string) string {
	return truncate(content, 200)
}

func truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:n]), " ") + ellipsis
}
