package batch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Dedupe trims queries and drops blanks and repeats, keeping first-occurrence
// order. It also returns how many repeats were dropped.
func Dedupe(queries []string) ([]string, int) {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	dupes := 0
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			dupes++
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out, dupes
}

// ReadQueries reads one query per line, skipping blank lines and # comments.
func ReadQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return queries, nil
}
