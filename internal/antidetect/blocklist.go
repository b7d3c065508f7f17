package antidetect

import (
	"strings"
	"sync"
)

// hostList matches hosts exactly or, for "*.example.com" and ".example.com"
// patterns, the domain and every subdomain of it.
type hostList struct {
	exact   map[string]bool
	domains map[string]bool
}

// newHostList returns nil when no usable pattern is given; a nil list matches nothing.
func newHostList(patterns []string) *hostList {
	l := &hostList{exact: map[string]bool{}, domains: map[string]bool{}}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		domain, wildcard := strings.CutPrefix(p, "*.")
		if !wildcard {
			domain, wildcard = strings.CutPrefix(p, ".")
		}
		switch {
		case wildcard && domain != "":
			l.domains[domain] = true
		case !wildcard && p != "":
			l.exact[p] = true
		}
	}
	if len(l.exact) == 0 && len(l.domains) == 0 {
		return nil
	}
	return l
}

// Contains walks host's parent domains, so "m.facebook.com" matches "*.facebook.com".
func (l *hostList) Contains(host string) bool {
	if l == nil {
		return false
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if l.exact[host] {
		return true
	}
	for d := host; d != ""; {
		if l.domains[d] {
			return true
		}
		_, parent, ok := strings.Cut(d, ".")
		if !ok {
			break
		}
		d = parent
	}
	return false
}

// hostStrikes blocks a host for the life of the process once it has answered
// 403 or 429 threshold times.
type hostStrikes struct {
	threshold int

	mu      sync.Mutex
	strikes map[string]int
}

// newHostStrikes returns nil when threshold is not positive, which disables tracking.
func newHostStrikes(threshold int) *hostStrikes {
	if threshold <= 0 {
		return nil
	}
	return &hostStrikes{threshold: threshold, strikes: map[string]int{}}
}

// Blocked reports whether host has reached the threshold.
func (s *hostStrikes) Blocked(host string) bool {
	if s == nil || host == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strikes[strings.ToLower(host)] >= s.threshold
}

// Strike records a refusal from host and reports whether it is now blocked.
func (s *hostStrikes) Strike(host string) bool {
	if s == nil || host == "" {
		return false
	}
	key := strings.ToLower(host)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strikes[key] < s.threshold {
		s.strikes[key]++
	}
	return s.strikes[key] >= s.threshold
}
