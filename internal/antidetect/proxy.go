package antidetect

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// ProxyConfig lists proxy pools. Residential entries are preferred over datacenter ones.
type ProxyConfig struct {
	Enabled     bool
	RoundRobin  bool
	Residential []string
	Datacenter  []string
}

// ProxySelector picks a proxy per fetch.
type ProxySelector struct {
	pool       []string
	roundRobin bool
	pick       func(n int) int

	mu   sync.Mutex
	next int
}

// NewProxySelector builds a selector; it selects nothing when disabled or both pools are empty.
func NewProxySelector(cfg ProxyConfig) *ProxySelector {
	s := &ProxySelector{roundRobin: cfg.RoundRobin, pick: rand.IntN}
	if !cfg.Enabled {
		return s
	}
	source := cfg.Residential
	if len(source) == 0 {
		source = cfg.Datacenter
	}
	for _, p := range source {
		if p = strings.TrimSpace(p); p != "" {
			s.pool = append(s.pool, normalizeProxy(p))
		}
	}
	return s
}

// Select returns a proxy URL and true, or "" and false when proxying is off.
func (s *ProxySelector) Select() (string, bool) {
	if s == nil || len(s.pool) == 0 {
		return "", false
	}
	if !s.roundRobin {
		return s.pool[s.pick(len(s.pool))], true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool[s.next%len(s.pool)]
	s.next++
	return p, true
}

// Size is the number of usable proxies.
func (s *ProxySelector) Size() int {
	if s == nil {
		return 0
	}
	return len(s.pool)
}

func normalizeProxy(p string) string {
	if strings.Contains(p, "://") {
		return p
	}
	return "http://" + p
}
