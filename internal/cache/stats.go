package cache

import "sync"

// NamespaceStats holds counters for a single namespace.
type NamespaceStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits / (hits + misses), or 0 when there were no lookups.
func (n NamespaceStats) HitRate() float64 {
	total := n.Hits + n.Misses
	if total == 0 {
		return 0
	}
	return float64(n.Hits) / float64(total)
}

// Stats collects per-namespace hit/miss counters.
// Safe for concurrent use.
type Stats struct {
	mu   sync.Mutex
	byNS map[string]*NamespaceStats
}

func newStats() *Stats {
	return &Stats{byNS: make(map[string]*NamespaceStats)}
}

func (s *Stats) get(ns string) *NamespaceStats {
	st, ok := s.byNS[ns]
	if !ok {
		st = &NamespaceStats{}
		s.byNS[ns] = st
	}
	return st
}

func (s *Stats) recordHit(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(ns).Hits++
}

func (s *Stats) recordMiss(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(ns).Misses++
}

func (s *Stats) recordSet(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(ns).Sets++
}

func (s *Stats) recordError(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(ns).Errors++
}

// Snapshot returns a copy of the current counters keyed by namespace.
func (s *Stats) Snapshot() map[string]NamespaceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]NamespaceStats, len(s.byNS))
	for ns, st := range s.byNS {
		out[ns] = *st
	}
	return out
}
