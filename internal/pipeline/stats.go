package pipeline

import "sync/atomic"

// Stats collects pipeline counters. Safe for concurrent use.
type Stats struct {
	queries      atomic.Int64
	responseHits atomic.Int64
	factHits     atomic.Int64
	scopeRejects atomic.Int64
	fallbacks    atomic.Int64
	exhausted    atomic.Int64
	iterations   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Queries      int64 `json:"queries"`
	ResponseHits int64 `json:"response_cache_hits"`
	FactHits     int64 `json:"fact_hits"`
	ScopeRejects int64 `json:"scope_rejected"`
	Fallbacks    int64 `json:"fallbacks"`
	Exhausted    int64 `json:"retrieval_exhausted"`
	Iterations   int64 `json:"retrieval_iterations"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:      s.queries.Load(),
		ResponseHits: s.responseHits.Load(),
		FactHits:     s.factHits.Load(),
		ScopeRejects: s.scopeRejects.Load(),
		Fallbacks:    s.fallbacks.Load(),
		Exhausted:    s.exhausted.Load(),
		Iterations:   s.iterations.Load(),
	}
}
