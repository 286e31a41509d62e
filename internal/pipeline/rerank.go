package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/model"
)

const rerankPrompt = `Order the passages below from most to least useful for answering the
question. Reply with the passage numbers as a comma-separated list
(e.g. "3,1,2"). Include every number exactly once.

Question: %s

%s
Order:`

// Reranker reorders validated chunks with a cross-check model call and
// truncates to the final top-K. Results are cached per
// (query, set-of-chunk-ids); the key sorts the IDs, so the same set
// retrieved in any order hits the same entry.
type Reranker struct {
	model  model.Generator
	cache  Cache
	topK   int
	ttl    time.Duration
	logger *slog.Logger
}

// NewReranker creates a Reranker. cache may be nil.
func NewReranker(m model.Generator, c Cache, topK int, ttl time.Duration, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{model: m, cache: c, topK: topK, ttl: ttl, logger: logger}
}

// Rerank returns chunks in model-preferred order, at most topK of them.
// On any failure the identity ordering is kept; reranking improves
// precision but never gates the pipeline.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []ScoredChunk) []ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}
	if len(chunks) == 1 {
		return r.truncate(chunks)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.Chunk.ID
	}
	key := cache.RerankKey(query, ids)

	if r.cache != nil {
		var cachedIDs []string
		if r.cache.GetJSON(ctx, cache.NamespaceRerank, key, &cachedIDs) && len(cachedIDs) > 0 {
			if ordered, ok := reorderByID(chunks, cachedIDs); ok {
				return r.truncate(ordered)
			}
		}
	}

	ordered, err := r.rank(ctx, query, chunks)
	if err != nil {
		r.logger.Warn("reranking degraded to identity order", "error", err)
		return r.truncate(chunks)
	}

	if r.cache != nil {
		orderedIDs := make([]string, len(ordered))
		for i, c := range ordered {
			orderedIDs[i] = c.Chunk.ID
		}
		r.cache.SetJSON(ctx, cache.NamespaceRerank, key, orderedIDs, r.ttl)
	}
	return r.truncate(ordered)
}

func (r *Reranker) truncate(chunks []ScoredChunk) []ScoredChunk {
	if r.topK > 0 && len(chunks) > r.topK {
		return chunks[:r.topK]
	}
	return chunks
}

// rank asks the model for a permutation of the chunk indices.
func (r *Reranker) rank(ctx context.Context, query string, chunks []ScoredChunk) ([]ScoredChunk, error) {
	var passages strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&passages, "Passage %d:\n%s\n\n", i+1, c.Chunk.Content)
	}

	out, err := r.model.Generate(ctx, fmt.Sprintf(rerankPrompt, query, passages.String()))
	if err != nil {
		return nil, err
	}

	order, err := parseOrder(out, len(chunks))
	if err != nil {
		return nil, err
	}
	ordered := make([]ScoredChunk, len(order))
	for i, idx := range order {
		ordered[i] = chunks[idx]
	}
	return ordered, nil
}

// parseOrder parses a comma-separated 1-based permutation of n indices.
func parseOrder(s string, n int) ([]int, error) {
	s = strings.TrimSpace(firstLine(s))
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d indices, got %q", n, s)
	}
	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 1 || v > n || seen[v] {
			return nil, fmt.Errorf("invalid ordering %q", s)
		}
		seen[v] = true
		order = append(order, v-1)
	}
	return order, nil
}

// reorderByID applies a cached ID ordering to the current chunk set.
// Returns false when the cached ordering no longer matches the set.
func reorderByID(chunks []ScoredChunk, ids []string) ([]ScoredChunk, bool) {
	byID := make(map[string]ScoredChunk, len(chunks))
	for _, c := range chunks {
		byID[c.Chunk.ID] = c
	}
	if len(ids) != len(chunks) {
		return nil, false
	}
	ordered := make([]ScoredChunk, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, false
		}
		ordered = append(ordered, c)
	}
	return ordered, true
}
