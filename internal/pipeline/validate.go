package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/index"
	"github.com/quill0/quill/internal/model"
)

const relevancyPrompt = `Rate how well the passage answers the question on a scale from 0.0
(unrelated) to 1.0 (directly answers it). Reply with the number only.

Question: %s

Passage:
%s

Rating:`

// ScoredChunk is a chunk that survived validation, with its final score.
type ScoredChunk struct {
	Chunk index.Chunk
	Score float64
}

// Validator scores each candidate chunk against the query and drops
// those below the relevancy threshold. Scores are cached per
// (query, chunk) pair, so the same chunk seen across different queries
// hits the cache independently of retrieval order.
type Validator struct {
	model     model.Generator
	cache     Cache
	threshold float64
	ttl       time.Duration
	logger    *slog.Logger
}

// NewValidator creates a Validator. cache may be nil.
func NewValidator(m model.Generator, c Cache, threshold float64, ttl time.Duration, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{model: m, cache: c, threshold: threshold, ttl: ttl, logger: logger}
}

// ValidateAll filters results to chunks scoring at or above the
// threshold. A scoring failure keeps the chunk with its retrieval
// similarity as the score: a transient model error must never silently
// strip all context.
func (v *Validator) ValidateAll(ctx context.Context, query string, results []index.Result) []ScoredChunk {
	var kept []ScoredChunk
	for _, res := range results {
		score, err := v.score(ctx, query, res.Chunk)
		if err != nil {
			v.logger.Warn("relevancy scoring degraded to similarity",
				"chunk", res.Chunk.ID, "error", err)
			kept = append(kept, ScoredChunk{Chunk: res.Chunk, Score: res.Similarity})
			continue
		}
		if score >= v.threshold {
			kept = append(kept, ScoredChunk{Chunk: res.Chunk, Score: score})
		}
	}
	return kept
}

// score returns the model's relevancy rating for one (query, chunk) pair.
func (v *Validator) score(ctx context.Context, query string, chunk index.Chunk) (float64, error) {
	key := cache.CompositeKey(query, chunk.ID)
	if v.cache != nil {
		var cached float64
		if v.cache.GetJSON(ctx, cache.NamespaceRelevancy, key, &cached) {
			return cached, nil
		}
	}

	out, err := v.model.Generate(ctx, fmt.Sprintf(relevancyPrompt, query, chunk.Content))
	if err != nil {
		return 0, err
	}
	score, err := parseScore(out)
	if err != nil {
		return 0, err
	}

	if v.cache != nil {
		v.cache.SetJSON(ctx, cache.NamespaceRelevancy, key, score, v.ttl)
	}
	return score, nil
}

// parseScore extracts a [0,1] float from model output, tolerating
// surrounding prose.
func parseScore(s string) (float64, error) {
	for _, field := range strings.Fields(strings.TrimSpace(s)) {
		field = strings.Trim(field, ".,:;")
		score, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}
		if score < 0 || score > 1 {
			return 0, fmt.Errorf("score %v out of range", score)
		}
		return score, nil
	}
	return 0, fmt.Errorf("no score in %q", truncateForLog(s))
}

func truncateForLog(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
