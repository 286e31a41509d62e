package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/index"
	"github.com/quill0/quill/internal/model"
)

// State is the retriever's position in its retrieval loop. The set is
// closed; every query terminates in StateAccepted or StateExhausted.
type State int

const (
	StateInitial State = iota
	StateRetrieved
	StateAccepted
	StateRetry
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRetrieved:
		return "retrieved"
	case StateAccepted:
		return "accepted"
	case StateRetry:
		return "retry"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Searcher is the read side of the vector index.
type Searcher interface {
	Search(query []float32, opts ...index.SearchOption) ([]index.Result, error)
}

// Retrieval is the outcome of one retrieval run.
type Retrieval struct {
	Query      string // final (possibly re-transformed) search query
	Results    []index.Result
	State      State // StateAccepted or StateExhausted
	Iterations int   // number of broaden retries performed
}

// RetrieverSettings bound the retrieval loop.
type RetrieverSettings struct {
	SimilarityFloor float64
	TopK            int
	MaxIterations   int
	EmbeddingTTL    time.Duration
}

// Retriever drives the vector index, re-transforming the query with a
// broaden directive when a search comes back empty. Work is bounded to
// MaxIterations+1 searches per query.
type Retriever struct {
	transformer *Transformer
	embedder    model.Embedder
	cache       Cache
	index       Searcher
	settings    RetrieverSettings
	logger      *slog.Logger
}

// NewRetriever creates a Retriever. cache may be nil.
func NewRetriever(t *Transformer, e model.Embedder, c Cache, idx Searcher,
	settings RetrieverSettings, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		transformer: t,
		embedder:    e,
		cache:       c,
		index:       idx,
		settings:    settings,
		logger:      logger,
	}
}

// Retrieve runs the retrieval loop. It never returns an error: embedding
// or search failures on the final attempt yield StateExhausted, which the
// generator turns into its fallback branch.
func (r *Retriever) Retrieve(ctx context.Context, rawQuery, history string) Retrieval {
	state := StateInitial
	query := ""
	iterations := 0

	for {
		directive := DirectiveNone
		if state == StateRetry {
			directive = DirectiveBroaden
		}
		query = r.transformer.Transform(ctx, rawQuery, history, directive, query)

		results := r.search(ctx, query)
		state = StateRetrieved

		if len(results) > 0 {
			state = StateAccepted
			r.logger.Debug("retrieval accepted",
				"query", query, "results", len(results), "iterations", iterations)
			return Retrieval{Query: query, Results: results, State: state, Iterations: iterations}
		}

		if iterations >= r.settings.MaxIterations {
			state = StateExhausted
			r.logger.Debug("retrieval exhausted", "query", query, "iterations", iterations)
			return Retrieval{Query: query, Results: nil, State: state, Iterations: iterations}
		}
		iterations++
		state = StateRetry
	}
}

// search embeds the query (through the embedding cache) and hits the
// index. Any failure reads as no results.
func (r *Retriever) search(ctx context.Context, query string) []index.Result {
	vec, err := r.embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed", "error", err)
		return nil
	}
	results, err := r.index.Search(vec,
		index.WithTopK(r.settings.TopK),
		index.WithFloor(r.settings.SimilarityFloor))
	if err != nil {
		r.logger.Warn("index search failed", "error", err)
		return nil
	}
	return results
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	if r.cache == nil {
		return r.embedder.Embed(ctx, query)
	}
	key := cache.HashText(query)
	var vec []float32
	if r.cache.GetJSON(ctx, cache.NamespaceEmbedding, key, &vec) && len(vec) > 0 {
		return vec, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache.SetJSON(ctx, cache.NamespaceEmbedding, key, vec, r.settings.EmbeddingTTL)
	return vec, nil
}
