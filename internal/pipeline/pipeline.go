// Package pipeline implements the end-to-end question answering flow:
// query transformation, iterative retrieval, relevancy validation,
// reranking, and grounded response generation, with a namespaced cache
// in front of every expensive call. Every dependency failure except
// invalid input degrades to a defined fallback; a query always yields a
// well-formed answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/conversation"
	"github.com/quill0/quill/internal/memory"
	"github.com/quill0/quill/internal/model"
)

// ErrInvalidInput is returned for malformed queries or conversation IDs.
// It is the only per-query error HandleQuery ever returns.
var ErrInvalidInput = errors.New("pipeline: invalid input")

// Cache is the subset of the cache store the pipeline stages use.
// Implementations must fail open: a miss and an error look identical.
type Cache interface {
	GetJSON(ctx context.Context, namespace, key string, dest any) bool
	SetJSON(ctx context.Context, namespace, key string, value any, ttl time.Duration)
}

// Response is the answer handed back to the front-end.
type Response struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Grounded bool     `json:"grounded"`
	Cached   bool     `json:"cached"`
}

// Settings holds the pipeline tunables.
type Settings struct {
	SimilarityFloor    float64
	RelevancyThreshold float64
	RetrievalTopK      int
	RerankTopK         int
	MaxIterations      int
	RecentMessages     int
	MemoryTopK         int
	FallbackMode       string // "notfound" or "general"
	ScopeGate          bool
	ScopeKeywords      []string

	ResponseTTL  time.Duration
	RelevancyTTL time.Duration
	RerankTTL    time.Duration
	TransformTTL time.Duration
	EmbeddingTTL time.Duration
}

// Pipeline wires the stages together.
//
// Pipeline is safe for concurrent use; per-conversation write ordering is
// the caller's responsibility.
type Pipeline struct {
	transformer *Transformer
	retriever   *Retriever
	validator   *Validator
	reranker    *Reranker
	generator   *Generator
	scope       *ScopeGate
	facts       *FactStore
	convs       *conversation.Store
	memories    *memory.Store
	cache       Cache
	settings    Settings
	logger      *slog.Logger
	stats       *Stats
}

// Deps are the constructed dependencies for New. Facts may be nil to
// disable the exact-answer store; everything else is required.
type Deps struct {
	Client   interface {
		model.Embedder
		model.Generator
	}
	Cache    Cache
	Index    Searcher
	Facts    *FactStore
	Convs    *conversation.Store
	Memories *memory.Store
}

// New creates a Pipeline.
func New(deps Deps, settings Settings, logger *slog.Logger) (*Pipeline, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if deps.Convs == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if deps.Memories == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if settings.FallbackMode != FallbackNotFound && settings.FallbackMode != FallbackGeneral {
		return nil, fmt.Errorf("invalid fallback mode %q", settings.FallbackMode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var scope *ScopeGate
	if settings.ScopeGate {
		scope = NewScopeGate(settings.ScopeKeywords)
	}

	transformer := NewTransformer(deps.Client, deps.Cache, settings.TransformTTL, logger)
	return &Pipeline{
		transformer: transformer,
		retriever: NewRetriever(transformer, deps.Client, deps.Cache, deps.Index, RetrieverSettings{
			SimilarityFloor: settings.SimilarityFloor,
			TopK:            settings.RetrievalTopK,
			MaxIterations:   settings.MaxIterations,
			EmbeddingTTL:    settings.EmbeddingTTL,
		}, logger),
		validator: NewValidator(deps.Client, deps.Cache, settings.RelevancyThreshold, settings.RelevancyTTL, logger),
		reranker:  NewReranker(deps.Client, deps.Cache, settings.RerankTopK, settings.RerankTTL, logger),
		generator: NewGenerator(deps.Client, settings.FallbackMode, logger),
		scope:     scope,
		facts:     deps.Facts,
		convs:     deps.Convs,
		memories:  deps.Memories,
		cache:     deps.Cache,
		settings:  settings,
		logger:    logger,
		stats:     &Stats{},
	}, nil
}

// Stats returns the live pipeline counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// HandleQuery answers one user question. liveFacts is an optional
// pre-fetched blob of auxiliary real-time facts supplied by the caller;
// the pipeline never fetches live data itself.
func (p *Pipeline) HandleQuery(ctx context.Context, conversationID uuid.UUID, userText, liveFacts string) (Response, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return Response{}, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if conversationID == uuid.Nil {
		return Response{}, fmt.Errorf("%w: missing conversation id", ErrInvalidInput)
	}
	p.stats.queries.Add(1)

	// Strict fact store overrides retrieval entirely.
	if p.facts != nil {
		if answer, ok := p.facts.Lookup(ctx, userText); ok {
			p.stats.factHits.Add(1)
			p.finishTurn(ctx, conversationID, userText, answer)
			return Response{Answer: answer, Sources: []string{"facts"}, Grounded: true}, nil
		}
	}

	if p.scope != nil && !p.scope.InScope(userText) {
		p.stats.scopeRejects.Add(1)
		p.finishTurn(ctx, conversationID, userText, OutOfScopeAnswer)
		return Response{Answer: OutOfScopeAnswer, Sources: []string{}}, nil
	}

	convCtx, err := p.convs.Context(ctx, conversationID, p.settings.RecentMessages)
	if err != nil {
		// Degrade to an empty context; the query must still be answerable.
		p.logger.Warn("conversation context unavailable", "error", err)
		convCtx = conversation.Context{ConversationID: conversationID}
	}
	history := serializeContext(convCtx)

	mems := p.retrieveMemories(ctx, conversationID, userText)

	// Full-response cache: any change in query, conversation context, or
	// live facts changes the key.
	responseKey := cache.CompositeKey(userText, history, liveFacts)
	if p.cache != nil {
		var cached Response
		if p.cache.GetJSON(ctx, cache.NamespaceResponse, responseKey, &cached) {
			p.stats.responseHits.Add(1)
			cached.Cached = true
			p.finishTurn(ctx, conversationID, userText, cached.Answer)
			return cached, nil
		}
	}

	retrieval := p.retriever.Retrieve(ctx, userText, history)
	p.stats.iterations.Add(int64(retrieval.Iterations))
	if retrieval.State == StateExhausted {
		p.stats.exhausted.Add(1)
	}

	validated := p.validator.ValidateAll(ctx, retrieval.Query, retrieval.Results)
	ranked := p.reranker.Rerank(ctx, retrieval.Query, validated)

	resp := p.generator.Generate(ctx, GenerateInput{
		Query:     userText,
		Chunks:    ranked,
		Context:   history,
		Memories:  mems,
		LiveFacts: liveFacts,
	})
	if !resp.Grounded {
		p.stats.fallbacks.Add(1)
	}

	if p.cache != nil {
		p.cache.SetJSON(ctx, cache.NamespaceResponse, responseKey, resp, p.settings.ResponseTTL)
	}
	p.finishTurn(ctx, conversationID, userText, resp.Answer)
	return resp, nil
}

// retrieveMemories pulls the conversation's relevant long-term memories,
// degrading to none.
func (p *Pipeline) retrieveMemories(ctx context.Context, conversationID uuid.UUID, query string) []memory.Retrieved {
	mems, err := p.memories.Retrieve(ctx, conversationID, query, p.settings.MemoryTopK)
	if err != nil {
		p.logger.Warn("memory retrieval unavailable", "error", err)
		return nil
	}
	return mems
}

// finishTurn appends both sides of the exchange to the conversation.
// Failures are logged; the answer has already been produced.
func (p *Pipeline) finishTurn(ctx context.Context, conversationID uuid.UUID, question, answer string) {
	if _, err := p.convs.Append(ctx, conversationID, conversation.RoleUser, question); err != nil {
		p.logger.Warn("recording user turn failed", "error", err)
		return
	}
	if _, err := p.convs.Append(ctx, conversationID, conversation.RoleAssistant, answer); err != nil {
		p.logger.Warn("recording assistant turn failed", "error", err)
	}
}

// ExtractMemories mines the recent conversation for durable memories and
// stores them. Callers decide the cadence (e.g. every N turns); the
// pipeline only exposes the operation.
func (p *Pipeline) ExtractMemories(ctx context.Context, conversationID uuid.UUID) (int, error) {
	convCtx, err := p.convs.Context(ctx, conversationID, p.settings.RecentMessages)
	if err != nil {
		return 0, fmt.Errorf("loading conversation: %w", err)
	}
	if len(convCtx.Recent) == 0 {
		return 0, nil
	}

	var transcript strings.Builder
	for _, m := range convCtx.Recent {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	extracted, err := memory.Extract(ctx, p.generator.model, transcript.String())
	if err != nil {
		return 0, fmt.Errorf("extracting memories: %w", err)
	}

	stored := 0
	for _, e := range extracted {
		if _, err := p.memories.Save(ctx, conversationID, e.Content, e.Type, e.Importance); err != nil {
			p.logger.Warn("storing extracted memory failed", "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}

// serializeContext renders conversation context deterministically for
// cache keying and prompt assembly.
func serializeContext(c conversation.Context) string {
	var b strings.Builder
	if c.Summary != "" {
		b.WriteString("Summary: ")
		b.WriteString(c.Summary)
		b.WriteString("\n")
	}
	for _, m := range c.Recent {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
