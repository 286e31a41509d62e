package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quill0/quill/internal/memory"
	"github.com/quill0/quill/internal/model"
)

// Fallback modes for queries with no grounded context.
const (
	// FallbackNotFound returns a canned "not found" answer.
	FallbackNotFound = "notfound"

	// FallbackGeneral answers from general knowledge, tagged as
	// ungrounded.
	FallbackGeneral = "general"
)

// NotFoundAnswer is the canned response for FallbackNotFound.
const NotFoundAnswer = "I could not find relevant information in the document corpus for that question."

// UngroundedTag prefixes FallbackGeneral answers so the caller can
// distinguish them from grounded ones.
const UngroundedTag = "[outside the document corpus] "

const groundedPrompt = `Answer the question using ONLY the passages, facts, and remembered
context below. If they do not contain the answer, say so. Cite nothing
that is not present in them.

%s%s%s%s
Question: %s

Answer:`

const generalPrompt = `Answer the question from general knowledge. Be concise and note any
uncertainty.

Question: %s

Answer:`

// GenerateInput is everything the generator composes an answer from.
type GenerateInput struct {
	Query     string
	Chunks    []ScoredChunk
	Context   string
	Memories  []memory.Retrieved
	LiveFacts string
}

// Generator synthesizes the final answer. Whether the grounded or the
// fallback branch runs depends only on whether Chunks is empty.
type Generator struct {
	model    model.Generator
	fallback string
	logger   *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(m model.Generator, fallbackMode string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: m, fallback: fallbackMode, logger: logger}
}

// Generate produces the answer. With no chunks, the configured fallback
// branch runs deterministically. A generation failure inside either
// branch degrades to the canned not-found answer; the pipeline never
// surfaces a raw model error.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) Response {
	if len(in.Chunks) == 0 {
		return g.generateFallback(ctx, in.Query)
	}

	var passages strings.Builder
	passages.WriteString("Passages:\n")
	sources := make([]string, 0, len(in.Chunks))
	seen := make(map[string]bool)
	for i, c := range in.Chunks {
		fmt.Fprintf(&passages, "[%d] (%s) %s\n\n", i+1, c.Chunk.Source, c.Chunk.Content)
		if !seen[c.Chunk.Source] {
			seen[c.Chunk.Source] = true
			sources = append(sources, c.Chunk.Source)
		}
	}

	prompt := fmt.Sprintf(groundedPrompt,
		passages.String(),
		section("Live facts", in.LiveFacts),
		section("Remembered context", formatMemories(in.Memories)),
		section("Conversation", in.Context),
		in.Query)

	answer, err := g.model.Generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("grounded generation failed", "error", err)
		return Response{Answer: NotFoundAnswer, Sources: []string{}}
	}
	return Response{
		Answer:   strings.TrimSpace(answer),
		Sources:  sources,
		Grounded: true,
	}
}

// generateFallback is the empty-context branch.
func (g *Generator) generateFallback(ctx context.Context, query string) Response {
	if g.fallback == FallbackNotFound {
		return Response{Answer: NotFoundAnswer, Sources: []string{}}
	}

	answer, err := g.model.Generate(ctx, fmt.Sprintf(generalPrompt, query))
	if err != nil {
		g.logger.Warn("general-knowledge fallback failed", "error", err)
		return Response{Answer: NotFoundAnswer, Sources: []string{}}
	}
	return Response{
		Answer:  UngroundedTag + strings.TrimSpace(answer),
		Sources: []string{},
	}
}

func section(title, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return title + ":\n" + strings.TrimSpace(body) + "\n\n"
}

func formatMemories(mems []memory.Retrieved) string {
	var b strings.Builder
	for _, m := range mems {
		fmt.Fprintf(&b, "- %s\n", m.Record.Content)
	}
	return b.String()
}
