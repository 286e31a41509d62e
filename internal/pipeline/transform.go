package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/model"
)

// Directives steer re-transformation on retry.
const (
	// DirectiveNone is the initial transformation: resolve pronouns from
	// history and sharpen the question for search.
	DirectiveNone = ""

	// DirectiveBroaden asks for a wider reformulation after weak results.
	DirectiveBroaden = "broaden"
)

const transformPrompt = `Rewrite the user question as a single standalone search query.
Resolve pronouns and references using the conversation so far, expand
abbreviations, and keep it concise. Reply with the query only.

Conversation so far:
%s

User question: %s

Search query:`

const broadenPrompt = `The previous search query found nothing relevant. Rewrite it into a
broader query: generalize specific terms, drop narrow qualifiers, add
likely synonyms. The new query MUST differ from the previous one.
Reply with the query only.

Previous query: %s

Broader query:`

// Transformer rewrites raw user questions into search queries.
// Results are cached in the transform namespace.
type Transformer struct {
	model  model.Generator
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewTransformer creates a Transformer. cache may be nil.
func NewTransformer(m model.Generator, c Cache, ttl time.Duration, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{model: m, cache: c, ttl: ttl, logger: logger}
}

// Transform produces a search query from the raw question and history.
// previous is the query of the prior attempt (empty on the first call);
// with DirectiveBroaden the result is guaranteed to differ from it.
// On model failure the raw query is returned unchanged: transformation
// improves recall but is never required for an answer.
func (t *Transformer) Transform(ctx context.Context, raw, history, directive, previous string) string {
	key := cache.CompositeKey(raw, history, directive, previous)
	if t.cache != nil {
		var cached string
		if t.cache.GetJSON(ctx, cache.NamespaceTransform, key, &cached) && cached != "" {
			return cached
		}
	}

	var prompt string
	switch directive {
	case DirectiveBroaden:
		prompt = fmt.Sprintf(broadenPrompt, previous)
	default:
		prompt = fmt.Sprintf(transformPrompt, historyOrNone(history), raw)
	}

	out, err := t.model.Generate(ctx, prompt)
	if err != nil {
		t.logger.Warn("query transformation degraded to raw query", "error", err)
		return degradedQuery(raw, directive, previous)
	}
	out = firstLine(out)
	if out == "" {
		return degradedQuery(raw, directive, previous)
	}
	if directive == DirectiveBroaden && out == previous {
		// The model repeated itself; force a syntactic difference so the
		// retry loop cannot spin on an identical search.
		out = previous + " overview"
	}

	if t.cache != nil {
		t.cache.SetJSON(ctx, cache.NamespaceTransform, key, out, t.ttl)
	}
	return out
}

// degradedQuery is the no-model fallback. For a broaden retry it still
// must differ from the previous attempt.
func degradedQuery(raw, directive, previous string) string {
	if directive == DirectiveBroaden {
		broadened := raw + " overview"
		if broadened == previous {
			broadened = raw + " general information"
		}
		return broadened
	}
	return raw
}

func historyOrNone(history string) string {
	if strings.TrimSpace(history) == "" {
		return "(none)"
	}
	return history
}

// firstLine trims the response to its first non-empty line; models
// sometimes append explanations despite instructions.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
