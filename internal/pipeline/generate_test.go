package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/quill0/quill/internal/index"
)

func TestGenerateNotFoundFallback(t *testing.T) {
	gen := &stubGen{}
	g := NewGenerator(gen, FallbackNotFound, testLogger)

	got := g.Generate(t.Context(), GenerateInput{Query: "anything"})
	if got.Answer != NotFoundAnswer {
		t.Errorf("Answer = %q, want the canned not-found answer", got.Answer)
	}
	if got.Grounded {
		t.Error("Grounded = true for the not-found branch")
	}
	if got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("Sources = %v, want empty non-nil slice", got.Sources)
	}
	if gen.calls() != 0 {
		t.Errorf("model called %d times in the not-found branch, want 0", gen.calls())
	}
}

func TestGenerateGeneralFallback(t *testing.T) {
	gen := &stubGen{fallback: "It generally works like this."}
	g := NewGenerator(gen, FallbackGeneral, testLogger)

	got := g.Generate(t.Context(), GenerateInput{Query: "anything"})
	if !strings.HasPrefix(got.Answer, UngroundedTag) {
		t.Errorf("Answer = %q, want the ungrounded tag prefix", got.Answer)
	}
	if got.Grounded {
		t.Error("Grounded = true for a general-knowledge answer")
	}
	if len(got.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", got.Sources)
	}
}

func TestGenerateGeneralFallbackFailure(t *testing.T) {
	gen := &stubGen{err: errors.New("model down")}
	g := NewGenerator(gen, FallbackGeneral, testLogger)

	got := g.Generate(t.Context(), GenerateInput{Query: "anything"})
	if got.Answer != NotFoundAnswer {
		t.Errorf("Answer = %q, want the canned not-found answer", got.Answer)
	}
}

func TestGenerateGrounded(t *testing.T) {
	gen := &stubGen{fallback: "  Grounded answer.  "}
	g := NewGenerator(gen, FallbackNotFound, testLogger)

	got := g.Generate(t.Context(), GenerateInput{
		Query: "the question",
		Chunks: []ScoredChunk{
			{Chunk: index.Chunk{ID: "c1", Source: "a.md", Content: "first"}},
			{Chunk: index.Chunk{ID: "c2", Source: "b.md", Content: "second"}},
			{Chunk: index.Chunk{ID: "c3", Source: "a.md", Content: "third"}},
		},
	})
	if got.Answer != "Grounded answer." {
		t.Errorf("Answer = %q, want trimmed model output", got.Answer)
	}
	if !got.Grounded {
		t.Error("Grounded = false with chunks present")
	}
	want := []string{"a.md", "b.md"}
	if len(got.Sources) != len(want) || got.Sources[0] != want[0] || got.Sources[1] != want[1] {
		t.Errorf("Sources = %v, want deduplicated %v", got.Sources, want)
	}
}

func TestGenerateGroundedPromptSections(t *testing.T) {
	gen := &stubGen{fallback: "answer"}
	g := NewGenerator(gen, FallbackNotFound, testLogger)

	g.Generate(t.Context(), GenerateInput{
		Query:     "q",
		Chunks:    []ScoredChunk{{Chunk: index.Chunk{ID: "c1", Source: "a.md", Content: "body"}}},
		LiveFacts: "score is 2-1",
		Context:   "user: earlier question\n",
	})

	prompt := gen.prompts[0]
	for _, fragment := range []string{"Live facts:", "score is 2-1", "Conversation:", "earlier question"} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
	if strings.Contains(prompt, "Remembered context:") {
		t.Error("prompt contains an empty memories section")
	}
}

func TestGenerateGroundedFailure(t *testing.T) {
	gen := &stubGen{err: errors.New("model down")}
	g := NewGenerator(gen, FallbackNotFound, testLogger)

	got := g.Generate(t.Context(), GenerateInput{
		Query:  "q",
		Chunks: []ScoredChunk{{Chunk: index.Chunk{ID: "c1", Source: "a.md", Content: "body"}}},
	})
	if got.Answer != NotFoundAnswer {
		t.Errorf("Answer = %q, want the canned not-found answer", got.Answer)
	}
	if got.Grounded {
		t.Error("Grounded = true after a generation failure")
	}
	if len(got.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", got.Sources)
	}
}
