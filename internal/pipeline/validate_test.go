package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/quill0/quill/internal/index"
)

func testResults() []index.Result {
	return []index.Result{
		{Chunk: index.Chunk{ID: "c1", Content: "directly on topic"}, Similarity: 0.9},
		{Chunk: index.Chunk{ID: "c2", Content: "barely related"}, Similarity: 0.6},
	}
}

func TestValidateAllFiltersByThreshold(t *testing.T) {
	gen := &stubGen{}
	gen.respond("directly on topic", "0.9")
	gen.respond("barely related", "0.3")
	v := NewValidator(gen, nil, 0.6, time.Minute, testLogger)

	kept := v.ValidateAll(t.Context(), "the question", testResults())
	if len(kept) != 1 {
		t.Fatalf("kept %d chunks, want 1", len(kept))
	}
	if kept[0].Chunk.ID != "c1" {
		t.Errorf("kept chunk %q, want c1", kept[0].Chunk.ID)
	}
	if kept[0].Score != 0.9 {
		t.Errorf("Score = %v, want 0.9", kept[0].Score)
	}
}

func TestValidateAllDegradesToSimilarity(t *testing.T) {
	gen := &stubGen{err: errors.New("model down")}
	v := NewValidator(gen, nil, 0.6, time.Minute, testLogger)

	kept := v.ValidateAll(t.Context(), "the question", testResults())
	if len(kept) != 2 {
		t.Fatalf("kept %d chunks, want all 2 on scoring failure", len(kept))
	}
	if kept[0].Score != 0.9 || kept[1].Score != 0.6 {
		t.Errorf("scores = %v, %v, want retrieval similarities 0.9, 0.6", kept[0].Score, kept[1].Score)
	}
}

func TestValidateAllCachesPerPair(t *testing.T) {
	gen := &stubGen{fallback: "0.8"}
	c := newMemCache()
	v := NewValidator(gen, c, 0.6, time.Minute, testLogger)

	v.ValidateAll(t.Context(), "the question", testResults())
	v.ValidateAll(t.Context(), "the question", testResults())

	if gen.calls() != 2 {
		t.Errorf("model called %d times, want 2 (one per pair, second pass cached)", gen.calls())
	}

	// A different query is a different pair and must not hit the cache.
	v.ValidateAll(t.Context(), "another question", testResults())
	if gen.calls() != 4 {
		t.Errorf("model called %d times after new query, want 4", gen.calls())
	}
}

func TestValidateAllEmpty(t *testing.T) {
	v := NewValidator(&stubGen{}, nil, 0.6, time.Minute, testLogger)
	if kept := v.ValidateAll(t.Context(), "q", nil); len(kept) != 0 {
		t.Errorf("kept %d chunks from empty input", len(kept))
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{name: "bare number", in: "0.75", want: 0.75},
		{name: "with prose", in: "The rating is 0.4 because it is tangential.", want: 0.4},
		{name: "trailing period", in: "0.9.", want: 0.9},
		{name: "one", in: "1.0", want: 1},
		{name: "zero", in: "0", want: 0},
		{name: "out of range", in: "7.5", wantErr: true},
		{name: "negative", in: "-0.2", wantErr: true},
		{name: "no number", in: "highly relevant", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseScore(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("parseScore(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
