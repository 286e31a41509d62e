// Package index provides an in-memory vector index with cosine similarity
// search over document chunks. The working set is a read-only snapshot
// swapped atomically on rebuild, so searches never observe a half-built
// index and never block behind ingestion.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
)

// Chunk is one retrievable unit of a document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	Section    string    `json:"section"`
	Position   int       `json:"position"`
	Embedding  []float32 `json:"-"`
}

// Result is a chunk with its similarity to the query.
type Result struct {
	Chunk      Chunk
	Similarity float64
}

// snapshot is an immutable view of the index. Embeddings are stored
// L2-normalized so cosine similarity reduces to a dot product.
type snapshot struct {
	chunks  []Chunk
	vectors [][]float32
	dim     int
}

// Index is the in-memory vector index.
//
// Index is safe for concurrent use: Search reads the current snapshot,
// Rebuild installs a new one atomically.
type Index struct {
	snap atomic.Pointer[snapshot]
}

// New creates an empty index.
func New() *Index {
	idx := &Index{}
	idx.snap.Store(&snapshot{})
	return idx
}

// Rebuild replaces the entire index contents in one atomic swap.
// Chunks keep their given order; earlier chunks win similarity ties.
// Chunks with a nil or zero-norm embedding are rejected, as is any chunk
// whose embedding dimension differs from the first chunk's.
func (idx *Index) Rebuild(chunks []Chunk) error {
	next := &snapshot{
		chunks:  make([]Chunk, len(chunks)),
		vectors: make([][]float32, len(chunks)),
	}
	for i, c := range chunks {
		vec, err := normalize(c.Embedding)
		if err != nil {
			return fmt.Errorf("chunk %q: %w", c.ID, err)
		}
		if i == 0 {
			next.dim = len(vec)
		} else if len(vec) != next.dim {
			return fmt.Errorf("chunk %q: embedding has %d dimensions, index has %d",
				c.ID, len(vec), next.dim)
		}
		next.chunks[i] = c
		next.vectors[i] = vec
	}
	idx.snap.Store(next)
	return nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.snap.Load().chunks)
}

// SearchOption customizes a Search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	topK  int
	floor float64
}

// WithTopK limits the number of results returned.
func WithTopK(k int) SearchOption {
	return func(o *searchOptions) { o.topK = k }
}

// WithFloor drops results whose similarity is below floor.
func WithFloor(floor float64) SearchOption {
	return func(o *searchOptions) { o.floor = floor }
}

// Search returns the chunks most similar to the query embedding, best
// first. Results below the floor are dropped before top-k truncation.
// An empty index returns an empty slice.
func (idx *Index) Search(query []float32, opts ...SearchOption) ([]Result, error) {
	o := searchOptions{topK: 10}
	for _, opt := range opts {
		opt(&o)
	}

	q, err := normalize(query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	snap := idx.snap.Load()
	if len(snap.chunks) == 0 {
		return []Result{}, nil
	}
	if len(q) != snap.dim {
		return nil, fmt.Errorf("query embedding has %d dimensions, index has %d",
			len(q), snap.dim)
	}

	results := make([]Result, 0, len(snap.chunks))
	for i, vec := range snap.vectors {
		sim := dot(q, vec)
		if sim < o.floor {
			continue
		}
		results = append(results, Result{Chunk: snap.chunks[i], Similarity: sim})
	}

	// Stable keeps ingestion order for equal similarities.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if o.topK > 0 && len(results) > o.topK {
		results = results[:o.topK]
	}
	return results, nil
}

// normalize returns an L2-normalized copy of vec.
func normalize(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, fmt.Errorf("zero-norm embedding")
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// dot assumes equal-length inputs; Rebuild and Search enforce that.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
