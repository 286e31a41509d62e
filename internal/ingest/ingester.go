package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/index"
	"github.com/quill0/quill/internal/model"
)

// Ingester embeds document chunks, persists them, and rebuilds the
// in-memory index. Embeddings are cached by content hash so re-ingesting
// unchanged text never re-calls the embedding API.
type Ingester struct {
	chunker      *Chunker
	embedder     model.Embedder
	cache        *cache.Store
	store        *index.ChunkStore
	index        *index.Index
	embeddingTTL time.Duration
	logger       *slog.Logger
}

// NewIngester creates an Ingester. cache may be nil to disable
// embedding caching.
func NewIngester(embedder model.Embedder, cacheStore *cache.Store, store *index.ChunkStore,
	idx *index.Index, embeddingTTL time.Duration, logger *slog.Logger) (*Ingester, error) {

	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		chunker:      NewChunker(),
		embedder:     embedder,
		cache:        cacheStore,
		store:        store,
		index:        idx,
		embeddingTTL: embeddingTTL,
		logger:       logger,
	}, nil
}

// IngestFile reads a markdown file and ingests it with the file path as
// source and the base name as title.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's own CLI invocation
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return in.IngestText(ctx, path, filepath.Base(path), string(content))
}

// IngestText chunks, embeds, and persists content under the given source,
// then reloads the index. Returns the number of chunks ingested.
func (in *Ingester) IngestText(ctx context.Context, source, title, content string) (int, error) {
	chunks := in.chunker.Chunk(source, content)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks produced from %q", source)
	}

	for i := range chunks {
		vec, err := in.embed(ctx, chunks[i].Content)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk %d of %q: %w", i, source, err)
		}
		chunks[i].Embedding = vec
	}

	if _, err := in.store.SaveDocument(ctx, source, title, chunks); err != nil {
		return 0, err
	}

	if err := in.Reload(ctx); err != nil {
		return 0, err
	}

	in.logger.Info("document ingested", "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// Reload rebuilds the in-memory index from the persisted chunk store.
func (in *Ingester) Reload(ctx context.Context) error {
	chunks, err := in.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("reloading index: %w", err)
	}
	if err := in.index.Rebuild(chunks); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	in.logger.Debug("index rebuilt", "chunks", len(chunks))
	return nil
}

// embed returns the embedding for text, consulting the cache first.
func (in *Ingester) embed(ctx context.Context, text string) ([]float32, error) {
	if in.cache == nil {
		return in.embedder.Embed(ctx, text)
	}

	key := cache.HashText(text)
	var vec []float32
	if in.cache.GetJSON(ctx, cache.NamespaceEmbedding, key, &vec) && len(vec) > 0 {
		return vec, nil
	}

	vec, err := in.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	in.cache.SetJSON(ctx, cache.NamespaceEmbedding, key, vec, in.embeddingTTL)
	return vec, nil
}
