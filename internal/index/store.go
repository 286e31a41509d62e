package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkStore persists documents and chunks to PostgreSQL so the in-memory
// index can be rebuilt at startup without re-embedding anything.
//
// ChunkStore is safe for concurrent use by multiple goroutines.
type ChunkStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewChunkStore creates a ChunkStore.
func NewChunkStore(pool *pgxpool.Pool, logger *slog.Logger) (*ChunkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStore{pool: pool, logger: logger}, nil
}

// SaveDocument upserts a document and replaces all of its chunks in one
// transaction. Re-ingesting a source never leaves stale chunks behind.
func (s *ChunkStore) SaveDocument(ctx context.Context, source, title string, chunks []Chunk) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
	}()

	var docID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO documents (source, title)
		 VALUES ($1, $2)
		 ON CONFLICT (source)
		 DO UPDATE SET title = EXCLUDED.title, updated_at = now()
		 RETURNING id`,
		source, title).Scan(&docID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting document %q: %w", source, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return uuid.Nil, fmt.Errorf("clearing chunks for %q: %w", source, err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, content, embedding, position, section)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, docID, c.Content, pgvector.NewVector(c.Embedding), c.Position, c.Section)
		if err != nil {
			return uuid.Nil, fmt.Errorf("inserting chunk %q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing document %q: %w", source, err)
	}
	return docID, nil
}

// LoadAll returns every chunk in ingestion order: documents by creation
// time, chunks by position. This order defines similarity tie-breaking
// in the rebuilt index.
func (s *ChunkStore) LoadAll(ctx context.Context) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.document_id, d.source, c.content, c.embedding, c.position, c.section
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 ORDER BY d.created_at, c.position`)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embedding pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Content, &embedding, &c.Position, &c.Section); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = embedding.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteDocument removes a document and its chunks by source.
func (s *ChunkStore) DeleteDocument(ctx context.Context, source string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE source = $1`, source)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", source, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %q not found", source)
	}
	return nil
}

// CountChunks returns the total number of persisted chunks.
func (s *ChunkStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// DocumentInfo summarizes one ingested document.
type DocumentInfo struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// ListDocuments returns all ingested documents in ingestion order.
func (s *ChunkStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.source, d.title, COUNT(c.id), d.created_at
		 FROM documents d
		 LEFT JOIN chunks c ON c.document_id = d.id
		 GROUP BY d.id, d.source, d.title, d.created_at
		 ORDER BY d.created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.Source, &d.Title, &d.Chunks, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}
