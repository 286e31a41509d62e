package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/quill0/quill/internal/model"
)

// Store manages persistent memory backed by PostgreSQL + pgvector.
// All operations are scoped to a single conversation.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool         *pgxpool.Pool
	embedder     model.Embedder
	dupThreshold float64
	logger       *slog.Logger
}

// NewStore creates a memory Store. duplicateThreshold must be in (0, 1];
// zero selects DuplicateThreshold.
func NewStore(pool *pgxpool.Pool, embedder model.Embedder, duplicateThreshold float64, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if duplicateThreshold == 0 {
		duplicateThreshold = DuplicateThreshold
	}
	if duplicateThreshold <= RelatedThreshold || duplicateThreshold > 1 {
		return nil, fmt.Errorf("duplicate threshold %v out of range (%v, 1]",
			duplicateThreshold, RelatedThreshold)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, dupThreshold: duplicateThreshold, logger: logger}, nil
}

// Save stores a memory for one conversation, merging into an existing
// near-duplicate from the same conversation when one exists. A merge
// updates content and embedding to the newer version, raises importance,
// and bumps access_count; it never inserts a second row. A nearest
// neighbor in the related band below the duplicate threshold still
// inserts, with the proximity logged.
//
// The transaction holds an advisory lock keyed by conversation and memory
// type so two concurrent saves of the same fact cannot both pass the
// duplicate check and insert twice.
func (s *Store) Save(ctx context.Context, conversationID uuid.UUID, content, memType string, importance float32) (uuid.UUID, error) {
	if conversationID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("missing conversation id")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return uuid.Nil, fmt.Errorf("empty memory content")
	}
	if len(content) > MaxContentLength {
		content = content[:MaxContentLength]
	}
	if !ValidType(memType) {
		return uuid.Nil, fmt.Errorf("invalid memory type %q", memType)
	}
	if importance <= 0 || importance > 1 {
		importance = DefaultImportance
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("embedding memory: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
	}()

	// pg_advisory_xact_lock releases automatically at commit/rollback.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		"memory:"+conversationID.String()+":"+memType); err != nil {
		return uuid.Nil, fmt.Errorf("acquiring advisory lock: %w", err)
	}

	pgVec := pgvector.NewVector(vec)

	var nearestID uuid.UUID
	var similarity float64
	err = tx.QueryRow(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS similarity
		 FROM memories WHERE conversation_id = $2 AND memory_type = $3
		 ORDER BY embedding <=> $1 LIMIT 1`,
		pgVec, conversationID, memType).Scan(&nearestID, &similarity)
	if err != nil && err != pgx.ErrNoRows {
		return uuid.Nil, fmt.Errorf("checking for duplicates: %w", err)
	}

	var id uuid.UUID
	switch {
	case err == nil && similarity >= s.dupThreshold:
		_, mergeErr := tx.Exec(ctx,
			`UPDATE memories
			 SET content = $2, embedding = $3,
			     importance = LEAST(1.0, GREATEST(importance, $4) + $5),
			     access_count = access_count + 1,
			     updated_at = now()
			 WHERE id = $1`,
			nearestID, content, pgVec, importance, mergeBoost)
		if mergeErr != nil {
			return uuid.Nil, fmt.Errorf("merging duplicate memory: %w", mergeErr)
		}
		id = nearestID
		s.logger.Debug("memory merged into near-duplicate",
			"id", id, "similarity", similarity)
	default:
		if err == nil && similarity >= RelatedThreshold {
			s.logger.Debug("related memory inserted alongside neighbor",
				"neighbor_id", nearestID, "similarity", similarity)
		}
		// access_count starts at 1 so it counts stores as well as reads:
		// storing the same memory twice yields one record with count 2.
		insertErr := tx.QueryRow(ctx,
			`INSERT INTO memories (conversation_id, content, embedding, memory_type, importance, access_count)
			 VALUES ($1, $2, $3, $4, $5, 1) RETURNING id`,
			conversationID, content, pgVec, memType, importance).Scan(&id)
		if insertErr != nil {
			return uuid.Nil, fmt.Errorf("inserting memory: %w", insertErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing memory: %w", err)
	}
	return id, nil
}

// Retrieve returns up to topK of the conversation's memories ranked by
// similarity weighted by importance. Returned memories are reinforced:
// access_count increments and last_accessed_at refreshes.
func (s *Store) Retrieve(ctx context.Context, conversationID uuid.UUID, query string, topK int) ([]Retrieved, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	if topK <= 0 {
		return []Retrieved{}, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	pgVec := pgvector.NewVector(vec)

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, content, memory_type, importance, access_count,
		        last_accessed_at, created_at, updated_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE conversation_id = $2
		 ORDER BY (1 - (embedding <=> $1)) * importance DESC
		 LIMIT $3`,
		pgVec, conversationID, topK)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	var out []Retrieved
	for rows.Next() {
		var r Retrieved
		if err := rows.Scan(&r.Record.ID, &r.Record.ConversationID, &r.Record.Content,
			&r.Record.Type, &r.Record.Importance, &r.Record.AccessCount,
			&r.Record.LastAccessedAt, &r.Record.CreatedAt, &r.Record.UpdatedAt,
			&r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		r.Score = r.Similarity * float64(r.Record.Importance)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}

	s.reinforce(ctx, out)
	return out, nil
}

// reinforce updates access tracking for retrieved memories. Partial
// failure is acceptable; access tracking is advisory, not authoritative.
func (s *Store) reinforce(ctx context.Context, retrieved []Retrieved) {
	if len(retrieved) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(retrieved))
	for i, r := range retrieved {
		ids[i] = r.Record.ID
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE memories
		 SET access_count = access_count + 1, last_accessed_at = now()
		 WHERE id = ANY($1)`, ids); err != nil {
		s.logger.Warn("memory access tracking failed", "error", err)
	}
}

// Count returns the number of memories stored for one conversation.
func (s *Store) Count(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memories WHERE conversation_id = $1`,
		conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}

// Get loads a single memory by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, content, memory_type, importance, access_count,
		        last_accessed_at, created_at, updated_at
		 FROM memories WHERE id = $1`, id).Scan(
		&r.ID, &r.ConversationID, &r.Content, &r.Type, &r.Importance, &r.AccessCount,
		&r.LastAccessedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("loading memory %s: %w", id, err)
	}
	return r, nil
}
