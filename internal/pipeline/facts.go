package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quill0/quill/internal/cache"
)

// FactStore is a strict key-value store of curated answers that override
// retrieval entirely. Keys are normalized the same way as cache keys, so
// "What is our SLA?" and "what is our sla" hit the same fact.
//
// Facts are authoritative and hand-maintained; unlike the cache they
// never expire and lookup failures degrade to "no fact" rather than
// erroring.
type FactStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewFactStore creates a FactStore.
func NewFactStore(pool *pgxpool.Pool, logger *slog.Logger) (*FactStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FactStore{pool: pool, logger: logger}, nil
}

// Set stores or replaces a fact.
func (f *FactStore) Set(ctx context.Context, question, answer string) error {
	key := cache.Normalize(question)
	if key == "" {
		return fmt.Errorf("empty fact key")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fmt.Errorf("empty fact value")
	}
	_, err := f.pool.Exec(ctx,
		`INSERT INTO facts (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, answer)
	if err != nil {
		return fmt.Errorf("storing fact %q: %w", key, err)
	}
	return nil
}

// Lookup returns the fact answer for a question, if one exists.
// Backend failures read as "no fact".
func (f *FactStore) Lookup(ctx context.Context, question string) (string, bool) {
	key := cache.Normalize(question)
	if key == "" {
		return "", false
	}
	var answer string
	err := f.pool.QueryRow(ctx,
		`SELECT value FROM facts WHERE key = $1`, key).Scan(&answer)
	if err != nil {
		if err != pgx.ErrNoRows {
			f.logger.Warn("fact lookup failed", "error", err)
		}
		return "", false
	}
	return answer, true
}

// Delete removes a fact.
func (f *FactStore) Delete(ctx context.Context, question string) error {
	key := cache.Normalize(question)
	tag, err := f.pool.Exec(ctx, `DELETE FROM facts WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting fact %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fact %q not found", key)
	}
	return nil
}

// List returns all facts as question-key/answer pairs.
func (f *FactStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := f.pool.Query(ctx, `SELECT key, value FROM facts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
