package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a namespaced key-value cache backed by an UNLOGGED PostgreSQL
// table. UNLOGGED skips WAL writes, which is the right trade for a cache:
// faster writes, and losing entries on a crash only costs recomputation.
//
// All reads and writes FAIL OPEN: a cache failure is logged and treated as
// a miss (or a no-op for writes), never propagated to the caller. The
// pipeline must produce identical answers with the cache on fire.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	stats  *Stats
}

// NewStore creates a cache Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, stats: newStats()}, nil
}

// Get retrieves the raw value for key in namespace. Returns (nil, false)
// on a miss, an expired entry, or any backend error.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries
		 WHERE namespace = $1 AND key = $2 AND expires_at > now()`,
		namespace, key).Scan(&value)
	if err != nil {
		if err != pgx.ErrNoRows {
			s.stats.recordError(namespace)
			s.logger.Warn("cache read failed, treating as miss",
				"namespace", namespace, "error", err)
		} else {
			s.stats.recordMiss(namespace)
		}
		return nil, false
	}
	s.stats.recordHit(namespace)
	return value, true
}

// Set stores value under key in namespace with the given TTL.
// Errors are logged and swallowed; a failed write is a future miss.
func (s *Store) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_entries (namespace, key, value, expires_at)
		 VALUES ($1, $2, $3, now() + $4)
		 ON CONFLICT (namespace, key)
		 DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		namespace, key, value, ttl)
	if err != nil {
		s.stats.recordError(namespace)
		s.logger.Warn("cache write failed, skipping",
			"namespace", namespace, "error", err)
		return
	}
	s.stats.recordSet(namespace)
}

// GetJSON retrieves and unmarshals a cached value into dest.
// A corrupt entry is deleted and reported as a miss.
func (s *Store) GetJSON(ctx context.Context, namespace, key string, dest any) bool {
	raw, ok := s.Get(ctx, namespace, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("cache entry corrupt, evicting",
			"namespace", namespace, "error", err)
		s.Delete(ctx, namespace, key)
		return false
	}
	return true
}

// SetJSON marshals value and stores it. Marshal failures are logged and
// swallowed like any other cache write failure.
func (s *Store) SetJSON(ctx context.Context, namespace, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.stats.recordError(namespace)
		s.logger.Warn("cache marshal failed, skipping",
			"namespace", namespace, "error", err)
		return
	}
	s.Set(ctx, namespace, key, raw, ttl)
}

// Delete removes a single entry. Missing entries are not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE namespace = $1 AND key = $2`,
		namespace, key); err != nil {
		s.logger.Warn("cache delete failed", "namespace", namespace, "error", err)
	}
}

// Invalidate removes every entry in a namespace and returns the count.
func (s *Store) Invalidate(ctx context.Context, namespace string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE namespace = $1`, namespace)
	if err != nil {
		return 0, fmt.Errorf("invalidating namespace %q: %w", namespace, err)
	}
	return tag.RowsAffected(), nil
}

// InvalidateAll removes every entry in every namespace.
func (s *Store) InvalidateAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Sweep deletes expired entries and returns the count removed.
// Expired entries are already invisible to Get; sweeping just reclaims space.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns the live statistics collector for this store.
func (s *Store) Stats() *Stats {
	return s.stats
}
