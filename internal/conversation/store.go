package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quill0/quill/internal/model"
)

// Store manages conversation persistence backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool      *pgxpool.Pool
	generator model.Generator
	settings  Settings
	logger    *slog.Logger
}

// NewStore creates a conversation Store. generator is used only for
// summary compression; nil disables compression entirely.
func NewStore(pool *pgxpool.Pool, generator model.Generator, settings Settings, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if settings.MaxMessageTokens <= 0 || settings.CompressThreshold <= 0 ||
		settings.KeepRecent <= 0 || settings.TTL <= 0 {
		return nil, fmt.Errorf("invalid conversation settings: %+v", settings)
	}
	if settings.KeepRecent >= settings.CompressThreshold {
		return nil, fmt.Errorf("keep recent (%d) must be below compress threshold (%d)",
			settings.KeepRecent, settings.CompressThreshold)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, generator: generator, settings: settings, logger: logger}, nil
}

// Append stores a message, truncating it to the per-message token cap and
// refreshing the conversation's sliding expiry. An expired conversation is
// recreated empty first. Compression runs afterwards if the conversation
// has grown past the threshold.
func (s *Store) Append(ctx context.Context, conversationID uuid.UUID, role, content string) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("invalid role %q", role)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, fmt.Errorf("empty message content")
	}

	content = model.TruncateTokens(content, s.settings.MaxMessageTokens)
	tokens := model.EstimateTokens(content)

	if err := s.ensure(ctx, conversationID); err != nil {
		return Message{}, err
	}

	var msg Message
	msg.Role = role
	msg.Content = content
	msg.Tokens = tokens
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content, token_count)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		conversationID, role, content, tokens).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("appending message: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = now(), expires_at = now() + $2 WHERE id = $1`,
		conversationID, s.settings.TTL); err != nil {
		return Message{}, fmt.Errorf("refreshing conversation expiry: %w", err)
	}

	if err := s.maybeCompress(ctx, conversationID); err != nil {
		// Compression failures never lose messages; history just stays long.
		s.logger.Warn("conversation compression skipped",
			"conversation_id", conversationID, "error", err)
	}

	return msg, nil
}

// ensure lazily creates the conversation row, recreating it empty when the
// previous incarnation has expired.
func (s *Store) ensure(ctx context.Context, id uuid.UUID) error {
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT expires_at FROM conversations WHERE id = $1`, id).Scan(&expiresAt)
	switch {
	case err == pgx.ErrNoRows:
		// fresh conversation
	case err != nil:
		return fmt.Errorf("loading conversation %s: %w", id, err)
	case time.Now().Before(expiresAt):
		return nil
	default:
		s.logger.Info("conversation expired, recreating empty", "conversation_id", id)
		if _, err := s.pool.Exec(ctx,
			`DELETE FROM conversations WHERE id = $1`, id); err != nil {
			return fmt.Errorf("removing expired conversation %s: %w", id, err)
		}
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, expires_at) VALUES ($1, now() + $2)
		 ON CONFLICT (id) DO NOTHING`,
		id, s.settings.TTL); err != nil {
		return fmt.Errorf("creating conversation %s: %w", id, err)
	}
	return nil
}

// Context returns the summary and the most recent messages in
// chronological order. An unknown or expired conversation yields an empty
// context rather than an error.
func (s *Store) Context(ctx context.Context, conversationID uuid.UUID, recent int) (Context, error) {
	out := Context{ConversationID: conversationID}

	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM conversations WHERE id = $1 AND expires_at > now()`,
		conversationID).Scan(&out.Summary)
	if err == pgx.ErrNoRows {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}

	msgs, err := s.tail(ctx, conversationID, recent)
	if err != nil {
		return out, err
	}
	out.Recent = msgs
	return out, nil
}

// tail returns the last n messages in chronological order.
func (s *Store) tail(ctx context.Context, conversationID uuid.UUID, n int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, token_count, created_at FROM (
		     SELECT id, role, content, token_count, created_at
		     FROM messages WHERE conversation_id = $1
		     ORDER BY id DESC LIMIT $2
		 ) t ORDER BY id ASC`,
		conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Count returns the number of stored messages in a conversation.
func (s *Store) Count(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// DeleteExpired removes conversations whose sliding window has lapsed.
// Messages go with them via cascade. Returns the number removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}
