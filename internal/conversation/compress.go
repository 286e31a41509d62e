package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const summarizePrompt = `Condense the following conversation into a short summary that preserves
facts, decisions, and open questions. If an earlier summary is given,
fold it in rather than repeating it.

Earlier summary:
%s

Conversation:
%s

Summary:`

// maybeCompress folds everything older than the KeepRecent most recent
// messages into the conversation summary once the message count exceeds
// CompressThreshold. One summarization call per compression.
func (s *Store) maybeCompress(ctx context.Context, conversationID uuid.UUID) error {
	if s.generator == nil {
		return nil
	}
	count, err := s.Count(ctx, conversationID)
	if err != nil {
		return err
	}
	if count <= s.settings.CompressThreshold {
		return nil
	}

	// Cutoff: the smallest message ID that stays raw.
	var cutoff int64
	err = s.pool.QueryRow(ctx,
		`SELECT MIN(id) FROM (
		     SELECT id FROM messages WHERE conversation_id = $1
		     ORDER BY id DESC LIMIT $2
		 ) t`,
		conversationID, s.settings.KeepRecent).Scan(&cutoff)
	if err != nil {
		return fmt.Errorf("finding compression cutoff: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM messages
		 WHERE conversation_id = $1 AND id < $2 ORDER BY id`,
		conversationID, cutoff)
	if err != nil {
		return fmt.Errorf("loading messages to compress: %w", err)
	}
	var transcript strings.Builder
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			rows.Close()
			return fmt.Errorf("scanning message: %w", err)
		}
		fmt.Fprintf(&transcript, "%s: %s\n", role, content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if transcript.Len() == 0 {
		return nil
	}

	var oldSummary string
	err = s.pool.QueryRow(ctx,
		`SELECT summary FROM conversations WHERE id = $1`, conversationID).Scan(&oldSummary)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("loading summary: %w", err)
	}
	if oldSummary == "" {
		oldSummary = "(none)"
	}

	summary, err := s.generator.Generate(ctx,
		fmt.Sprintf(summarizePrompt, oldSummary, transcript.String()))
	if err != nil {
		return fmt.Errorf("summarizing conversation: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("empty summary from model")
	}

	// Swap summary in and drop the compressed messages together, so a
	// failure cannot lose messages without a summary covering them.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning compression transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			s.logger.Warn("compression rollback failed", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET summary = $2, updated_at = now() WHERE id = $1`,
		conversationID, summary); err != nil {
		return fmt.Errorf("storing summary: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1 AND id < $2`,
		conversationID, cutoff); err != nil {
		return fmt.Errorf("deleting compressed messages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing compression: %w", err)
	}

	s.logger.Info("conversation compressed",
		"conversation_id", conversationID,
		"kept", s.settings.KeepRecent,
		"summary_tokens", len(summary)/4)
	return nil
}
