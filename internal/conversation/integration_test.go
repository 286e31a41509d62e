//go:build integration
// +build integration

package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/testutil"
)

// stubGenerator returns a fixed response and records prompts.
type stubGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.response, g.err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func testSettings() Settings {
	return Settings{
		MaxMessageTokens:  200,
		CompressThreshold: 20,
		KeepRecent:        15,
		TTL:               30 * 24 * time.Hour,
	}
}

func setupStore(t *testing.T, gen *stubGenerator) (*Store, *pgxpool.Pool) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store, err := NewStore(db.Pool, gen, testSettings(), log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	return store, db.Pool
}

func TestAppend_AndContext(t *testing.T) {
	store, _ := setupStore(t, &stubGenerator{response: "summary"})
	ctx := context.Background()
	id := uuid.New()

	if _, err := store.Append(ctx, id, RoleUser, "what is go"); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}
	if _, err := store.Append(ctx, id, RoleAssistant, "a programming language"); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}

	got, err := store.Context(ctx, id, 5)
	if err != nil {
		t.Fatalf("Context() unexpected error: %v", err)
	}
	if len(got.Recent) != 2 {
		t.Fatalf("Context() recent = %d messages, want 2", len(got.Recent))
	}
	if got.Recent[0].Role != RoleUser || got.Recent[1].Role != RoleAssistant {
		t.Errorf("messages out of order: %v", got.Recent)
	}
	if got.Summary != "" {
		t.Errorf("Summary = %q, want empty before compression", got.Summary)
	}
}

func TestAppend_TruncatesLongMessages(t *testing.T) {
	store, _ := setupStore(t, &stubGenerator{response: "summary"})
	ctx := context.Background()
	id := uuid.New()

	long := strings.Repeat("word ", 1000) // ~1250 tokens
	msg, err := store.Append(ctx, id, RoleUser, long)
	if err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}
	if msg.Tokens > 200 {
		t.Errorf("stored message estimates %d tokens, want <= 200", msg.Tokens)
	}
	if len(msg.Content) >= len(long) {
		t.Error("long message was not truncated")
	}
}

func TestAppend_InvalidInput(t *testing.T) {
	store, _ := setupStore(t, &stubGenerator{response: "summary"})
	ctx := context.Background()

	if _, err := store.Append(ctx, uuid.New(), "system", "hi"); err == nil {
		t.Error("Append() with invalid role expected error, got nil")
	}
	if _, err := store.Append(ctx, uuid.New(), RoleUser, "   "); err == nil {
		t.Error("Append() with blank content expected error, got nil")
	}
}

func TestCompression_FoldsOldMessages(t *testing.T) {
	gen := &stubGenerator{response: "User asked many things about Go."}
	store, _ := setupStore(t, gen)
	ctx := context.Background()
	id := uuid.New()

	// 21 messages crosses the threshold of 20 on the final append.
	for i := range 21 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := store.Append(ctx, id, role, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Append(%d) unexpected error: %v", i, err)
		}
	}

	if gen.callCount() != 1 {
		t.Errorf("summarizer called %d times, want 1", gen.callCount())
	}

	n, err := store.Count(ctx, id)
	if err != nil {
		t.Fatalf("Count() unexpected error: %v", err)
	}
	if n != 15 {
		t.Errorf("Count() = %d, want 15 after compression", n)
	}

	got, err := store.Context(ctx, id, 5)
	if err != nil {
		t.Fatalf("Context() unexpected error: %v", err)
	}
	if got.Summary != "User asked many things about Go." {
		t.Errorf("Summary = %q, want the generated summary", got.Summary)
	}
	// The most recent message must have survived raw.
	if last := got.Recent[len(got.Recent)-1]; last.Content != "message 20" {
		t.Errorf("last recent message = %q, want %q", last.Content, "message 20")
	}
}

func TestCompression_FailureKeepsMessages(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("model unavailable")}
	store, _ := setupStore(t, gen)
	ctx := context.Background()
	id := uuid.New()

	for i := range 21 {
		if _, err := store.Append(ctx, id, RoleUser, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Append(%d) unexpected error: %v", i, err)
		}
	}

	// Compression failed, so nothing was lost.
	n, err := store.Count(ctx, id)
	if err != nil {
		t.Fatalf("Count() unexpected error: %v", err)
	}
	if n != 21 {
		t.Errorf("Count() = %d, want 21 (no messages dropped on failure)", n)
	}
}

func TestExpiry_RecreatesEmpty(t *testing.T) {
	gen := &stubGenerator{response: "summary"}
	store, pool := setupStore(t, gen)
	ctx := context.Background()
	id := uuid.New()

	if _, err := store.Append(ctx, id, RoleUser, "old message"); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}

	// Force the sliding window into the past.
	if _, err := pool.Exec(ctx,
		`UPDATE conversations SET expires_at = now() - interval '1 hour' WHERE id = $1`, id); err != nil {
		t.Fatalf("forcing expiry: %v", err)
	}

	// Expired conversations read as empty.
	got, err := store.Context(ctx, id, 5)
	if err != nil {
		t.Fatalf("Context() unexpected error: %v", err)
	}
	if len(got.Recent) != 0 || got.Summary != "" {
		t.Errorf("Context() on expired conversation = %+v, want empty", got)
	}

	// Appending recreates the conversation without the old history.
	if _, err := store.Append(ctx, id, RoleUser, "new message"); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}
	n, err := store.Count(ctx, id)
	if err != nil {
		t.Fatalf("Count() unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1 (old history gone)", n)
	}
}

func TestDeleteExpired(t *testing.T) {
	gen := &stubGenerator{response: "summary"}
	store, pool := setupStore(t, gen)
	ctx := context.Background()

	live := uuid.New()
	dead := uuid.New()
	if _, err := store.Append(ctx, live, RoleUser, "live"); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}
	if _, err := store.Append(ctx, dead, RoleUser, "dead"); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`UPDATE conversations SET expires_at = now() - interval '1 hour' WHERE id = $1`, dead); err != nil {
		t.Fatalf("forcing expiry: %v", err)
	}

	n, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
}
