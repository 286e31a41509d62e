// Package conversation persists chat history with bounded growth: long
// messages are truncated on write, old messages are folded into a running
// summary, and idle conversations expire on a sliding window.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored conversation turn.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// Context is what the pipeline gets for prompt assembly: the compressed
// summary of older turns plus the most recent raw messages.
type Context struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Summary        string    `json:"summary"`
	Recent         []Message `json:"recent"`
}

// Settings bound conversation growth.
type Settings struct {
	// MaxMessageTokens caps a single stored message.
	MaxMessageTokens int

	// CompressThreshold is the message count that triggers compression.
	CompressThreshold int

	// KeepRecent is how many recent messages survive compression intact.
	KeepRecent int

	// TTL is the sliding expiry window, refreshed on every append.
	TTL time.Duration
}
