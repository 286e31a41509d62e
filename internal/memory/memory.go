// Package memory stores long-lived semantic memories with embedding-based
// retrieval. Near-duplicate writes merge into the existing record instead
// of inserting; retrieval ranks by similarity weighted by importance and
// reinforces whatever it returns.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Memory types.
const (
	TypeFact       = "fact"
	TypeStrategy   = "strategy"
	TypePreference = "preference"
	TypeContext    = "context"
)

// ValidType reports whether t is a known memory type.
func ValidType(t string) bool {
	switch t {
	case TypeFact, TypeStrategy, TypePreference, TypeContext:
		return true
	}
	return false
}

const (
	// DefaultImportance is assigned when the caller does not specify one.
	DefaultImportance float32 = 0.5

	// DuplicateThreshold is the cosine similarity at which a new memory
	// merges into an existing one instead of inserting. Configurable per
	// store; this is the default.
	DuplicateThreshold = 0.95

	// RelatedThreshold marks the lower edge of the related band. A new
	// memory whose nearest neighbor falls in [RelatedThreshold,
	// duplicate threshold) still inserts, but the proximity is logged.
	RelatedThreshold = 0.80

	// MaxContentLength caps stored memory content in bytes.
	MaxContentLength = 2000

	// mergeBoost is added to importance on each duplicate merge, capped
	// at 1.0. Repeatedly re-learned memories grow more important.
	mergeBoost float32 = 0.05
)

// Record is one stored memory. Records belong to exactly one conversation;
// saves and retrievals never cross conversation boundaries.
type Record struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Importance     float32   `json:"importance"`
	AccessCount    int       `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Retrieved is a record with its retrieval scores.
type Retrieved struct {
	Record     Record  `json:"record"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"` // Similarity * Importance
}
