package pipeline

import "strings"

// OutOfScopeAnswer is returned when the scope gate rejects a query.
const OutOfScopeAnswer = "I can only help with questions about the indexed documentation. Please ask about the topics it covers."

// questionWords start queries the gate recognizes as questions even
// without a question mark.
var questionWords = []string{
	"how", "what", "why", "when", "where", "which", "who",
	"can", "could", "does", "do", "is", "are", "should",
}

// ScopeGate is a keyword heuristic that rejects queries clearly outside
// the corpus before any model call is spent on them. An empty keyword
// list admits everything, so the gate can be configured on without a
// vocabulary and tightened later.
type ScopeGate struct {
	keywords []string
}

// NewScopeGate creates a gate over the given corpus vocabulary.
// Keywords are matched case-insensitively as substrings.
func NewScopeGate(keywords []string) *ScopeGate {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &ScopeGate{keywords: lowered}
}

// InScope reports whether the query looks like a question about the
// corpus: question-shaped input containing a corpus keyword passes, as
// does any longer statement mentioning one.
func (g *ScopeGate) InScope(query string) bool {
	if len(g.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(query)

	hasKeyword := false
	for _, k := range g.keywords {
		if strings.Contains(lower, k) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}

	if strings.Contains(query, "?") || startsWithQuestionWord(lower) {
		return true
	}
	return len(strings.Fields(query)) > 3
}

func startsWithQuestionWord(lower string) bool {
	first, _, _ := strings.Cut(strings.TrimSpace(lower), " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}
