package pipeline

import "testing"

func TestScopeGateInScope(t *testing.T) {
	gate := NewScopeGate([]string{"api", "webhook", "rate limit"})

	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{name: "question with keyword", query: "How do I authenticate with the API?", want: true},
		{name: "question word no mark", query: "what is the webhook payload format", want: true},
		{name: "long statement with keyword", query: "my api requests keep failing with 429 errors", want: true},
		{name: "short statement with keyword", query: "api broken", want: false},
		{name: "question without keyword", query: "What's the weather like today?", want: false},
		{name: "chitchat", query: "hello there", want: false},
		{name: "keyword case insensitive", query: "Is there a Rate Limit on uploads?", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.InScope(tt.query); got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestScopeGateNoKeywordsAdmitsAll(t *testing.T) {
	gate := NewScopeGate(nil)
	for _, q := range []string{"hello", "anything at all", "?"} {
		if !gate.InScope(q) {
			t.Errorf("InScope(%q) = false with an empty vocabulary", q)
		}
	}
}

func TestScopeGateTrimsKeywords(t *testing.T) {
	gate := NewScopeGate([]string{"  API  ", "", "   "})
	if !gate.InScope("How does the api work?") {
		t.Error("InScope() = false, want keyword matched after trimming")
	}
	if gate.InScope("How does anything work?") {
		t.Error("InScope() = true, want blank keywords discarded rather than match-everything")
	}
}
