package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quill0/quill/internal/log"
)

var testLogger = log.NewNop()

// memCache is an in-memory Cache with call counting, for verifying
// that cached stages skip their model calls.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) GetJSON(_ context.Context, namespace, key string, dest any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[namespace+"/"+key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	c.hits++
	return true
}

func (c *memCache) SetJSON(_ context.Context, namespace, key string, value any, _ time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[namespace+"/"+key] = raw
}

// genRule maps a prompt substring to a canned completion.
type genRule struct {
	contains string
	output   string
	err      error
}

// stubGen is a rule-based Generator. The first matching rule wins;
// unmatched prompts get the fallback output.
type stubGen struct {
	mu       sync.Mutex
	rules    []genRule
	fallback string
	err      error
	prompts  []string
}

func (g *stubGen) respond(contains, output string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, genRule{contains: contains, output: output})
}

func (g *stubGen) fail(contains string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, genRule{contains: contains, err: err})
}

func (g *stubGen) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	for _, r := range g.rules {
		if strings.Contains(prompt, r.contains) {
			return r.output, r.err
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return g.fallback, nil
}

func (g *stubGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *stubGen) callsContaining(substr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

// stubEmbed maps query text to fixed vectors.
type stubEmbed struct {
	mu          sync.Mutex
	vectors     map[string][]float32
	fallbackVec []float32
	err         error
	calls       int
}

func newStubEmbed() *stubEmbed {
	return &stubEmbed{vectors: make(map[string][]float32)}
}

func (e *stubEmbed) set(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

func (e *stubEmbed) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	if e.fallbackVec != nil {
		return e.fallbackVec, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (e *stubEmbed) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// stubClient satisfies both model interfaces for pipeline construction.
type stubClient struct {
	*stubGen
	*stubEmbed
}
