package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// Namespaces partition the cache so unrelated pipeline stages can never
// collide, and so each stage's entries can be invalidated independently.
const (
	NamespaceResponse  = "response"
	NamespaceRelevancy = "relevancy"
	NamespaceRerank    = "rerank"
	NamespaceTransform = "transform"
	NamespaceEmbedding = "embedding"
)

// Namespaces lists every valid namespace, in invalidation-display order.
var Namespaces = []string{
	NamespaceResponse,
	NamespaceRelevancy,
	NamespaceRerank,
	NamespaceTransform,
	NamespaceEmbedding,
}

// keyLength is the number of hex characters kept from each SHA-256 digest.
// 16 hex chars = 64 bits, plenty for cache keys that also carry a namespace.
const keyLength = 16

// Normalize canonicalizes text before hashing so that trivial variations
// ("What is Go?" vs "what is go") map to the same cache key: lowercase,
// trim, collapse internal whitespace, strip punctuation.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(strings.ToLower(s)) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashText returns the cache key for a single piece of text:
// hex(SHA-256(Normalize(text)))[:16].
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])[:keyLength]
}

// hashRaw hashes without normalization, for already-canonical input.
func hashRaw(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:keyLength]
}

// CompositeKey builds a key from multiple components. Each component is
// hashed individually (normalized), then the concatenation of the component
// hashes is hashed again. Changing any one component changes the key, and
// no component can smuggle a separator into another.
func CompositeKey(parts ...string) string {
	hashes := make([]string, len(parts))
	for i, p := range parts {
		hashes[i] = HashText(p)
	}
	return hashRaw(strings.Join(hashes, ":"))
}

// RerankKey builds a key for a reranking result: query plus the SET of
// chunk identifiers. Chunk hashes are sorted before concatenation so the
// same chunks retrieved in a different order still hit the same entry.
func RerankKey(query string, chunkIDs []string) string {
	hashes := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		hashes[i] = hashRaw(id)
	}
	sort.Strings(hashes)
	return hashRaw(HashText(query) + ":" + strings.Join(hashes, ":"))
}
