// Package ingest turns source documents into embedded chunks and keeps
// the in-memory index in sync with the persisted chunk store.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/quill0/quill/internal/index"
	"github.com/quill0/quill/internal/model"
)

const (
	// DefaultChunkTokens is the target chunk size.
	DefaultChunkTokens = 300

	// DefaultOverlapTokens is how much trailing text from the previous
	// chunk is prepended to the next one.
	DefaultOverlapTokens = 50
)

// Chunker splits markdown documents into chunks sized for retrieval.
// Splits happen at heading boundaries first, then at paragraph
// boundaries; headings carry into each chunk's Section.
type Chunker struct {
	MaxTokens     int
	OverlapTokens int
}

// NewChunker creates a Chunker with default sizing.
func NewChunker() *Chunker {
	return &Chunker{
		MaxTokens:     DefaultChunkTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// Chunk splits content into chunks with deterministic IDs derived from
// source and position. Embeddings are left empty for the caller to fill.
func (c *Chunker) Chunk(source, content string) []index.Chunk {
	var chunks []index.Chunk
	for _, sec := range splitSections(content) {
		for _, text := range c.splitParagraphs(sec.body) {
			chunks = append(chunks, index.Chunk{
				Source:   source,
				Content:  text,
				Section:  sec.heading,
				Position: len(chunks),
			})
		}
	}
	for i := range chunks {
		chunks[i].ID = chunkID(source, chunks[i].Position)
	}
	return chunks
}

// chunkID derives a stable identifier so re-ingesting an unchanged
// document produces the same IDs (and the same cache keys downstream).
func chunkID(source string, position int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, position)))
	return hex.EncodeToString(sum[:])[:16]
}

type section struct {
	heading string
	body    string
}

// splitSections splits markdown at heading lines, keeping the heading
// text (without the marker) as the section name.
func splitSections(content string) []section {
	var sections []section
	current := section{}
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			current.body = text
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			current = section{heading: strings.TrimSpace(strings.TrimLeft(line, "# "))}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// splitParagraphs packs paragraphs into chunks up to MaxTokens, carrying
// OverlapTokens of trailing text between consecutive chunks. A single
// oversized paragraph becomes its own chunk rather than being split
// mid-sentence.
func (c *Chunker) splitParagraphs(body string) []string {
	paragraphs := strings.Split(body, "\n\n")

	var out []string
	var buf strings.Builder
	bufTokens := 0

	emit := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			out = append(out, text)
		}
		buf.Reset()
		bufTokens = 0
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pTokens := model.EstimateTokens(p)

		if bufTokens > 0 && bufTokens+pTokens > c.MaxTokens {
			overlap := tailTokens(buf.String(), c.OverlapTokens)
			emit()
			if overlap != "" {
				buf.WriteString(overlap)
				buf.WriteString("\n\n")
				bufTokens = model.EstimateTokens(overlap)
			}
		}

		buf.WriteString(p)
		buf.WriteString("\n\n")
		bufTokens += pTokens
	}
	emit()
	return out
}

// tailTokens returns the last complete paragraph of text, capped at
// roughly maxTokens.
func tailTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	last := strings.TrimSpace(paragraphs[len(paragraphs)-1])
	if model.EstimateTokens(last) > maxTokens {
		return ""
	}
	return last
}
