package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// VectorDimension is the embedding dimension used throughout the pipeline.
// gemini-embedding-001 outputs 3072 dimensions by default, but supports
// truncation to 768 via OutputDimensionality (Matryoshka Representation
// Learning). The pgvector schema and in-memory index both use 768.
const VectorDimension int32 = 768

const (
	// EmbedTimeout bounds a single embedding attempt.
	EmbedTimeout = 10 * time.Second

	// GenerateTimeout bounds a single generation attempt.
	// Generation is slower than embedding; grounded answers over several
	// chunks of context routinely take double-digit seconds.
	GenerateTimeout = 60 * time.Second
)

// Embedder produces embedding vectors for text.
// Consumers that only embed should depend on this, not on Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces text completions for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenConfig carries the generation sampling parameters applied to every
// Generate call. Zero values leave the model's own defaults in place.
type GenConfig struct {
	Temperature float32
	MaxTokens   int32
}

// Client wraps Genkit model access with per-call timeouts, rate limiting,
// and retry on transient errors. It satisfies both Embedder and Generator.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	genkit    *genkit.Genkit
	embedder  ai.Embedder
	modelName string
	gen       GenConfig
	limiter   *rate.Limiter
	retry     RetryConfig
	logger    *slog.Logger
}

// NewClient creates a Client. modelName must be a fully qualified Genkit
// model name (e.g. "googleai/gemini-2.5-flash"). limiter may be nil to
// disable rate limiting.
func NewClient(g *genkit.Genkit, embedder ai.Embedder, modelName string, gen GenConfig, limiter *rate.Limiter, logger *slog.Logger) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if gen.Temperature < 0 || gen.Temperature > 2 {
		return nil, fmt.Errorf("temperature %v out of range [0, 2]", gen.Temperature)
	}
	if gen.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens must not be negative")
	}
	return &Client{
		genkit:    g,
		embedder:  embedder,
		modelName: modelName,
		gen:       gen,
		limiter:   limiter,
		retry:     DefaultRetryConfig(),
		logger:    logger,
	}, nil
}

// Embed generates a vector embedding for the given text.
// The returned vector has VectorDimension elements.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embed: %w: empty text", ErrInvalidInput)
	}

	return withRetry(ctx, c.retry, c.limiter, c.logger, func(ctx context.Context) ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
		defer cancel()

		dim := VectorDimension
		resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
			Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
			Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
		})
		if err != nil {
			return nil, fmt.Errorf("embedding text: %w", err)
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding response")
		}
		return resp.Embeddings[0].Embedding, nil
	})
}

// Generate produces a text completion for the given prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("generate: %w: empty prompt", ErrInvalidInput)
	}

	return withRetry(ctx, c.retry, c.limiter, c.logger, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, GenerateTimeout)
		defer cancel()

		opts := []ai.GenerateOption{
			ai.WithModelName(c.modelName),
			ai.WithPrompt(prompt),
		}
		if c.gen != (GenConfig{}) {
			cfg := &genai.GenerateContentConfig{MaxOutputTokens: c.gen.MaxTokens}
			if c.gen.Temperature > 0 {
				cfg.Temperature = genai.Ptr(c.gen.Temperature)
			}
			opts = append(opts, ai.WithConfig(cfg))
		}
		resp, err := genkit.Generate(ctx, c.genkit, opts...)
		if err != nil {
			return "", fmt.Errorf("generating response: %w", err)
		}
		return resp.Text(), nil
	})
}
