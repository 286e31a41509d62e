package config

import (
	"fmt"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
// A failure here is fatal at startup; it is never a per-query condition.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	for _, th := range []struct {
		name  string
		value float64
	}{
		{"similarity_floor", c.SimilarityFloor},
		{"relevancy_threshold", c.RelevancyThreshold},
		{"duplicate_threshold", c.DuplicateThreshold},
	} {
		if th.value < 0 || th.value > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %.3f", ErrInvalidThreshold, th.name, th.value)
		}
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: retrieval_top_k must be between 1 and 100, got %d", ErrInvalidTopK, c.RetrievalTopK)
	}
	if c.RerankTopK < 1 || c.RerankTopK > c.RetrievalTopK {
		return fmt.Errorf("%w: rerank_top_k must be between 1 and retrieval_top_k (%d), got %d",
			ErrInvalidTopK, c.RetrievalTopK, c.RerankTopK)
	}
	if c.MemoryTopK < 1 || c.MemoryTopK > 20 {
		return fmt.Errorf("%w: memory_top_k must be between 1 and 20, got %d", ErrInvalidTopK, c.MemoryTopK)
	}

	// Caps total work per query at max_iterations+1 search rounds.
	if c.MaxIterations < 0 || c.MaxIterations > 5 {
		return fmt.Errorf("%w: max_iterations must be between 0 and 5, got %d", ErrInvalidIterations, c.MaxIterations)
	}

	if !slices.Contains([]string{FallbackNotFound, FallbackGeneral}, c.FallbackMode) {
		return fmt.Errorf("%w: %q is not valid, must be %q or %q",
			ErrInvalidFallbackMode, c.FallbackMode, FallbackNotFound, FallbackGeneral)
	}

	if c.ResponseTTL <= 0 || c.RelevancyTTL <= 0 || c.RerankTTL <= 0 ||
		c.TransformTTL <= 0 || c.EmbeddingTTL <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("%w: all TTLs must be positive", ErrInvalidTTL)
	}

	if c.MaxHistory < 1 {
		return fmt.Errorf("%w: max_history must be at least 1, got %d", ErrInvalidHistory, c.MaxHistory)
	}
	if c.CompressThreshold <= c.MaxHistory {
		return fmt.Errorf("%w: compress_threshold (%d) must exceed max_history (%d)",
			ErrInvalidHistory, c.CompressThreshold, c.MaxHistory)
	}
	if c.MaxMessageTokens < 1 {
		return fmt.Errorf("%w: max_message_tokens must be at least 1, got %d", ErrInvalidHistory, c.MaxMessageTokens)
	}
	if c.RecentMessages < 1 || c.RecentMessages > c.MaxHistory {
		return fmt.Errorf("%w: recent_messages must be between 1 and max_history (%d), got %d",
			ErrInvalidHistory, c.MaxHistory, c.RecentMessages)
	}

	if c.PostgresHost == "" || c.PostgresDBName == "" {
		return fmt.Errorf("%w: host and database name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: ssl mode %q is not valid, must be one of: %v",
			ErrInvalidPostgres, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
