package config

import "fmt"

// Validate checks all configuration values and fails fast with a
// sentinel-wrapped error on the first problem found.
func (c *Config) Validate() error {
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("%w: %v not in [0,1]", ErrInvalidConfidenceFloor, c.ConfidenceFloor)
	}
	if c.LowConfidenceTurns < 1 {
		return fmt.Errorf("%w: low_confidence_turns must be >= 1, got %d", ErrInvalidLowConfidenceTurns, c.LowConfidenceTurns)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k %d not in [1,50]", ErrInvalidTopK, c.TopK)
	}
	if c.SimilarityFloor < 0 || c.SimilarityFloor > 1 {
		return fmt.Errorf("%w: similarity_floor %v not in [0,1]", ErrInvalidSimilarityFloor, c.SimilarityFloor)
	}
	// hnsw indexes cap at 2000 dimensions.
	if c.EmbeddingDim < 1 || c.EmbeddingDim > 2000 {
		return fmt.Errorf("%w: embedding_dim %d not in [1,2000]", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}

	if c.BreakerThreshold < 1 {
		return fmt.Errorf("%w: threshold must be >= 1, got %d", ErrInvalidBreaker, c.BreakerThreshold)
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("%w: cooldown must be positive, got %v", ErrInvalidBreaker, c.BreakerCooldown)
	}
	if c.LimiterCapacity < 1 {
		return fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidLimiter, c.LimiterCapacity)
	}
	if c.LimiterRefill <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %v", ErrInvalidLimiter, c.LimiterRefill)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0, got %d", ErrInvalidRetry, c.MaxRetries)
	}
	if c.BackoffBase <= 0 || c.BackoffCeiling < c.BackoffBase {
		return fmt.Errorf("%w: backoff base %v / ceiling %v", ErrInvalidRetry, c.BackoffBase, c.BackoffCeiling)
	}

	if c.HistoryWindow < 1 {
		return fmt.Errorf("%w: history_window must be >= 1, got %d", ErrInvalidHistoryWindow, c.HistoryWindow)
	}
	if c.HistoryCharBudget < 1 {
		return fmt.Errorf("%w: history_char_budget must be >= 1, got %d", ErrInvalidHistoryWindow, c.HistoryCharBudget)
	}
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("%w: idle_threshold must be positive, got %v", ErrInvalidLifecycle, c.IdleThreshold)
	}
	if c.MaxInboundChars < 1 || c.MaxOutboundChars < 1 {
		return fmt.Errorf("%w: message length caps must be >= 1", ErrInvalidLifecycle)
	}
	if c.ResponseCacheTTL < 0 {
		return fmt.Errorf("%w: response_cache_ttl must be >= 0, got %v", ErrInvalidLifecycle, c.ResponseCacheTTL)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgres)
	}

	return nil
}
