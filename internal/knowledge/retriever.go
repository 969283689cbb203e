package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// RetrieverConfig configures retrieval behavior.
type RetrieverConfig struct {
	TopK            int           // Maximum snippets returned
	SimilarityFloor float64       // Snippets below this score are dropped
	SearchTimeout   time.Duration // Budget per search query
}

// DefaultRetrieverConfig returns the production defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:            3,
		SimilarityFloor: 0.75,
		SearchTimeout:   10 * time.Second,
	}
}

// Retriever answers queries with the most similar knowledge snippets.
// A failed embedding degrades to an empty result instead of failing
// the conversation turn; the provider's breaker already records the
// failure upstream.
type Retriever struct {
	embedder Embedder
	store    Store
	cfg      RetrieverConfig
	logger   *slog.Logger
}

// NewRetriever creates a retriever, applying defaults for zero config
// values.
func NewRetriever(embedder Embedder, store Store, cfg RetrieverConfig, logger *slog.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = 0.75
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Retrieve returns up to TopK snippets at or above the similarity
// floor, most similar first. An empty result is not an error. Each
// distinct source document's usage counter is bumped exactly once per
// call.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, skipping retrieval", "error", err)
		return nil, nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	// Over-fetch so floor filtering still leaves TopK candidates.
	candidates, err := r.store.SearchChunks(searchCtx, embedding, r.cfg.TopK*4)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Similarity >= r.cfg.SimilarityFloor {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	// Deterministic order: similarity, then freshness, then ID.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		if !kept[i].UpdatedAt.Equal(kept[j].UpdatedAt) {
			return kept[i].UpdatedAt.After(kept[j].UpdatedAt)
		}
		return kept[i].DocumentID < kept[j].DocumentID
	})
	if len(kept) > r.cfg.TopK {
		kept = kept[:r.cfg.TopK]
	}

	seen := make(map[string]struct{}, len(kept))
	var docIDs []string
	for _, c := range kept {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		docIDs = append(docIDs, c.DocumentID)
	}
	if err := r.store.IncrementUsage(ctx, docIDs); err != nil {
		// Usage counters are advisory; retrieval still succeeded.
		r.logger.Warn("usage increment failed", "documents", docIDs, "error", err)
	}

	return kept, nil
}
