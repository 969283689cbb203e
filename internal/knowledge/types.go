// Package knowledge manages the product knowledge base: chunking
// documents, embedding chunks, and retrieving grounding snippets by
// vector similarity.
package knowledge

import (
	"context"
	"time"
)

// Document is one knowledge base entry, e.g. a product page or FAQ
// answer.
type Document struct {
	ID         string
	Title      string
	Content    string
	Tags       []string
	UsageCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is one embeddable slice of a document.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	Embedding  []float32
}

// Result is one retrieved snippet with its similarity to the query.
type Result struct {
	ChunkID    string
	DocumentID string
	Title      string
	Content    string
	Similarity float64
	UpdatedAt  time.Time
}

// Store is the persistence the knowledge layer needs. Implemented by
// the postgres and memory stores.
type Store interface {
	// UpsertDocument inserts or updates a document by ID.
	UpsertDocument(ctx context.Context, doc Document) error

	// ReplaceChunks atomically swaps the chunk set of a document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error

	// SearchChunks returns up to limit chunks nearest to embedding,
	// most similar first.
	SearchChunks(ctx context.Context, embedding []float32, limit int) ([]Result, error)

	// IncrementUsage bumps the usage counter of each document once.
	IncrementUsage(ctx context.Context, documentIDs []string) error

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, documentID string) error
}

// Embedder produces an embedding vector for text. Satisfied by the
// resilience router.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
