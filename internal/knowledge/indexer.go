package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Indexer chunks and embeds documents into the store.
type Indexer struct {
	embedder Embedder
	store    Store
	chunker  *Chunker
	logger   *slog.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(embedder Embedder, store Store, chunker *Chunker, logger *slog.Logger) *Indexer {
	if chunker == nil {
		chunker = NewChunker(500, 50)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: embedder, store: store, chunker: chunker, logger: logger}
}

// Index upserts doc and replaces its chunk set with freshly embedded
// chunks. A missing ID is assigned; UpdatedAt is set to now.
func (ix *Indexer) Index(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	pieces := ix.chunker.Split(doc.Content)
	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		embedding, err := ix.embedder.Embed(ctx, piece)
		if err != nil {
			return Document{}, fmt.Errorf("embed chunk %d of document %q: %w", i, doc.ID, err)
		}
		chunks = append(chunks, Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    piece,
			Embedding:  embedding,
		})
	}

	if err := ix.store.UpsertDocument(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}
	if err := ix.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return Document{}, fmt.Errorf("replace chunks for %q: %w", doc.ID, err)
	}

	ix.logger.Debug("indexed document",
		"id", doc.ID,
		"title", doc.Title,
		"chunks", len(chunks),
	)
	return doc, nil
}
