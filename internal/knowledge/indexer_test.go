package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/log"
)

type recordingStore struct {
	fakeSearchStore

	docs   []Document
	chunks map[string][]Chunk
}

func (r *recordingStore) UpsertDocument(ctx context.Context, doc Document) error {
	r.docs = append(r.docs, doc)
	return nil
}

func (r *recordingStore) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	if r.chunks == nil {
		r.chunks = make(map[string][]Chunk)
	}
	r.chunks[documentID] = chunks
	return nil
}

func TestIndex(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	ix := NewIndexer(&fakeEmbedder{vec: []float32{1, 0}}, store, NewChunker(10, 2), log.NewNop())

	doc, err := ix.Index(context.Background(), Document{
		Title:   "Care guide",
		Content: strings.Repeat("wash cold ", 5), // 50 runes
	})
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if doc.ID == "" {
		t.Error("Index() should assign an ID")
	}
	if doc.UpdatedAt.IsZero() || doc.CreatedAt.IsZero() {
		t.Error("Index() should stamp timestamps")
	}
	if len(store.docs) != 1 {
		t.Fatalf("upserted %d documents, want 1", len(store.docs))
	}

	chunks := store.chunks[doc.ID]
	if len(chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d ordinal = %d", i, c.Ordinal)
		}
		if c.DocumentID != doc.ID {
			t.Errorf("chunk %d document = %s, want %s", i, c.DocumentID, doc.ID)
		}
		if len(c.Embedding) == 0 {
			t.Errorf("chunk %d has no embedding", i)
		}
	}
}

func TestIndexEmbedFailureAborts(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	ix := NewIndexer(&fakeEmbedder{err: errors.New("embedding down")}, store, NewChunker(10, 2), log.NewNop())

	if _, err := ix.Index(context.Background(), Document{Content: "some content"}); err == nil {
		t.Fatal("Index() should fail when embedding fails")
	}
	if len(store.docs) != 0 {
		t.Error("no document should be written when embedding fails")
	}
}
