package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/log"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

// fakeSearchStore serves canned search results and records usage
// increments.
type fakeSearchStore struct {
	results    []Result
	searchErr  error
	usageCalls [][]string
}

func (f *fakeSearchStore) UpsertDocument(ctx context.Context, doc Document) error { return nil }
func (f *fakeSearchStore) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	return nil
}
func (f *fakeSearchStore) DeleteDocument(ctx context.Context, documentID string) error { return nil }

func (f *fakeSearchStore) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]Result, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeSearchStore) IncrementUsage(ctx context.Context, documentIDs []string) error {
	f.usageCalls = append(f.usageCalls, documentIDs)
	return nil
}

func TestRetrieveFiltersAndOrders(t *testing.T) {
	t.Parallel()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	store := &fakeSearchStore{results: []Result{
		{ChunkID: "c1", DocumentID: "doc-b", Content: "b", Similarity: 0.9, UpdatedAt: older},
		{ChunkID: "c2", DocumentID: "doc-a", Content: "a", Similarity: 0.9, UpdatedAt: newer},
		{ChunkID: "c3", DocumentID: "doc-c", Content: "c", Similarity: 0.95, UpdatedAt: older},
		{ChunkID: "c4", DocumentID: "doc-d", Content: "d", Similarity: 0.5, UpdatedAt: newer},
	}}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, RetrieverConfig{TopK: 3, SimilarityFloor: 0.75}, log.NewNop())

	got, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	// doc-d is below the floor; ties between doc-a and doc-b break
	// toward the fresher document.
	wantOrder := []string{"doc-c", "doc-a", "doc-b"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].DocumentID != want {
			t.Errorf("result %d = %s, want %s", i, got[i].DocumentID, want)
		}
	}
}

func TestRetrieveEmptyCorpusIsNotAnError(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, DefaultRetrieverConfig(), log.NewNop())

	got, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
	if len(store.usageCalls) != 0 {
		t.Errorf("usage incremented %d times on empty retrieval, want 0", len(store.usageCalls))
	}
}

func TestRetrieveBelowFloorIsEmpty(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{results: []Result{
		{DocumentID: "doc-a", Similarity: 0.2},
		{DocumentID: "doc-b", Similarity: 0.6},
	}}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, RetrieverConfig{TopK: 3, SimilarityFloor: 0.75}, log.NewNop())

	got, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results, want 0 below the floor", len(got))
	}
}

func TestRetrieveEmbedFailureDegrades(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{results: []Result{{DocumentID: "doc-a", Similarity: 0.9}}}
	r := NewRetriever(&fakeEmbedder{err: errors.New("embedding down")}, store, DefaultRetrieverConfig(), log.NewNop())

	got, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want graceful degradation", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil without embedding", got)
	}
}

func TestRetrieveIncrementsUsageOncePerDocument(t *testing.T) {
	t.Parallel()

	// Two chunks of doc-a retrieved together must bump doc-a once.
	store := &fakeSearchStore{results: []Result{
		{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.95},
		{ChunkID: "c2", DocumentID: "doc-a", Similarity: 0.9},
		{ChunkID: "c3", DocumentID: "doc-b", Similarity: 0.85},
	}}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, RetrieverConfig{TopK: 3, SimilarityFloor: 0.75}, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "query"); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(store.usageCalls) != 1 {
		t.Fatalf("IncrementUsage called %d times, want 1", len(store.usageCalls))
	}
	got := store.usageCalls[0]
	want := []string{"doc-a", "doc-b"}
	if len(got) != len(want) {
		t.Fatalf("incremented %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("incremented %v, want %v", got, want)
		}
	}
}

func TestRetrieveSearchErrorIsFatal(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{searchErr: errors.New("database down")}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, DefaultRetrieverConfig(), log.NewNop())

	if _, err := r.Retrieve(context.Background(), "query"); err == nil {
		t.Fatal("Retrieve() should surface store failures")
	}
}
