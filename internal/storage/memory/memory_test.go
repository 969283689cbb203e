package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
)

func newConversation(id string, state conversation.State, lastActivity time.Time) *conversation.Conversation {
	return &conversation.Conversation{
		ID:             id,
		CustomerID:     "cust-1",
		Channel:        "whatsapp",
		State:          state,
		LastActivityAt: lastActivity,
	}
}

func TestConversationLifecycle(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("GetConversation(missing) error = %v, want ErrNotFound", err)
	}

	conv := newConversation("c1", conversation.StateNew, time.Now())
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := s.CreateConversation(ctx, conv); err == nil {
		t.Error("CreateConversation() accepted a duplicate ID")
	}

	conv.State = conversation.StateActive
	conv.Intent = "greeting"
	if err := s.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation() error = %v", err)
	}

	got, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.State != conversation.StateActive || got.Intent != "greeting" {
		t.Errorf("stored conversation = %+v, update not applied", got)
	}

	if err := s.UpdateConversation(ctx, newConversation("absent", conversation.StateActive, time.Now())); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("UpdateConversation(absent) error = %v, want ErrNotFound", err)
	}
}

func TestGetConversationReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.CreateConversation(ctx, newConversation("c1", conversation.StateActive, time.Now())); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := s.AppendMessage(ctx, conversation.Message{
		ID: "m1", ConversationID: "c1", Role: conversation.RoleCustomer, Text: "hi",
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	got, _ := s.GetConversation(ctx, "c1")
	got.State = conversation.StateEscalated
	got.Messages[0].Text = "mutated"

	fresh, _ := s.GetConversation(ctx, "c1")
	if fresh.State != conversation.StateActive || fresh.Messages[0].Text != "hi" {
		t.Error("mutating a returned conversation leaked into the store")
	}
}

func TestAppendMessageDuplicateExternalID(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.CreateConversation(ctx, newConversation("c1", conversation.StateActive, time.Now())); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	msg := conversation.Message{
		ID:             "m1",
		ConversationID: "c1",
		Role:           conversation.RoleCustomer,
		ExternalID:     "wa-123",
		Text:           "hi",
	}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	msg.ID = "m2"
	if err := s.AppendMessage(ctx, msg); !errors.Is(err, conversation.ErrDuplicateMessage) {
		t.Errorf("second append error = %v, want ErrDuplicateMessage", err)
	}

	// Assistant messages never carry delivery IDs and are exempt.
	if err := s.AppendMessage(ctx, conversation.Message{
		ID: "m3", ConversationID: "c1", Role: conversation.RoleAssistant, ExternalID: "wa-123", Text: "hello",
	}); err != nil {
		t.Errorf("assistant append error = %v", err)
	}

	if err := s.AppendMessage(ctx, conversation.Message{
		ID: "m4", ConversationID: "missing", Role: conversation.RoleCustomer, Text: "hi",
	}); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("append to missing conversation error = %v, want ErrNotFound", err)
	}
}

func TestListByStateIdleSince(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now()

	for _, c := range []*conversation.Conversation{
		newConversation("b", conversation.StateActive, now.Add(-time.Hour)),
		newConversation("a", conversation.StateActive, now.Add(-time.Hour)),
		newConversation("fresh", conversation.StateActive, now),
		newConversation("parked", conversation.StatePendingHuman, now.Add(-time.Hour)),
	} {
		if err := s.CreateConversation(ctx, c); err != nil {
			t.Fatalf("CreateConversation(%s) error = %v", c.ID, err)
		}
	}

	idle, err := s.ListByStateIdleSince(ctx, conversation.StateActive, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListByStateIdleSince() error = %v", err)
	}
	if len(idle) != 2 || idle[0].ID != "a" || idle[1].ID != "b" {
		ids := make([]string, len(idle))
		for i, c := range idle {
			ids[i] = c.ID
		}
		t.Errorf("idle IDs = %v, want [a b]", ids)
	}
}

func TestSearchChunksOrdering(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	seed := func(docID string, updated time.Time, embedding []float32) {
		t.Helper()
		if err := s.UpsertDocument(ctx, knowledge.Document{ID: docID, Title: docID, UpdatedAt: updated}); err != nil {
			t.Fatalf("UpsertDocument(%s) error = %v", docID, err)
		}
		if err := s.ReplaceChunks(ctx, docID, []knowledge.Chunk{
			{ID: docID + "-0", DocumentID: docID, Content: docID, Embedding: embedding},
		}); err != nil {
			t.Fatalf("ReplaceChunks(%s) error = %v", docID, err)
		}
	}

	// exact match, then two equal-similarity docs split by recency.
	seed("exact", older, []float32{1, 0})
	seed("stale", older, []float32{1, 1})
	seed("recent", newer, []float32{1, 1})

	results, err := s.SearchChunks(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	wantOrder := []string{"exact", "recent", "stale"}
	for i, want := range wantOrder {
		if results[i].DocumentID != want {
			t.Errorf("results[%d].DocumentID = %s, want %s", i, results[i].DocumentID, want)
		}
	}

	limited, err := s.SearchChunks(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("SearchChunks(limit 1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].DocumentID != "exact" {
		t.Errorf("limited results = %+v, want just the exact match", limited)
	}
}

func TestUpsertPreservesUsageAndCreation(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertDocument(ctx, knowledge.Document{ID: "d1", Title: "v1", CreatedAt: created}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if err := s.IncrementUsage(ctx, []string{"d1", "missing"}); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}
	if err := s.UpsertDocument(ctx, knowledge.Document{ID: "d1", Title: "v2"}); err != nil {
		t.Fatalf("re-upsert error = %v", err)
	}

	doc, ok := s.Document("d1")
	if !ok {
		t.Fatal("document d1 missing after upsert")
	}
	if doc.Title != "v2" {
		t.Errorf("Title = %q, want v2", doc.Title)
	}
	if doc.UsageCount != 1 {
		t.Errorf("UsageCount = %d, re-upsert must not reset usage", doc.UsageCount)
	}
	if !doc.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, re-upsert must not reset creation time", doc.CreatedAt)
	}
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if err := s.UpsertDocument(ctx, knowledge.Document{ID: "d1", Title: "doc"}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if err := s.ReplaceChunks(ctx, "d1", []knowledge.Chunk{
		{ID: "d1-0", DocumentID: "d1", Content: "text", Embedding: []float32{1}},
	}); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	if err := s.ReplaceChunks(ctx, "missing", nil); err == nil {
		t.Error("ReplaceChunks() accepted an unknown document")
	}

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if _, ok := s.Document("d1"); ok {
		t.Error("document survived deletion")
	}
	results, err := s.SearchChunks(ctx, []float32{1}, 10)
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("chunks survived document deletion: %+v", results)
	}
}
