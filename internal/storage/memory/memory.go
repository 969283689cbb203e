// Package memory provides an in-memory implementation of the
// conversation and knowledge stores, used for tests and the offline
// REPL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
)

// Store keeps all state in process. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	conversations map[string]*conversation.Conversation
	documents     map[string]knowledge.Document
	chunks        map[string][]knowledge.Chunk // by document ID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*conversation.Conversation),
		documents:     make(map[string]knowledge.Document),
		chunks:        make(map[string][]knowledge.Chunk),
	}
}

// GetConversation implements conversation.Store.
func (s *Store) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, conversation.ErrNotFound)
	}
	return copyConversation(conv), nil
}

// CreateConversation implements conversation.Store.
func (s *Store) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}
	s.conversations[conv.ID] = copyConversation(conv)
	return nil
}

// AppendMessage implements conversation.Store. Customer messages with
// an already-seen external ID fail with ErrDuplicateMessage.
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, conversation.ErrNotFound)
	}
	if msg.Role == conversation.RoleCustomer && msg.ExternalID != "" {
		for _, m := range conv.Messages {
			if m.Role == conversation.RoleCustomer && m.ExternalID == msg.ExternalID {
				return fmt.Errorf("message %s: %w", msg.ExternalID, conversation.ErrDuplicateMessage)
			}
		}
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}

// UpdateConversation implements conversation.Store. Message history is
// owned by AppendMessage and not touched here.
func (s *Store) UpdateConversation(ctx context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conv.ID, conversation.ErrNotFound)
	}
	stored.State = conv.State
	stored.Intent = conv.Intent
	stored.Confidence = conv.Confidence
	stored.Escalated = conv.Escalated
	stored.LowConfidenceTurns = conv.LowConfidenceTurns
	stored.LastActivityAt = conv.LastActivityAt
	stored.UpdatedAt = conv.UpdatedAt
	return nil
}

// ListByStateIdleSince implements conversation.Store.
func (s *Store) ListByStateIdleSince(ctx context.Context, state conversation.State, cutoff time.Time) ([]*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*conversation.Conversation
	for _, conv := range s.conversations {
		if conv.State == state && conv.LastActivityAt.Before(cutoff) {
			out = append(out, copyConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertDocument implements knowledge.Store.
func (s *Store) UpsertDocument(ctx context.Context, doc knowledge.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.documents[doc.ID]; ok {
		doc.UsageCount = existing.UsageCount
		doc.CreatedAt = existing.CreatedAt
	}
	s.documents[doc.ID] = doc
	return nil
}

// ReplaceChunks implements knowledge.Store.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []knowledge.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	s.chunks[documentID] = append([]knowledge.Chunk(nil), chunks...)
	return nil
}

// SearchChunks implements knowledge.Store using exact cosine
// similarity over every stored chunk.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]knowledge.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []knowledge.Result
	for docID, chunks := range s.chunks {
		doc := s.documents[docID]
		for _, c := range chunks {
			results = append(results, knowledge.Result{
				ChunkID:    c.ID,
				DocumentID: docID,
				Title:      doc.Title,
				Content:    c.Content,
				Similarity: knowledge.CosineSimilarity(embedding, c.Embedding),
				UpdatedAt:  doc.UpdatedAt,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if !results[i].UpdatedAt.Equal(results[j].UpdatedAt) {
			return results[i].UpdatedAt.After(results[j].UpdatedAt)
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// IncrementUsage implements knowledge.Store.
func (s *Store) IncrementUsage(ctx context.Context, documentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range documentIDs {
		doc, ok := s.documents[id]
		if !ok {
			continue
		}
		doc.UsageCount++
		s.documents[id] = doc
	}
	return nil
}

// DeleteDocument implements knowledge.Store.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, documentID)
	delete(s.chunks, documentID)
	return nil
}

// Document returns a stored document, for tests.
func (s *Store) Document(id string) (knowledge.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	return doc, ok
}

func copyConversation(conv *conversation.Conversation) *conversation.Conversation {
	out := *conv
	out.Messages = append([]conversation.Message(nil), conv.Messages...)
	return &out
}
