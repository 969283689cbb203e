// Package postgres persists conversations and the knowledge base in
// PostgreSQL, with pgvector for chunk similarity search.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
)

const uniqueViolation = "23505"

// NewPool opens a pgx pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Store implements the conversation and knowledge store contracts.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetConversation implements conversation.Store.
func (s *Store) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, customer_id, channel, state, intent, confidence,
		       escalated, low_confidence_turns, last_activity_at,
		       created_at, updated_at
		FROM conversations
		WHERE id = $1`, id).Scan(
		&conv.ID, &conv.CustomerID, &conv.Channel, &conv.State,
		&conv.Intent, &conv.Confidence, &conv.Escalated,
		&conv.LowConfidenceTurns, &conv.LastActivityAt,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, conversation.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, text, external_id, intent, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text, &m.ExternalID, &m.Intent, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &conv, nil
}

// CreateConversation implements conversation.Store.
func (s *Store) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (
			id, customer_id, channel, state, intent, confidence,
			escalated, low_confidence_turns, last_activity_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		conv.ID, conv.CustomerID, conv.Channel, conv.State, conv.Intent,
		conv.Confidence, conv.Escalated, conv.LowConfidenceTurns,
		conv.LastActivityAt, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// AppendMessage implements conversation.Store. The partial unique
// index on customer external IDs turns duplicate deliveries into
// ErrDuplicateMessage.
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, text, external_id, intent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Text, msg.ExternalID, msg.Intent, msg.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("message %s: %w", msg.ExternalID, conversation.ErrDuplicateMessage)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateConversation implements conversation.Store.
func (s *Store) UpdateConversation(ctx context.Context, conv *conversation.Conversation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET state = $2, intent = $3, confidence = $4, escalated = $5,
		    low_confidence_turns = $6, last_activity_at = $7, updated_at = $8
		WHERE id = $1`,
		conv.ID, conv.State, conv.Intent, conv.Confidence, conv.Escalated,
		conv.LowConfidenceTurns, conv.LastActivityAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", conv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, conversation.ErrNotFound)
	}
	return nil
}

// ListByStateIdleSince implements conversation.Store. Histories are
// not loaded; callers refetch before mutating.
func (s *Store) ListByStateIdleSince(ctx context.Context, state conversation.State, cutoff time.Time) ([]*conversation.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, customer_id, channel, state, intent, confidence,
		       escalated, low_confidence_turns, last_activity_at,
		       created_at, updated_at
		FROM conversations
		WHERE state = $1 AND last_activity_at < $2
		ORDER BY id`, state, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select idle conversations: %w", err)
	}
	defer rows.Close()

	var out []*conversation.Conversation
	for rows.Next() {
		var conv conversation.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.CustomerID, &conv.Channel, &conv.State,
			&conv.Intent, &conv.Confidence, &conv.Escalated,
			&conv.LowConfidenceTurns, &conv.LastActivityAt,
			&conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// UpsertDocument implements knowledge.Store. Usage count and creation
// time are preserved on conflict.
func (s *Store) UpsertDocument(ctx context.Context, doc knowledge.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, content, tags, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    content = EXCLUDED.content,
		    tags = EXCLUDED.tags,
		    updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Title, doc.Content, doc.Tags, doc.UsageCount,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// ReplaceChunks implements knowledge.Store, swapping the chunk set in
// one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []knowledge.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, ordinal, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.DocumentID, c.Ordinal, c.Content, pgvector.NewVector(c.Embedding),
		); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", c.Ordinal, documentID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SearchChunks implements knowledge.Store using cosine distance.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]knowledge.Result, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, d.title, c.content,
		       1 - (c.embedding <=> $1) AS similarity,
		       d.updated_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1, d.updated_at DESC, c.document_id
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []knowledge.Result
	for rows.Next() {
		var r knowledge.Result
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Title, &r.Content, &r.Similarity, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// IncrementUsage implements knowledge.Store with a single atomic
// update per call.
func (s *Store) IncrementUsage(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET usage_count = usage_count + 1
		WHERE id = ANY($1)`, documentIDs)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// DeleteDocument implements knowledge.Store; chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}
