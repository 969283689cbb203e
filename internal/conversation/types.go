// Package conversation implements the support conversation lifecycle:
// the state machine, prompt synthesis, and the engine that routes one
// inbound customer message through sanitization, intent
// classification, knowledge retrieval, and the model provider.
package conversation

import (
	"context"
	"errors"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation history. History is
// append-only. ExternalID carries the channel's message ID for
// customer messages and is used for duplicate delivery detection.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Text           string
	ExternalID     string
	Intent         string
	CreatedAt      time.Time
}

// Conversation is one customer support thread. The engine owns it
// exclusively while a turn is being processed.
type Conversation struct {
	ID         string
	CustomerID string
	Channel    string
	State      State
	Intent     string
	Confidence float64
	Escalated  bool

	// LowConfidenceTurns counts consecutive turns classified below
	// the confidence floor. Reset whenever a turn clears the floor.
	LowConfidenceTurns int

	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Messages is the ordered history, oldest first.
	Messages []Message
}

// LastAssistantAfter returns the first assistant message that follows
// the customer message with the given external ID, for replaying
// replies to duplicate deliveries.
func (c *Conversation) LastAssistantAfter(externalID string) (Message, bool) {
	for i, m := range c.Messages {
		if m.Role != RoleCustomer || m.ExternalID != externalID {
			continue
		}
		for _, later := range c.Messages[i+1:] {
			if later.Role == RoleAssistant {
				return later, true
			}
		}
		return Message{}, false
	}
	return Message{}, false
}

// Inbound is one customer message entering the engine.
type Inbound struct {
	ConversationID string
	CustomerID     string
	Channel        string
	MessageID      string
	Text           string
	ReceivedAt     time.Time
}

// Outbound is the engine's reply contract. Resilience failures still
// produce an Outbound with Escalated set; raw provider errors never
// reach the customer.
type Outbound struct {
	ConversationID string
	ReplyText      string
	Intent         string
	Confidence     float64
	State          State
	Escalated      bool
}

// Store errors shared by implementations.
var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrDuplicateMessage is returned when a message with the same
	// external ID was already appended to the conversation.
	ErrDuplicateMessage = errors.New("duplicate message")
)

// Store is the persistence the engine needs. Failures are fatal for
// the current turn; the engine never commits partial state.
type Store interface {
	// GetConversation loads a conversation with its full history.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// CreateConversation persists a new conversation.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// AppendMessage appends one message to the history. An assistant
	// message has an empty ExternalID; customer messages with an
	// ExternalID already present fail with ErrDuplicateMessage.
	AppendMessage(ctx context.Context, msg Message) error

	// UpdateConversation persists the mutable conversation fields
	// (state, intent, flags, counters, timestamps).
	UpdateConversation(ctx context.Context, conv *Conversation) error

	// ListByStateIdleSince returns conversations in state whose last
	// activity is before the cutoff.
	ListByStateIdleSince(ctx context.Context, state State, cutoff time.Time) ([]*Conversation, error)
}
