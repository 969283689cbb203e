package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/intent"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/sanitize"
)

var tracer = otel.Tracer("feelori/conversation")

// Retriever is the slice of the knowledge layer the engine needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]knowledge.Result, error)
}

// EngineConfig tunes escalation and idle handling.
type EngineConfig struct {
	// LowConfidenceTurns is how many consecutive turns may classify
	// below the confidence floor before the conversation escalates.
	LowConfidenceTurns int
	// IdleThreshold is how long an active conversation may sit
	// without activity before SweepIdle parks it for a human.
	IdleThreshold time.Duration
	// MaxInboundChars caps the sanitized inbound message length.
	MaxInboundChars int
	// ReplyCacheTTL is how long a synthesized reply is reused for a
	// repeated message in the same conversation. Zero disables the
	// cache.
	ReplyCacheTTL time.Duration
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LowConfidenceTurns: 3,
		IdleThreshold:      10 * time.Minute,
		MaxInboundChars:    4096,
		ReplyCacheTTL:      5 * time.Minute,
	}
}

// Engine routes one inbound message through the full pipeline and owns
// all conversation state transitions. Turns for the same conversation
// are serialized; turns for different conversations run concurrently.
type Engine struct {
	store       Store
	sanitizer   *sanitize.Sanitizer
	classifier  *intent.Classifier
	escalation  *intent.EscalationMatcher
	retriever   Retriever
	synthesizer *Synthesizer
	admission   *resilience.KeyedLimiter
	cache       *ReplyCache
	cfg         EngineConfig
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates an engine, applying defaults for zero config
// values.
func NewEngine(
	store Store,
	classifier *intent.Classifier,
	escalation *intent.EscalationMatcher,
	retriever Retriever,
	synthesizer *Synthesizer,
	admission *resilience.KeyedLimiter,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	def := DefaultEngineConfig()
	if cfg.LowConfidenceTurns <= 0 {
		cfg.LowConfidenceTurns = def.LowConfidenceTurns
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = def.IdleThreshold
	}
	if cfg.MaxInboundChars <= 0 {
		cfg.MaxInboundChars = def.MaxInboundChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:       store,
		sanitizer:   sanitize.New(cfg.MaxInboundChars),
		classifier:  classifier,
		escalation:  escalation,
		retriever:   retriever,
		synthesizer: synthesizer,
		admission:   admission,
		cfg:         cfg,
		logger:      logger,
		locks:       make(map[string]*convLock),
	}
	if cfg.ReplyCacheTTL > 0 {
		e.cache = NewReplyCache(cfg.ReplyCacheTTL)
	}
	return e
}

// lockConversation serializes processing per conversation ID. The
// returned function releases the lock and drops the entry once no
// turn is waiting on it.
func (e *Engine) lockConversation(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &convLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

// Process handles one inbound customer message end to end and returns
// the reply contract. Resilience failures escalate the conversation
// and still return a successful Outbound with a canned reply;
// validation and persistence failures return an error with no state
// committed for the turn.
func (e *Engine) Process(ctx context.Context, in Inbound) (*Outbound, error) {
	ctx, span := tracer.Start(ctx, "conversation.process", trace.WithAttributes(
		attribute.String("conversation.id", in.ConversationID),
		attribute.String("conversation.channel", in.Channel),
	))
	defer span.End()

	cleaned, err := e.sanitizer.Clean(in.Text)
	if err != nil {
		return nil, fmt.Errorf("validate inbound for conversation %s: %w", in.ConversationID, err)
	}

	// Local admission per customer. A refusal carries retry-after
	// and never touches conversation state or breakers.
	if e.admission != nil {
		if err := e.admission.Allow(in.CustomerID); err != nil {
			return nil, err
		}
	}

	unlock := e.lockConversation(in.ConversationID)
	defer unlock()

	conv, err := e.loadOrCreate(ctx, in)
	if err != nil {
		return nil, err
	}

	// Duplicate delivery: replay the reply the first delivery got.
	if in.MessageID != "" {
		for _, m := range conv.Messages {
			if m.Role == RoleCustomer && m.ExternalID == in.MessageID {
				if replay, ok := conv.LastAssistantAfter(in.MessageID); ok {
					e.logger.Debug("replaying reply for duplicate delivery",
						"conversation_id", conv.ID,
						"message_id", in.MessageID,
					)
					return e.outbound(conv, replay.Text), nil
				}
				return nil, fmt.Errorf("conversation %s message %s: %w", conv.ID, in.MessageID, ErrDuplicateMessage)
			}
		}
	}

	if err := e.activate(conv); err != nil {
		return nil, err
	}

	result := e.classifier.Classify(cleaned)
	conv.Intent = result.Intent
	conv.Confidence = result.Confidence
	span.SetAttributes(
		attribute.String("conversation.intent", result.Intent),
		attribute.Float64("conversation.confidence", result.Confidence),
	)

	now := in.ReceivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if err := e.store.AppendMessage(ctx, Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleCustomer,
		Text:           cleaned,
		ExternalID:     in.MessageID,
		Intent:         result.Intent,
		CreatedAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("append customer message: %w", err)
	}
	conv.LastActivityAt = now

	// An explicit request for a human wins over everything else.
	if e.escalation.Match(cleaned) {
		return e.escalate(ctx, conv, ReplyHandoff, "escalation keyword")
	}

	if result.Confidence < e.classifier.Floor() {
		conv.LowConfidenceTurns++
		if conv.LowConfidenceTurns >= e.cfg.LowConfidenceTurns {
			return e.escalate(ctx, conv, ReplyHandoff, "repeated low confidence")
		}
	} else {
		conv.LowConfidenceTurns = 0
	}

	reply, cached := e.cachedReply(conv.ID, cleaned)
	if !cached {
		snippets, err := e.retriever.Retrieve(ctx, cleaned)
		if err != nil {
			return nil, fmt.Errorf("retrieve knowledge: %w", err)
		}

		reply, err = e.synthesizer.Reply(ctx, conv, cleaned, snippets)
		if err != nil {
			e.logger.Warn("completion failed, escalating",
				"conversation_id", conv.ID,
				"error", err,
			)
			return e.escalate(ctx, conv, ReplyUnavailable, "provider unavailable")
		}
		if e.cache != nil {
			e.cache.Set(conv.ID, cleaned, reply)
		}
	}

	if e.synthesizer.IsResolution(reply) && !conv.Escalated {
		if err := conv.TransitionTo(StateResolved); err != nil {
			return nil, err
		}
	}

	if err := e.commitReply(ctx, conv, reply); err != nil {
		return nil, err
	}
	return e.outbound(conv, reply), nil
}

// cachedReply looks up a memoized reply for a repeated message.
func (e *Engine) cachedReply(conversationID, cleaned string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	reply, ok := e.cache.Get(conversationID, cleaned)
	if ok {
		e.logger.Debug("serving cached reply",
			"conversation_id", conversationID,
		)
	}
	return reply, ok
}

// loadOrCreate fetches the conversation or creates it in the new
// state.
func (e *Engine) loadOrCreate(ctx context.Context, in Inbound) (*Conversation, error) {
	conv, err := e.store.GetConversation(ctx, in.ConversationID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load conversation %s: %w", in.ConversationID, err)
	}

	now := time.Now().UTC()
	conv = &Conversation{
		ID:             in.ConversationID,
		CustomerID:     in.CustomerID,
		Channel:        in.Channel,
		State:          StateNew,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation %s: %w", in.ConversationID, err)
	}
	return conv, nil
}

// activate moves the conversation to active for this turn. Terminal
// states reopen as a fresh episode: the escalation flag and the low
// confidence counter reset.
func (e *Engine) activate(conv *Conversation) error {
	if conv.State == StateActive {
		return nil
	}
	reopened := conv.State.Terminal()
	if err := conv.TransitionTo(StateActive); err != nil {
		return err
	}
	if reopened {
		conv.Escalated = false
		conv.LowConfidenceTurns = 0
	}
	return nil
}

// escalate hands the conversation to a human: flag, transition, canned
// reply, commit. The caller still receives a successful Outbound.
func (e *Engine) escalate(ctx context.Context, conv *Conversation, reply, reason string) (*Outbound, error) {
	conv.Escalated = true
	if err := conv.TransitionTo(StateEscalated); err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).AddEvent("escalated",
		trace.WithAttributes(attribute.String("escalation.reason", reason)),
	)
	e.logger.Info("conversation escalated",
		"conversation_id", conv.ID,
		"customer_id", conv.CustomerID,
		"reason", reason,
	)
	if err := e.commitReply(ctx, conv, reply); err != nil {
		return nil, err
	}
	return e.outbound(conv, reply), nil
}

// commitReply appends the assistant message and persists the
// conversation fields touched this turn.
func (e *Engine) commitReply(ctx context.Context, conv *Conversation, reply string) error {
	now := time.Now().UTC()
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Text:           reply,
		Intent:         conv.Intent,
		CreatedAt:      now,
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivityAt = now
	conv.UpdatedAt = now
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return fmt.Errorf("update conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (e *Engine) outbound(conv *Conversation, reply string) *Outbound {
	return &Outbound{
		ConversationID: conv.ID,
		ReplyText:      reply,
		Intent:         conv.Intent,
		Confidence:     conv.Confidence,
		State:          conv.State,
		Escalated:      conv.Escalated,
	}
}

// SweepIdle parks active conversations with no activity since the idle
// threshold for a human and returns how many were parked. Meant to run
// periodically from a background goroutine.
func (e *Engine) SweepIdle(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-e.cfg.IdleThreshold)
	idle, err := e.store.ListByStateIdleSince(ctx, StateActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle conversations: %w", err)
	}

	parked := 0
	for _, conv := range idle {
		unlock := e.lockConversation(conv.ID)
		err := func() error {
			defer unlock()

			fresh, err := e.store.GetConversation(ctx, conv.ID)
			if err != nil {
				return err
			}
			// A turn may have landed between listing and locking.
			if fresh.State != StateActive || fresh.LastActivityAt.After(cutoff) {
				return nil
			}
			if err := fresh.TransitionTo(StatePendingHuman); err != nil {
				return err
			}
			fresh.UpdatedAt = now
			if err := e.store.UpdateConversation(ctx, fresh); err != nil {
				return err
			}
			parked++
			return nil
		}()
		if err != nil {
			return parked, fmt.Errorf("park conversation %s: %w", conv.ID, err)
		}
	}
	return parked, nil
}

// Resume returns a parked conversation to the assistant.
func (e *Engine) Resume(ctx context.Context, conversationID string) error {
	return e.movePending(ctx, conversationID, StateActive, false)
}

// EscalatePending hands a parked conversation to a human agent.
func (e *Engine) EscalatePending(ctx context.Context, conversationID string) error {
	return e.movePending(ctx, conversationID, StateEscalated, true)
}

func (e *Engine) movePending(ctx context.Context, conversationID string, to State, escalated bool) error {
	unlock := e.lockConversation(conversationID)
	defer unlock()

	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if conv.State != StatePendingHuman {
		return &InvalidTransitionError{ConversationID: conversationID, From: conv.State, To: to}
	}
	if err := conv.TransitionTo(to); err != nil {
		return err
	}
	conv.Escalated = escalated
	conv.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return fmt.Errorf("update conversation %s: %w", conversationID, err)
	}
	return nil
}
