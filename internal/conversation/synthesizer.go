package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/provider"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/sanitize"
)

// Canned replies sent when the assistant cannot produce a real answer.
// The customer never sees a raw provider error.
const (
	// ReplyUnavailable is sent when every provider route failed and
	// the conversation is being escalated.
	ReplyUnavailable = "I'm sorry, I'm having trouble responding right now. I've asked a member of our team to step in and help you shortly."
	// ReplyBusy is sent when the customer is over their local message
	// allowance.
	ReplyBusy = "We're receiving a lot of messages at the moment. Please give me a moment and send that again."
	// ReplyHandoff is sent when the customer explicitly asks for a
	// human.
	ReplyHandoff = "Of course. I'm connecting you with a member of our team who can help you further."
)

// DefaultSystemInstruction is the assistant persona used when the
// configuration does not override it.
const DefaultSystemInstruction = "You are Feelori's shopping assistant on WhatsApp. " +
	"Answer briefly and warmly, ground answers in the provided product knowledge, " +
	"and never invent prices, stock levels, or order details."

// Completer is the slice of the resilience router the synthesizer
// needs.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error)
}

// SynthesizerConfig bounds the prompt and the reply.
type SynthesizerConfig struct {
	SystemInstruction string
	HistoryWindow     int           // Most recent messages considered
	HistoryCharBudget int           // Oldest messages dropped past this
	MaxReplyChars     int           // Outbound reply cap
	MaxTokens         int           // Completion token cap
	Temperature       *float32      // Completion temperature; nil applies the default, zero is honored
	CompletionTimeout time.Duration // Deadline per completion call
	ResolutionPhrases []string      // Signals that close the episode
}

// DefaultSynthesizerConfig returns the production defaults.
func DefaultSynthesizerConfig() SynthesizerConfig {
	temperature := float32(0.4)
	return SynthesizerConfig{
		SystemInstruction: DefaultSystemInstruction,
		HistoryWindow:     10,
		HistoryCharBudget: 4000,
		MaxReplyChars:     4096,
		MaxTokens:         1024,
		Temperature:       &temperature,
		CompletionTimeout: 30 * time.Second,
		ResolutionPhrases: []string{
			"glad i could help",
			"happy to have helped",
			"is there anything else",
			"have a great day",
		},
	}
}

// Synthesizer assembles a bounded prompt from history and retrieved
// knowledge, invokes the completion route, and sanitizes the reply.
type Synthesizer struct {
	completer Completer
	sanitizer *sanitize.Sanitizer
	cfg       SynthesizerConfig
	logger    *slog.Logger
}

// NewSynthesizer creates a synthesizer, applying defaults for zero
// config values.
func NewSynthesizer(completer Completer, cfg SynthesizerConfig, logger *slog.Logger) *Synthesizer {
	def := DefaultSynthesizerConfig()
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = def.SystemInstruction
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.HistoryCharBudget <= 0 {
		cfg.HistoryCharBudget = def.HistoryCharBudget
	}
	if cfg.MaxReplyChars <= 0 {
		cfg.MaxReplyChars = def.MaxReplyChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature == nil {
		cfg.Temperature = def.Temperature
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = def.CompletionTimeout
	}
	if len(cfg.ResolutionPhrases) == 0 {
		cfg.ResolutionPhrases = def.ResolutionPhrases
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		completer: completer,
		sanitizer: sanitize.New(cfg.MaxReplyChars),
		cfg:       cfg,
		logger:    logger,
	}
}

// Reply produces the assistant reply for the current turn. inbound is
// the sanitized customer message; snippets may be empty, in which case
// the prompt carries no grounding block.
func (s *Synthesizer) Reply(ctx context.Context, conv *Conversation, inbound string, snippets []knowledge.Result) (string, error) {
	prompt := s.buildPrompt(conv, inbound, snippets)

	completion, err := s.completer.Complete(ctx, provider.CompletionRequest{
		System:      s.cfg.SystemInstruction,
		Prompt:      prompt,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: *s.cfg.Temperature,
		Timeout:     s.cfg.CompletionTimeout,
	})
	if err != nil {
		return "", err
	}

	reply, err := s.sanitizer.Clean(completion.Text)
	if err != nil {
		if errors.Is(err, sanitize.ErrEmptyMessage) {
			return "", &provider.Error{Provider: "synthesizer", Kind: provider.KindServerError, Err: fmt.Errorf("completion empty after sanitization: %w", err)}
		}
		return "", fmt.Errorf("sanitize reply: %w", err)
	}
	return reply, nil
}

// IsResolution reports whether reply carries a resolution signal.
func (s *Synthesizer) IsResolution(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range s.cfg.ResolutionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// buildPrompt assembles the bounded prompt: recent history within the
// character budget, a grounding block when retrieval produced
// snippets, and the current customer message last.
func (s *Synthesizer) buildPrompt(conv *Conversation, inbound string, snippets []knowledge.Result) string {
	history := s.historyWindow(conv.Messages)

	var b strings.Builder
	if len(snippets) > 0 {
		b.WriteString("Relevant product knowledge:\n")
		for _, sn := range snippets {
			b.WriteString("- ")
			if sn.Title != "" {
				b.WriteString(sn.Title)
				b.WriteString(": ")
			}
			b.WriteString(sn.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			b.WriteString(roleLabel(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Customer: ")
	b.WriteString(inbound)
	b.WriteString("\nAssistant:")
	return b.String()
}

// historyWindow keeps the most recent messages, dropping the oldest
// first when the window or the character budget is exceeded.
func (s *Synthesizer) historyWindow(messages []Message) []Message {
	if len(messages) > s.cfg.HistoryWindow {
		messages = messages[len(messages)-s.cfg.HistoryWindow:]
	}

	total := 0
	for _, m := range messages {
		total += len(m.Text)
	}
	for len(messages) > 0 && total > s.cfg.HistoryCharBudget {
		total -= len(messages[0].Text)
		messages = messages[1:]
	}
	return messages
}

func roleLabel(r Role) string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "Customer"
}
