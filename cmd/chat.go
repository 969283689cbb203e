package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/app"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/config"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/provider"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/storage/memory"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/storage/postgres"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/telemetry"
)

func runChat(logger *slog.Logger) error {
	ctx := context.Background()

	a, cleanup, err := buildApp(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	conversationID := uuid.NewString()
	customerID := "terminal"

	fmt.Println("Feelori assistant. Type a message, or /quit to exit.")
	fmt.Printf("Conversation: %s\n\n", conversationID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		out, err := a.Engine.Process(ctx, conversation.Inbound{
			ConversationID: conversationID,
			CustomerID:     customerID,
			Channel:        "terminal",
			MessageID:      uuid.NewString(),
			Text:           line,
		})
		if err != nil {
			var rle *resilience.RateLimitError
			if errors.As(err, &rle) {
				fmt.Printf("\n%s\n\n", conversation.ReplyBusy)
				continue
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n", out.ReplyText)
		fmt.Printf("  [intent=%s confidence=%.2f state=%s escalated=%t]\n\n",
			out.Intent, out.Confidence, out.State, out.Escalated)

		if out.State.Terminal() {
			fmt.Println("Episode closed. The next message starts a new one.")
		}
	}
	return scanner.Err()
}

// buildApp wires the engine against postgres when reachable, falling
// back to the in-memory store for local sessions without a database.
func buildApp(ctx context.Context, logger *slog.Logger) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	primary, secondary, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "feelori",
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("setup tracing: %w", err)
	}
	flushTraces := func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.ConnString())
	if err != nil {
		logger.Warn("postgres unreachable, using in-memory store", "error", err)
		return app.New(cfg, primary, secondary, memory.New(), logger), flushTraces, nil
	}
	cleanup := func() {
		pool.Close()
		flushTraces()
	}
	return app.New(cfg, primary, secondary, postgres.New(pool), logger), cleanup, nil
}

// buildProviders creates the Gemini primary and, when a key is
// present, the OpenAI secondary.
func buildProviders(ctx context.Context, cfg *config.Config) (provider.Client, provider.Client, error) {
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		return nil, nil, fmt.Errorf("GEMINI_API_KEY not set: %w", config.ErrMissingAPIKey)
	}

	primary, err := provider.NewGemini(ctx, provider.GeminiConfig{
		APIKey:          geminiKey,
		GenerativeModel: cfg.GeminiModel,
		EmbeddingModel:  cfg.GeminiEmbedModel,
		EmbedDim:        cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create gemini client: %w", err)
	}

	var secondary provider.Client
	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		secondary = provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:          openaiKey,
			GenerativeModel: cfg.OpenAIModel,
		})
	}
	return primary, secondary, nil
}
