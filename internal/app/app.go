// Package app wires configuration, providers, resilience, and the
// conversation engine into a runnable assistant.
package app

import (
	"log/slog"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/config"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/intent"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/provider"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
)

// Storage is the combined persistence surface the app needs. Both the
// postgres and the in-memory store satisfy it.
type Storage interface {
	conversation.Store
	knowledge.Store
}

// App bundles the long-lived components of the assistant.
type App struct {
	Config  *config.Config
	Engine  *conversation.Engine
	Indexer *knowledge.Indexer
	Router  *resilience.Router
	Logger  *slog.Logger
}

// New wires an App from its edges: configuration, provider clients,
// and storage. secondary may be nil, disabling failover.
func New(cfg *config.Config, primary, secondary provider.Client, store Storage, logger *slog.Logger) *App {
	breakers := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
	})
	providerLimiter := resilience.NewKeyedLimiter(cfg.LimiterRefill, cfg.LimiterCapacity)
	clientLimiter := resilience.NewKeyedLimiter(cfg.LimiterRefill, cfg.LimiterCapacity)

	router := resilience.NewRouter(primary, secondary, breakers, providerLimiter, resilience.RetryConfig{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.BackoffBase,
		MaxInterval:     cfg.BackoffCeiling,
	}, logger)

	retriever := knowledge.NewRetriever(router, store, knowledge.RetrieverConfig{
		TopK:            cfg.TopK,
		SimilarityFloor: cfg.SimilarityFloor,
	}, logger)

	indexer := knowledge.NewIndexer(router, store, knowledge.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap), logger)

	classifier := intent.NewClassifier(nil, cfg.ConfidenceFloor)
	escalation := intent.NewEscalationMatcher(cfg.EscalationKeywords)

	synthesizer := conversation.NewSynthesizer(router, conversation.SynthesizerConfig{
		HistoryWindow:     cfg.HistoryWindow,
		HistoryCharBudget: cfg.HistoryCharBudget,
		MaxReplyChars:     cfg.MaxOutboundChars,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       &cfg.Temperature,
		CompletionTimeout: cfg.ProviderTimeout,
		ResolutionPhrases: cfg.ResolutionPhrases,
	}, logger)

	engine := conversation.NewEngine(store, classifier, escalation, retriever, synthesizer, clientLimiter, conversation.EngineConfig{
		LowConfidenceTurns: cfg.LowConfidenceTurns,
		IdleThreshold:      cfg.IdleThreshold,
		MaxInboundChars:    cfg.MaxInboundChars,
		ReplyCacheTTL:      cfg.ResponseCacheTTL,
	}, logger)

	return &App{
		Config:  cfg,
		Engine:  engine,
		Indexer: indexer,
		Router:  router,
		Logger:  logger,
	}
}
