package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultEmbedDim is the embedding width requested from the API. It
// must match the vector column width in the chunks schema;
// gemini-embedding-001 otherwise returns 3072 values.
const DefaultEmbedDim = 1536

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey          string
	GenerativeModel string
	EmbeddingModel  string
	EmbedDim        int
}

// Gemini adapts the genai SDK to the Client contract.
type Gemini struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	embedDim        int
}

// NewGemini creates a Gemini client. Model names fall back to the
// current defaults when empty.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	g := &Gemini{
		client:          client,
		generativeModel: cfg.GenerativeModel,
		embeddingModel:  cfg.EmbeddingModel,
		embedDim:        cfg.EmbedDim,
	}
	if g.generativeModel == "" {
		g.generativeModel = "gemini-2.5-flash"
	}
	if g.embeddingModel == "" {
		g.embeddingModel = "gemini-embedding-001"
	}
	if g.embedDim <= 0 {
		g.embedDim = DefaultEmbedDim
	}
	return g, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), g.embedConfig())
	if err != nil {
		return nil, g.classify(err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &Error{Provider: g.Name(), Kind: KindServerError, Err: errors.New("empty embedding response")}
	}
	return resp.Embeddings[0].Values, nil
}

// embedConfig pins the requested embedding width so vectors fit the
// storage schema regardless of the model's native output size.
func (g *Gemini) embedConfig() *genai.EmbedContentConfig {
	return &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(g.embedDim)),
	}
}

func (g *Gemini) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, g.classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Provider: g.Name(), Kind: KindServerError, Err: errors.New("empty completion response")}
	}

	candidate := resp.Candidates[0]
	return &Completion{
		Text:         candidate.Content.Parts[0].Text,
		FinishReason: string(candidate.FinishReason),
	}, nil
}

// classify maps genai failures onto the shared failure kinds.
func (g *Gemini) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Provider: g.Name(), Kind: KindTimeout, Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &Error{Provider: g.Name(), Kind: KindRateLimited, Err: err}
		case apiErr.Code >= 500:
			return &Error{Provider: g.Name(), Kind: KindServerError, Err: err}
		case apiErr.Code >= 400:
			return &Error{Provider: g.Name(), Kind: KindInvalidRequest, Err: err}
		}
	}
	return &Error{Provider: g.Name(), Kind: KindServerError, Err: err}
}
