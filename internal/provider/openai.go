package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey          string
	GenerativeModel string
	EmbeddingModel  string
}

// OpenAI adapts the official OpenAI client to the Client contract.
type OpenAI struct {
	client          openai.Client
	generativeModel string
	embeddingModel  string
}

// NewOpenAI creates an OpenAI client. Model names fall back to the
// current defaults when empty.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}

	o := &OpenAI{
		client:          openai.NewClient(clientOpts...),
		generativeModel: cfg.GenerativeModel,
		embeddingModel:  cfg.EmbeddingModel,
	}
	if o.generativeModel == "" {
		o.generativeModel = openai.ChatModelGPT4oMini
	}
	if o.embeddingModel == "" {
		o.embeddingModel = "text-embedding-3-small"
	}
	return o
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: o.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, o.classify(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &Error{Provider: o.Name(), Kind: KindServerError, Err: errors.New("empty embedding response")}
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.generativeModel,
		Temperature: openai.Float(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, o.classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &Error{Provider: o.Name(), Kind: KindServerError, Err: errors.New("empty completion response")}
	}

	choice := resp.Choices[0]
	return &Completion{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}, nil
}

// classify maps OpenAI SDK failures onto the shared failure kinds.
func (o *OpenAI) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Provider: o.Name(), Kind: KindTimeout, Err: err}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &Error{Provider: o.Name(), Kind: KindRateLimited, Err: err}
		case apiErr.StatusCode >= 500:
			return &Error{Provider: o.Name(), Kind: KindServerError, Err: err}
		case apiErr.StatusCode >= 400:
			return &Error{Provider: o.Name(), Kind: KindInvalidRequest, Err: err}
		}
	}
	return &Error{Provider: o.Name(), Kind: KindServerError, Err: err}
}
