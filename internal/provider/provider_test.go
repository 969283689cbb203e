package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

func TestErrorRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTimeout, true},
		{KindServerError, true},
		{KindRateLimited, false},
		{KindInvalidRequest, false},
	}
	for _, tt := range tests {
		e := &Error{Provider: "p", Kind: tt.kind, Err: errors.New("x")}
		if got := e.Retryable(); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("call failed: %w", &Error{Provider: "p", Kind: KindRateLimited, Err: errors.New("quota")})
	if got := KindOf(wrapped); got != KindRateLimited {
		t.Errorf("KindOf(wrapped) = %v, want rate_limited", got)
	}
	if got := KindOf(errors.New("plain")); got != KindServerError {
		t.Errorf("KindOf(plain) = %v, want server_error default", got)
	}
}

func TestGeminiClassify(t *testing.T) {
	t.Parallel()

	g := &Gemini{}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindTimeout},
		{"quota", genai.APIError{Code: 429, Message: "quota"}, KindRateLimited},
		{"server", genai.APIError{Code: 503, Message: "unavailable"}, KindServerError},
		{"bad request", genai.APIError{Code: 400, Message: "invalid"}, KindInvalidRequest},
		{"unclassified", errors.New("connection reset"), KindServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := g.classify(tt.err)
			var pe *Error
			if !errors.As(got, &pe) {
				t.Fatalf("classify returned %T, want *Error", got)
			}
			if pe.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", pe.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) && pe.Err == nil {
				t.Error("classified error should wrap the cause")
			}
		})
	}
}

func TestGeminiEmbedConfigPinsDimension(t *testing.T) {
	t.Parallel()

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	cfg := g.embedConfig()
	if cfg.OutputDimensionality == nil || *cfg.OutputDimensionality != DefaultEmbedDim {
		t.Errorf("default OutputDimensionality = %v, want %d to match the vector schema", cfg.OutputDimensionality, DefaultEmbedDim)
	}

	g, err = NewGemini(context.Background(), GeminiConfig{APIKey: "test-key", EmbedDim: 768})
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	if cfg := g.embedConfig(); cfg.OutputDimensionality == nil || *cfg.OutputDimensionality != 768 {
		t.Errorf("OutputDimensionality = %v, want 768", cfg.OutputDimensionality)
	}
}

func TestOpenAIClassify(t *testing.T) {
	t.Parallel()

	o := &OpenAI{}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"quota", &openai.Error{StatusCode: 429}, KindRateLimited},
		{"server", &openai.Error{StatusCode: 500}, KindServerError},
		{"bad request", &openai.Error{StatusCode: 422}, KindInvalidRequest},
		{"unclassified", errors.New("connection reset"), KindServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := o.classify(tt.err)
			var pe *Error
			if !errors.As(got, &pe) {
				t.Fatalf("classify returned %T, want *Error", got)
			}
			if pe.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", pe.Kind, tt.want)
			}
		})
	}
}
