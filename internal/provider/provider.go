// Package provider defines the narrow model-provider contract the
// engine depends on, plus adapters for the concrete backends. Every
// adapter translates its SDK's failures into a *Error with a Kind so
// callers can route on failure class without knowing the SDK.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a provider failure for routing decisions.
type Kind int

const (
	// KindTimeout covers request deadlines and cancelled calls.
	KindTimeout Kind = iota
	// KindRateLimited means the provider rejected the call for quota.
	KindRateLimited
	// KindServerError covers 5xx-class provider failures.
	KindServerError
	// KindInvalidRequest covers 4xx-class failures that retrying
	// cannot fix.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same provider may be retried for this
// failure. Rate limits and invalid requests are not retried in place.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindServerError
}

// KindOf extracts the failure kind from err, defaulting to
// KindServerError for unclassified failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindServerError
}

// CompletionRequest carries one completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Completion is a successful completion result.
type Completion struct {
	Text         string
	FinishReason string
}

// Client is the contract every model backend satisfies.
type Client interface {
	// Name identifies the backend for logs and breaker keys.
	Name() string
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Complete runs one completion call.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
