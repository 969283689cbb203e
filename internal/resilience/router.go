package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/provider"
)

var tracer = otel.Tracer("feelori/resilience")

// ErrProviderUnavailable is returned when every provider route has
// been exhausted for a call.
var ErrProviderUnavailable = errors.New("no model provider available")

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries      int           // Retry attempts after the first call
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Router sends completion calls to the primary provider with retries,
// failing over to the secondary when the primary route is exhausted.
// Embeddings use the same breaker and limiter but never fail over:
// mixing embedding spaces across providers would corrupt similarity
// scores, so a failed embed degrades instead.
type Router struct {
	primary   provider.Client
	secondary provider.Client // may be nil

	breakers *BreakerRegistry
	limiter  *KeyedLimiter
	retry    RetryConfig
	logger   *slog.Logger
}

// NewRouter creates a router. secondary may be nil, disabling failover.
func NewRouter(primary, secondary provider.Client, breakers *BreakerRegistry, limiter *KeyedLimiter, retry RetryConfig, logger *slog.Logger) *Router {
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig()
	}
	return &Router{
		primary:   primary,
		secondary: secondary,
		breakers:  breakers,
		limiter:   limiter,
		retry:     retry,
		logger:    logger,
	}
}

// Complete runs a completion through the primary provider, retrying
// transient failures with exponential backoff. When the primary is
// exhausted, its circuit is open, or it reports rate limiting, the
// secondary gets exactly one attempt. Invalid requests never retry or
// fail over.
func (r *Router) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	var result *provider.Completion

	err := r.withRetry(ctx, r.primary, r.primary.Name(), func(ctx context.Context, c provider.Client) error {
		var callErr error
		result, callErr = c.Complete(ctx, req)
		return callErr
	})
	if err == nil {
		return result, nil
	}
	if provider.KindOf(err) == provider.KindInvalidRequest {
		return nil, err
	}
	if r.secondary == nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	r.logger.Warn("failing over to secondary provider",
		"primary", r.primary.Name(),
		"secondary", r.secondary.Name(),
		"error", err,
	)

	// Exactly one secondary attempt, still guarded by its own breaker
	// and bucket.
	secondary := r.secondary.Name()
	if callErr := r.attempt(ctx, r.secondary, secondary, func(ctx context.Context, c provider.Client) error {
		var e error
		result, e = c.Complete(ctx, req)
		return e
	}); callErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, callErr)
	}
	return result, nil
}

// Embed produces an embedding through the primary provider with
// retries and no failover.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.withRetry(ctx, r.primary, r.primary.Name()+"/embed", func(ctx context.Context, c provider.Client) error {
		var callErr error
		vec, callErr = c.Embed(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// withRetry runs fn against client with exponential backoff. Retries
// happen only for failures the same provider may recover from; rate
// limiting, invalid requests, and an open circuit abort the loop.
func (r *Router) withRetry(ctx context.Context, client provider.Client, key string, fn func(context.Context, provider.Client) error) error {
	var lastErr error
	delay := r.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		err := r.attempt(ctx, client, key, fn)
		if err == nil {
			r.logger.Debug("provider call succeeded",
				"provider", client.Name(),
				"key", key,
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == r.retry.MaxRetries {
			break
		}

		r.logger.Debug("retrying provider call",
			"provider", client.Name(),
			"key", key,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(jitter(delay)):
			delay = min(delay*2, r.retry.MaxInterval)
		}
	}

	return fmt.Errorf("provider %s exhausted after %d retries (elapsed: %v): %w",
		client.Name(), r.retry.MaxRetries, time.Since(start), lastErr)
}

// attempt makes a single guarded call: bucket admission, then breaker
// admission, then the call itself. Only failures the provider caused
// count against its breaker; local and remote rate limiting do not.
func (r *Router) attempt(ctx context.Context, client provider.Client, key string, fn func(context.Context, provider.Client) error) error {
	ctx, span := tracer.Start(ctx, "provider.call", trace.WithAttributes(
		attribute.String("provider.name", client.Name()),
		attribute.String("provider.key", key),
	))
	defer span.End()

	if err := r.limiter.Allow(key); err != nil {
		span.RecordError(err)
		return err
	}
	cb := r.breakers.Get(key)
	if err := cb.Allow(); err != nil {
		span.RecordError(err)
		return err
	}

	err := fn(ctx, client)
	if err == nil {
		cb.Success()
		return nil
	}
	span.RecordError(err)

	switch provider.KindOf(err) {
	case provider.KindTimeout, provider.KindServerError:
		cb.Failure()
		span.SetAttributes(attribute.String("breaker.state", cb.State().String()))
	}
	return err
}

// retryable reports whether the same provider should be retried after
// err. Open circuits and rate limits route elsewhere instead.
func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return false
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// jitter spreads retries out by up to half the base delay.
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	return d + rand.N(d/2+1)
}
