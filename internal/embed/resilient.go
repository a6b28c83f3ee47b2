package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// ResilientConfig configures a ResilientEmbedder.
type ResilientConfig struct {
	// Retry bounds the attempts per call. RetryIf is overridden so
	// validation errors are never retried.
	Retry errors.RetryConfig

	// Timeout bounds each attempt (0 = only the caller's deadline).
	Timeout time.Duration

	// MaxFailures consecutive failed calls open the circuit.
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration
}

// DefaultResilientConfig returns sensible defaults for a remote provider.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry:        errors.DefaultRetryConfig(),
		Timeout:      DefaultTimeout,
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// ResilientEmbedder retries a remote embedder with exponential backoff
// behind a circuit breaker. Exhausted retries and an open circuit surface
// as UpstreamUnavailable; malformed input fails at once as a validation
// error and does not count against the circuit.
type ResilientEmbedder struct {
	inner   Embedder
	breaker *errors.CircuitBreaker
	retry   errors.RetryConfig
	timeout time.Duration
}

var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps inner.
func NewResilientEmbedder(inner Embedder, cfg ResilientConfig) *ResilientEmbedder {
	retry := cfg.Retry
	retry.RetryIf = providerFault
	return &ResilientEmbedder{
		inner: inner,
		breaker: errors.NewCircuitBreaker("embedder:"+inner.ModelName(),
			errors.WithMaxFailures(cfg.MaxFailures),
			errors.WithResetTimeout(cfg.ResetTimeout)),
		retry:   retry,
		timeout: cfg.Timeout,
	}
}

// Embed implements Embedder.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	return call(ctx, r, func(ctx context.Context) ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// EmbedBatch implements Embedder.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	return call(ctx, r, func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

func call[T any](ctx context.Context, r *ResilientEmbedder, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	// Errors that say nothing about provider health are carried out of the
	// breaker instead of being counted as failures.
	var passthrough error
	result, err := errors.CircuitExecute(r.breaker, func() (T, error) {
		v, err := errors.RetryWithResult(ctx, r.retry, func() (T, error) {
			return attempt(ctx, r.timeout, fn)
		})
		if err != nil && (!providerFault(err) || ctx.Err() != nil) {
			passthrough = err
			return zero, nil
		}
		return v, err
	})
	if passthrough != nil {
		return zero, r.classify(ctx, passthrough)
	}
	if err != nil {
		return zero, r.classify(ctx, err)
	}
	return result, nil
}

// attempt runs one try under the per-attempt timeout.
func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

func (r *ResilientEmbedder) classify(ctx context.Context, err error) error {
	switch {
	case !providerFault(err):
		return err
	case stderrors.Is(err, errors.ErrCircuitOpen):
		return errors.New(errors.ErrCodeUpstreamUnavailable, "embedding provider circuit is open", err).
			WithDetail("model", r.inner.ModelName()).
			WithSuggestion("check that the embedding provider is running")
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.New(errors.ErrCodeUpstreamTimeout, "embedding timed out", err).
			WithDetail("model", r.inner.ModelName())
	case ctx.Err() != nil:
		return ctx.Err()
	}

	slog.Warn("embedding_failed",
		slog.String("model", r.inner.ModelName()),
		slog.Int("max_retries", r.retry.MaxRetries),
		slog.String("error", err.Error()))
	return errors.New(errors.ErrCodeUpstreamUnavailable,
		fmt.Sprintf("embedding provider unavailable: %v", err), err).
		WithDetail("model", r.inner.ModelName())
}

// providerFault reports whether err says something about provider health.
// Structured errors carry that in their retryable flag; transport errors
// are always the provider's.
func providerFault(err error) bool {
	if stderrors.Is(err, errors.ErrCircuitOpen) {
		return true
	}
	if _, ok := errors.As(err); ok {
		return errors.IsRetryable(err)
	}
	return true
}

// Breaker exposes the circuit breaker for status reporting.
func (r *ResilientEmbedder) Breaker() *errors.CircuitBreaker {
	return r.breaker
}

// Dimensions implements Embedder.
func (r *ResilientEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName implements Embedder.
func (r *ResilientEmbedder) ModelName() string { return r.inner.ModelName() }

// Available reports false while the circuit is open.
func (r *ResilientEmbedder) Available(ctx context.Context) bool {
	return r.breaker.State() != errors.StateOpen && r.inner.Available(ctx)
}

// Close implements Embedder.
func (r *ResilientEmbedder) Close() error { return r.inner.Close() }
