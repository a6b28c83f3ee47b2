package embed

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

func fastResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry: errors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	}
}

func TestResilientEmbedder_RetriesTransientFailures(t *testing.T) {
	// Given: an inner embedder failing twice with a transport error
	inner := newMockEmbedder(4)
	inner.failNext(stderrors.New("connection refused"), stderrors.New("connection refused"))
	r := NewResilientEmbedder(inner, fastResilientConfig())

	// When: I embed
	vec, err := r.Embed(context.Background(), "hello")

	// Then: the third attempt succeeds
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(3), inner.embedCalls.Load())
}

func TestResilientEmbedder_ExhaustedRetriesAreUpstreamUnavailable(t *testing.T) {
	// Given: an inner embedder that keeps failing
	inner := newMockEmbedder(4)
	for i := 0; i < 3; i++ {
		inner.failNext(stderrors.New("connection refused"))
	}
	r := NewResilientEmbedder(inner, fastResilientConfig())

	// When: I embed
	_, err := r.Embed(context.Background(), "hello")

	// Then: the error is a retryable upstream failure
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstreamUnavailable, errors.GetCode(err))
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, int64(3), inner.embedCalls.Load())
}

func TestResilientEmbedder_ValidationIsNotRetried(t *testing.T) {
	inner := newMockEmbedder(4)
	inner.failNext(errors.ValidationError("bad input", nil))
	r := NewResilientEmbedder(inner, fastResilientConfig())

	_, err := r.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, errors.StateClosed, r.Breaker().State())
}

func TestResilientEmbedder_EmptyTextNeverReachesProvider(t *testing.T) {
	inner := newMockEmbedder(4)
	r := NewResilientEmbedder(inner, fastResilientConfig())

	_, err := r.Embed(context.Background(), "  ")
	assert.Equal(t, errors.ErrCodeEmptyText, errors.GetCode(err))

	_, err = r.EmbedBatch(context.Background(), []string{"a", ""})
	assert.Equal(t, errors.ErrCodeEmptyText, errors.GetCode(err))
	assert.Zero(t, inner.embedCalls.Load()+inner.batchCalls.Load())
}

func TestResilientEmbedder_CircuitOpens(t *testing.T) {
	// Given: a breaker that opens after two failed calls
	inner := newMockEmbedder(4)
	for i := 0; i < 6; i++ {
		inner.failNext(stderrors.New("connection refused"))
	}
	r := NewResilientEmbedder(inner, fastResilientConfig())
	ctx := context.Background()

	// When: two calls fail after their retries
	_, _ = r.Embed(ctx, "a")
	_, _ = r.Embed(ctx, "a")
	calls := inner.embedCalls.Load()

	// Then: the next call fails fast without reaching the provider
	_, err := r.Embed(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstreamUnavailable, errors.GetCode(err))
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Equal(t, calls, inner.embedCalls.Load())
	assert.False(t, r.Available(ctx))
}

func TestResilientEmbedder_DeadlineIsUpstreamTimeout(t *testing.T) {
	inner := newMockEmbedder(4)
	r := NewResilientEmbedder(inner, fastResilientConfig())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := r.Embed(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUpstreamTimeout, errors.GetCode(err))
	assert.Equal(t, errors.StateClosed, r.Breaker().State())
}

func TestResilientEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(12)
	inner.modelName = "remote"
	r := NewResilientEmbedder(inner, fastResilientConfig())

	assert.Equal(t, 12, r.Dimensions())
	assert.Equal(t, "remote", r.ModelName())
	assert.True(t, r.Available(context.Background()))
	assert.Same(t, inner, Unwrap(NewCachedEmbedder(r, 1)))
}
