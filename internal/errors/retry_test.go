package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	persistent := errors.New("persistent error")

	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return persistent
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetry_RetryIfStopsOnPermanentError(t *testing.T) {
	// Given: a predicate that only retries upstream failures
	cfg := fastRetry(5)
	cfg.RetryIf = IsRetryable

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return ValidationError("empty text", nil)
	})

	// Then: the validation error is returned after the first attempt
	assert.Equal(t, 1, attempts)
	assert.True(t, IsKind(err, KindValidation))
	assert.NotContains(t, err.Error(), "retries")
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Second, Multiplier: 2}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			attempts++
			return errors.New("fail")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}

func TestRetry_CancelledContextSkipsCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func() ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, UpstreamError("timeout", nil)
		}
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithResult_ZeroValueOnFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetry(1), func() (int, error) {
		return 42, errors.New("nope")
	})

	assert.Error(t, err)
	assert.Equal(t, 0, got)
}

func TestRetry_JitterStaysBounded(t *testing.T) {
	cfg := fastRetry(2)
	cfg.Jitter = true

	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error { return errors.New("x") })

	// 1ms + 2ms of backoff at most, with generous scheduling slack
	assert.Less(t, time.Since(start), time.Second)
}
