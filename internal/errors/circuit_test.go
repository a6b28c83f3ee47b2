package errors

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(t *testing.T, maxFailures int) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("embedder", WithMaxFailures(maxFailures), WithResetTimeout(time.Minute))
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb, _ := newTestBreaker(t, 3)

	// When: recording 3 failures
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}

	// Then: circuit is open and rejects calls without running them
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 3)

	_ = cb.Execute(func() error { return errors.New("e") })
	_ = cb.Execute(func() error { return errors.New("e") })
	require.Equal(t, 2, cb.Failures())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	// Given: an open circuit
	cb, clock := newTestBreaker(t, 1)
	_ = cb.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	clock.Advance(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful probe closes the circuit
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(t, 2)
	_ = cb.Execute(func() error { return errors.New("down") })
	_ = cb.Execute(func() error { return errors.New("down") })
	clock.Advance(2 * time.Minute)

	err := cb.Execute(func() error { return errors.New("still down") })

	assert.EqualError(t, err, "still down")
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SingleProbeInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(t, 1)
	_ = cb.Execute(func() error { return errors.New("down") })
	clock.Advance(2 * time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	var probes atomic.Int32

	go func() {
		_ = cb.Execute(func() error {
			probes.Add(1)
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// A second caller is rejected while the probe is in flight
	err := cb.Execute(func() error {
		probes.Add(1)
		return nil
	})
	close(release)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(1), probes.Load())
}

func TestCircuitExecute_ReturnsResult(t *testing.T) {
	cb, _ := newTestBreaker(t, 2)

	v, err := CircuitExecute(cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_, _ = CircuitExecute(cb, func() (string, error) { return "", errors.New("x") })
	_, _ = CircuitExecute(cb, func() (string, error) { return "", errors.New("x") })
	v, err = CircuitExecute(cb, func() (string, error) { return "never", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, v)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
