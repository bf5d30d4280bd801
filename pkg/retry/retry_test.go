package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0

	attempts, err := Do(context.Background(), func(_ context.Context, _ int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts, err := Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	original := errors.New("persistent failure")

	attempts, err := Do(context.Background(), func(_ context.Context, _ int) error {
		return original
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	require.ErrorIs(t, err, original)
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableError(t *testing.T) {
	permanent := errors.New("bad request")

	attempts, err := Do(context.Background(), func(_ context.Context, _ int) error {
		return permanent
	}, WithMaxAttempts(5), WithRetryCondition(func(err error) bool { return !errors.Is(err, permanent) }))

	require.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 1, attempts)
}

func TestDo_AttemptTimeout(t *testing.T) {
	attempts, err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, WithMaxAttempts(2), WithInitialDelay(time.Millisecond), WithAttemptTimeout(10*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Do(ctx, func(_ context.Context, _ int) error {
		cancel()
		return errors.New("fails")
	}, WithMaxAttempts(5), WithInitialDelay(time.Second))

	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_NoAttempts(t *testing.T) {
	_, err := Do(context.Background(), func(_ context.Context, _ int) error { return nil }, WithMaxAttempts(0))
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestNewPolicy_DelaysStayWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 4
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 3 * time.Second
	cfg.JitterFactor = 0

	policy := newPolicy(context.Background(), cfg)

	assert.Equal(t, time.Second, policy.NextBackOff())
	assert.Equal(t, 2*time.Second, policy.NextBackOff())
	assert.Equal(t, 3*time.Second, policy.NextBackOff())
	assert.Equal(t, backoff.Stop, policy.NextBackOff(), "three retries after the first attempt")
}

func TestDo_SingleAttempt(t *testing.T) {
	calls := 0

	attempts, err := Do(context.Background(), func(_ context.Context, _ int) error {
		calls++
		return errors.New("model offline")
	}, WithMaxAttempts(1), WithInitialDelay(time.Millisecond))

	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestNewPolicy_Jitter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 101
	cfg.InitialDelay = time.Second
	cfg.BackoffMultiplier = 1
	cfg.JitterFactor = 0.2

	policy := newPolicy(context.Background(), cfg)

	for range 100 {
		d := policy.NextBackOff()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
