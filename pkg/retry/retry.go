// Package retry runs fallible operations with exponential backoff on top of
// cenkalti/backoff, counting attempts and bounding each one.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrMaxRetriesExceeded indicates all attempts failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Func is an operation that can be retried. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Condition reports whether an error is worth another attempt.
type Condition func(err error) bool

// Config holds retry configuration.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
	// AttemptTimeout bounds every single attempt; zero means unbounded.
	AttemptTimeout time.Duration
	ShouldRetry    Condition
}

// Option configures retry behavior.
type Option func(*Config)

// DefaultConfig returns the defaults used by Do.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.2,
	}
}

// WithMaxAttempts sets the maximum number of attempts, the first one included.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		c.InitialDelay = max(d, 0)
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = max(d, 0)
	}
}

// WithBackoffMultiplier sets the exponential backoff factor.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Config) {
		c.BackoffMultiplier = max(f, 1.0)
	}
}

// WithJitterFactor sets the random jitter ratio, clamped to [0, 1].
func WithJitterFactor(j float64) Option {
	return func(c *Config) {
		c.JitterFactor = min(max(j, 0), 1.0)
	}
}

// WithAttemptTimeout bounds each attempt with its own deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AttemptTimeout = max(d, 0)
	}
}

// WithRetryCondition sets the function deciding which errors are retried.
func WithRetryCondition(cond Condition) Option {
	return func(c *Config) {
		c.ShouldRetry = cond
	}
}

// Do runs fn until it succeeds, the attempts are exhausted or ctx is done.
// It returns the number of attempts made. Errors after exhaustion wrap both
// ErrMaxRetriesExceeded and the last failure. Cancellation of ctx is never
// retried and is returned as ctx.Err().
func Do(ctx context.Context, fn Func, opts ...Option) (int, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.MaxAttempts <= 0 {
		return 0, fmt.Errorf("%w: no attempts configured", ErrMaxRetriesExceeded)
	}

	var (
		attempts int
		lastErr  error
		stopped  bool
	)

	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++

		err := runAttempt(ctx, fn, attempts, cfg.AttemptTimeout)
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}

		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			stopped = true
			return backoff.Permanent(err)
		}

		return err
	}, newPolicy(ctx, cfg))

	switch {
	case err == nil:
		return attempts, nil
	case ctx.Err() != nil:
		return attempts, ctx.Err()
	case stopped:
		return attempts, lastErr
	case lastErr == nil:
		return attempts, err
	}

	return attempts, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// newPolicy maps cfg onto an exponential backoff limited to MaxAttempts-1
// retries and bound to ctx.
func newPolicy(ctx context.Context, cfg Config) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.Multiplier = max(cfg.BackoffMultiplier, 1.0)
	exp.RandomizationFactor = min(max(cfg.JitterFactor, 0), 1.0)
	exp.MaxElapsedTime = 0
	exp.Reset()

	// WithMaxRetries treats zero as unlimited.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if cfg.MaxAttempts > 1 {
		policy = backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1))
	}

	return backoff.WithContext(policy, ctx)
}

func runAttempt(ctx context.Context, fn Func, attempt int, timeout time.Duration) error {
	if timeout <= 0 {
		return fn(ctx, attempt)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(attemptCtx, attempt)
}
