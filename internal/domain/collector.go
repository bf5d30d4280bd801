package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
	"fixbench.dev/pkg/fixbench/pkg/retry"
)

// Defaults for CollectorOptions.
const (
	DefaultSamples = 3
	DefaultRetries = 3
	DefaultTimeout = 60 * time.Second
)

// CollectorOptions tunes how completions are requested.
type CollectorOptions struct {
	// Retries is the number of extra attempts after a failed call.
	Retries int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Backoff is the delay before the first retry; it doubles afterwards.
	Backoff time.Duration
}

// SampleCollector issues the N model calls of a prompt.
type SampleCollector interface {
	// Collect returns exactly n samples ordered by index. Calls that keep
	// failing yield sentinel samples; cancellation of ctx returns ctx.Err()
	// and no samples.
	Collect(ctx context.Context, prompt m.Prompt, n int) ([]m.Sample, error)
}

type sampleCollector struct {
	generator adapter.Generator
	limiter   *semaphore.Weighted
	opts      CollectorOptions
}

// NewSampleCollector constructs a collector. The limiter is shared by every
// collector of a run and bounds the number of in-flight model calls.
func NewSampleCollector(generator adapter.Generator, limiter *semaphore.Weighted, opts CollectorOptions) SampleCollector {
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	if limiter == nil {
		limiter = semaphore.NewWeighted(1)
	}

	return &sampleCollector{generator: generator, limiter: limiter, opts: opts}
}

func (c *sampleCollector) Collect(ctx context.Context, prompt m.Prompt, n int) ([]m.Sample, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}

	samples := make([]m.Sample, n)

	group, groupCtx := errgroup.WithContext(ctx)

	for i := range n {
		group.Go(func() error {
			sample, err := c.collectOne(groupCtx, prompt, i)
			if err != nil {
				return err
			}

			samples[i] = sample

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		slog.Debug("Discarding partial sample set", "bug", prompt.Bug, "mode", prompt.Mode, "error", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

func (c *sampleCollector) collectOne(ctx context.Context, prompt m.Prompt, index int) (m.Sample, error) {
	var completion string

	// Waiting for the limiter is not part of an attempt: only the model call
	// runs under the per-attempt timeout.
	attempts, err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
		defer c.limiter.Release(1)

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		out, err := c.generator.Generate(callCtx, prompt.Text)
		if err != nil {
			slog.Warn("Model call failed", "bug", prompt.Bug, "mode", prompt.Mode, "sample", index, "attempt", attempt, "error", err)
			return err
		}

		completion = out

		return nil
	},
		retry.WithMaxAttempts(c.opts.Retries+1),
		retry.WithInitialDelay(c.opts.Backoff),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return m.Sample{}, ctxErr
	}

	if err != nil {
		slog.Error("Generation failed after retries", "bug", prompt.Bug, "mode", prompt.Mode, "sample", index, "attempts", attempts, "error", err)

		return m.FailedSample(prompt, index, attempts, fmt.Errorf("%w: %w", m.ErrGenerationFailed, err)), nil
	}

	return m.Sample{
		Bug:        prompt.Bug,
		Mode:       prompt.Mode,
		Index:      index,
		Completion: completion,
		Attempts:   attempts,
	}, nil
}

func (c *sampleCollector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.opts.Timeout)
}
