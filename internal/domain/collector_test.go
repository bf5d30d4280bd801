package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

var testPrompt = m.Prompt{Mode: m.ModeFLN, Text: "fix it", Bug: m.BugKey{Project: "calc", BugID: "1"}}

func fastCollectorOptions() CollectorOptions {
	return CollectorOptions{Retries: 2, Timeout: time.Second, Backoff: time.Millisecond}
}

func TestCollect_ReturnsNSamples(t *testing.T) {
	var calls atomic.Int32

	generator := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		calls.Add(1)
		return "answer to " + prompt, nil
	})

	samples, err := NewSampleCollector(generator, semaphore.NewWeighted(2), fastCollectorOptions()).
		Collect(context.Background(), testPrompt, 3)
	require.NoError(t, err)

	require.Len(t, samples, 3)
	assert.Equal(t, int32(3), calls.Load())

	for i, sample := range samples {
		assert.Equal(t, i, sample.Index)
		assert.Equal(t, testPrompt.Bug, sample.Bug)
		assert.Equal(t, m.ModeFLN, sample.Mode)
		assert.Equal(t, "answer to fix it", sample.Completion)
		assert.Equal(t, 1, sample.Attempts)
		assert.False(t, sample.Failed)
	}
}

func TestCollect_RetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex

	failures := map[string]int{}

	generator := generatorFunc(func(_ context.Context, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if failures["x"] < 2 {
			failures["x"]++
			return "", errors.New("model busy")
		}

		return "ok", nil
	})

	samples, err := NewSampleCollector(generator, nil, fastCollectorOptions()).Collect(context.Background(), testPrompt, 1)
	require.NoError(t, err)

	require.Len(t, samples, 1)
	assert.Equal(t, "ok", samples[0].Completion)
	assert.Equal(t, 3, samples[0].Attempts)
}

func TestCollect_SentinelAfterRetries(t *testing.T) {
	generator := generatorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("model down")
	})

	samples, err := NewSampleCollector(generator, nil, fastCollectorOptions()).Collect(context.Background(), testPrompt, 3)
	require.NoError(t, err)

	require.Len(t, samples, 3, "failed generations still yield N samples")

	for i, sample := range samples {
		assert.Equal(t, i, sample.Index)
		assert.True(t, sample.Failed)
		assert.Equal(t, m.GenerationFailedMarker, sample.Completion)
		assert.Equal(t, 3, sample.Attempts)
		assert.Contains(t, sample.Error, "model down")
	}
}

func TestCollect_AttemptTimeout(t *testing.T) {
	generator := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	opts := CollectorOptions{Retries: 1, Timeout: 10 * time.Millisecond, Backoff: time.Millisecond}

	samples, err := NewSampleCollector(generator, nil, opts).Collect(context.Background(), testPrompt, 2)
	require.NoError(t, err)

	for _, sample := range samples {
		assert.True(t, sample.Failed)
		assert.Equal(t, 2, sample.Attempts)
	}
}

func TestCollect_CancelDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 3)

	generator := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		started <- struct{}{}
		<-ctx.Done()

		return "", ctx.Err()
	})

	done := make(chan struct{})

	var (
		samples []m.Sample
		err     error
	)

	go func() {
		defer close(done)

		samples, err = NewSampleCollector(generator, semaphore.NewWeighted(3), fastCollectorOptions()).Collect(ctx, testPrompt, 3)
	}()

	<-started
	cancel()
	<-done

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, samples)
}

func TestCollect_LimiterBoundsCalls(t *testing.T) {
	var inFlight, peak atomic.Int32

	generator := generatorFunc(func(_ context.Context, _ string) (string, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		return "ok", nil
	})

	limiter := semaphore.NewWeighted(2)
	collector := NewSampleCollector(generator, limiter, fastCollectorOptions())

	results := make([][]m.Sample, 3)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			samples, err := collector.Collect(context.Background(), testPrompt, 4)
			assert.NoError(t, err)

			results[i] = samples
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))

	for _, samples := range results {
		require.Len(t, samples, 4)

		for _, sample := range samples {
			assert.False(t, sample.Failed, "sample %d waited for the limiter and failed", sample.Index)
		}
	}
}

func TestCollect_QueuedCallsDoNotTimeOut(t *testing.T) {
	var calls atomic.Int32

	generator := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		calls.Add(1)

		select {
		case <-time.After(60 * time.Millisecond):
			return "    return a + b", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	// One call fits in the timeout, three queued calls do not.
	opts := CollectorOptions{Retries: 0, Timeout: 100 * time.Millisecond, Backoff: time.Millisecond}

	samples, err := NewSampleCollector(generator, semaphore.NewWeighted(1), opts).Collect(context.Background(), testPrompt, 3)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	for _, sample := range samples {
		assert.False(t, sample.Failed)
		assert.Equal(t, "    return a + b", sample.Completion)
		assert.Equal(t, 1, sample.Attempts)
	}

	assert.Equal(t, int32(3), calls.Load())
}

func TestCollect_InvalidCount(t *testing.T) {
	_, err := NewSampleCollector(generatorFunc(nil), nil, fastCollectorOptions()).Collect(context.Background(), testPrompt, 0)
	require.Error(t, err)
}
