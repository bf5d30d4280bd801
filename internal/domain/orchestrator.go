package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// BugOutcome is what the chain produced for one bug in one experiment.
// Exactly one of Outcomes, Failure and Discarded is set.
type BugOutcome struct {
	Outcomes  []m.EvaluationOutcome
	Failure   *m.BugFailure
	Discarded bool
	// Resumed marks samples reused from the journal.
	Resumed bool
}

// Orchestrator drives the per-bug chain: context, prompt, samples and
// scores, journaling the samples it collects.
type Orchestrator interface {
	ProcessBug(ctx context.Context, runID string, record m.BugRecord, mode m.Mode) BugOutcome
	Rescore(record m.BugRecord, samples []m.Sample) []m.EvaluationOutcome
	Describe(ctx context.Context, record m.BugRecord) (m.LocatedBug, error)
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Samples int
	// Resume reuses complete sample sets already journaled for the run.
	Resume bool
}

type orchestrator struct {
	builder   HeuristicContextBuilder
	renderer  PromptRenderer
	collector SampleCollector
	scorer    CorrectnessScorer
	journal   adapter.SampleStore
	opts      OrchestratorOptions
}

// NewOrchestrator constructs an Orchestrator. collector and journal may be
// nil for commands that never call the model.
func NewOrchestrator(
	builder HeuristicContextBuilder,
	renderer PromptRenderer,
	collector SampleCollector,
	scorer CorrectnessScorer,
	journal adapter.SampleStore,
	opts OrchestratorOptions,
) Orchestrator {
	if opts.Samples <= 0 {
		opts.Samples = DefaultSamples
	}

	return &orchestrator{
		builder:   builder,
		renderer:  renderer,
		collector: collector,
		scorer:    scorer,
		journal:   journal,
		opts:      opts,
	}
}

func (o *orchestrator) ProcessBug(ctx context.Context, runID string, record m.BugRecord, mode m.Mode) BugOutcome {
	if samples, ok := o.resumable(ctx, runID, record.Key, mode); ok {
		return BugOutcome{Outcomes: o.Rescore(record, samples), Resumed: true}
	}

	var hc m.HeuristicContext

	if tier, needsContext := mode.Tier(); needsContext {
		built, err := o.builder.Build(ctx, record, tier)
		if err != nil {
			return o.failure(record.Key, mode, m.StageContext, err)
		}

		hc = built
	}

	prompt, err := o.renderer.Render(ctx, mode, record, hc)
	if err != nil {
		return o.failure(record.Key, mode, m.StageRender, err)
	}

	if o.collector == nil {
		return o.failure(record.Key, mode, m.StageCollect, errors.New("no model configured"))
	}

	samples, err := o.collector.Collect(ctx, prompt, o.opts.Samples)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("Discarding in-flight bug", "bug", record.Key, "mode", mode)
			return BugOutcome{Discarded: true}
		}

		return o.failure(record.Key, mode, m.StageCollect, err)
	}

	if o.journal != nil {
		if err := o.journal.Put(ctx, runID, mode, record.Key, samples); err != nil {
			slog.Warn("Failed to journal samples", "bug", record.Key, "mode", mode, "error", err)
		}
	}

	return BugOutcome{Outcomes: o.Rescore(record, samples)}
}

func (o *orchestrator) resumable(ctx context.Context, runID string, key m.BugKey, mode m.Mode) ([]m.Sample, bool) {
	if !o.opts.Resume || o.journal == nil {
		return nil, false
	}

	samples, ok, err := o.journal.Get(ctx, runID, mode, key)
	if err != nil {
		slog.Warn("Failed to read journaled samples", "bug", key, "mode", mode, "error", err)
		return nil, false
	}

	if !ok || len(samples) != o.opts.Samples {
		return nil, false
	}

	slog.Debug("Reusing journaled samples", "bug", key, "mode", mode)

	return samples, true
}

func (o *orchestrator) Rescore(record m.BugRecord, samples []m.Sample) []m.EvaluationOutcome {
	outcomes := make([]m.EvaluationOutcome, 0, len(samples))
	for _, sample := range samples {
		outcomes = append(outcomes, o.scorer.Score(sample, record))
	}

	return outcomes
}

func (o *orchestrator) Describe(ctx context.Context, record m.BugRecord) (m.LocatedBug, error) {
	hc, err := o.builder.Build(ctx, record, m.TierFN)
	if err != nil {
		return m.LocatedBug{}, err
	}

	base := hc.Base()

	return m.LocatedBug{
		Bug:      record.Key,
		File:     record.FilePath,
		Span:     record.Span,
		Function: base.Function,
		Region:   base.Region,
		Fallback: base.Fallback,
		Buggy:    record.BuggyLines,
		Fixed:    record.FixedLines,
	}, nil
}

func (o *orchestrator) failure(key m.BugKey, mode m.Mode, stage m.Stage, err error) BugOutcome {
	slog.Error("Bug failed", "bug", key, "mode", mode, "stage", stage, "error", err)

	return BugOutcome{Failure: &m.BugFailure{
		Bug:    key,
		Mode:   mode,
		Stage:  stage,
		Kind:   m.KindOf(err),
		Reason: fmt.Sprint(err),
	}}
}
