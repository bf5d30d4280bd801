package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	"fixbench.dev/pkg/fixbench/internal/controller"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// RunArgs contains the arguments for running experiments.
type RunArgs struct {
	Patterns []string
	Modes    []m.Mode
	Samples  int
	Parallel int
	Shard    m.Shard
	// Resume continues the latest stored run instead of starting a new one.
	Resume  bool
	Verbose bool
}

// LocateArgs contains the arguments for a dry run.
type LocateArgs struct {
	Patterns []string
	Shard    m.Shard
	Parallel int
}

// EvalArgs contains the arguments for rescoring a stored run.
type EvalArgs struct {
	RunID    string
	Parallel int
	Verbose  bool
}

// ViewArgs contains the arguments for displaying a stored run.
type ViewArgs struct {
	RunID   string
	Verbose bool
}

// MergeArgs contains the arguments for merging shard runs. With no RunIDs
// the latest complete shard set is merged.
type MergeArgs struct {
	RunIDs  []string
	Verbose bool
}

// Workflow is the entry point of every fixbench command.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) error
	Locate(ctx context.Context, args LocateArgs) error
	Evaluate(ctx context.Context, args EvalArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

// ErrNotConfigured is returned when a command needs a dependency the
// workflow was built without.
var ErrNotConfigured = errors.New("not configured")

type workflow struct {
	selector     BugSelector
	locator      BugLocator
	orchestrator Orchestrator
	aggregator   ResultAggregator
	runs         adapter.RunStore
	journal      adapter.SampleStore
	ui           controller.UI
	modelName    string

	progressMu sync.Mutex
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
// Dependencies a command does not use may be nil.
func NewWorkflow(
	selector BugSelector,
	locator BugLocator,
	orchestrator Orchestrator,
	aggregator ResultAggregator,
	runs adapter.RunStore,
	journal adapter.SampleStore,
	ui controller.UI,
	modelName string,
) Workflow {
	return &workflow{
		selector:     selector,
		locator:      locator,
		orchestrator: orchestrator,
		aggregator:   aggregator,
		runs:         runs,
		journal:      journal,
		ui:           ui,
		modelName:    modelName,
	}
}

func (w *workflow) require(deps map[string]bool) error {
	for name, ok := range deps {
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrNotConfigured)
		}
	}

	return nil
}

// Run executes every requested experiment over the selected bugs and saves
// the run record, partial when ctx is cancelled.
func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	if err := w.require(map[string]bool{
		"bug selector": w.selector != nil,
		"bug locator":  w.locator != nil,
		"orchestrator": w.orchestrator != nil,
		"run store":    w.runs != nil,
	}); err != nil {
		return err
	}

	if len(args.Modes) == 0 {
		return errors.New("no experiment mode selected")
	}

	unlock, err := w.runs.Lock(ctx)
	if err != nil {
		slog.Error("Failed to lock output directory", "error", err)
		return fmt.Errorf("lock output: %w", err)
	}
	defer w.release(unlock)

	record, resumed := w.startRecord(ctx, args)

	keys, err := w.selector.SelectBugs(ctx, args.Patterns, args.Shard)
	if err != nil {
		return fmt.Errorf("select bugs: %w", err)
	}

	if err := w.ui.Start(ctx, controller.WithRunMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.ui.Close(context.WithoutCancel(ctx))

	parallel := max(1, args.Parallel)

	w.ui.DisplayRunInfo(ctx, controller.RunInfo{
		ID:       record.ID,
		Model:    record.Model,
		Modes:    args.Modes,
		Bugs:     len(keys),
		Samples:  record.SampleCount,
		Parallel: parallel,
		Shard:    args.Shard,
		Resumed:  resumed,
	})

	records, locateFailures := w.locateAll(ctx, keys, parallel)

	discarded := make(map[m.BugKey]struct{})

	for _, mode := range args.Modes {
		if ctx.Err() != nil {
			break
		}

		report, lost := w.runExperiment(ctx, record.ID, mode, records, locateFailures, parallel)
		record.Experiments = append(record.Experiments, report)

		for _, key := range lost {
			if _, seen := discarded[key]; !seen {
				discarded[key] = struct{}{}
				record.Discarded = append(record.Discarded, key)
			}
		}
	}

	record.FinishedAt = time.Now()
	record.Aborted = ctx.Err() != nil

	return w.finish(ctx, record, args.Verbose)
}

func (w *workflow) startRecord(ctx context.Context, args RunArgs) (m.RunRecord, bool) {
	record := m.RunRecord{
		ID:          uuid.NewString(),
		StartedAt:   time.Now(),
		Model:       w.modelName,
		SampleCount: args.Samples,
		Shard:       args.Shard,
	}

	if record.SampleCount <= 0 {
		record.SampleCount = DefaultSamples
	}

	if !args.Resume {
		return record, false
	}

	latest, ok := w.latestResumable(ctx, args.Shard)
	if !ok {
		return record, false
	}

	slog.Info("Resuming run", "id", latest.ID, "shard", latest.Shard, "aborted", latest.Aborted)

	record.ID = latest.ID
	record.StartedAt = latest.StartedAt

	return record, true
}

// latestResumable returns the newest run produced by run for the same
// shard. Rescored and merged runs are never continued.
func (w *workflow) latestResumable(ctx context.Context, shard m.Shard) (m.RunRecord, bool) {
	runs, err := w.runs.ListRuns(ctx)
	if err != nil {
		slog.Warn("Failed to list runs to resume, starting a new one", "error", err)
		return m.RunRecord{}, false
	}

	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Resumable(shard) {
			return runs[i], true
		}
	}

	slog.Info("No run to resume for shard, starting a new one", "shard", shard)

	return m.RunRecord{}, false
}

// locateAll resolves every key. Bugs that cannot be located become failures
// with an empty mode so every experiment excludes them.
func (w *workflow) locateAll(ctx context.Context, keys []m.BugKey, parallel int) ([]m.BugRecord, []m.BugFailure) {
	records := make([]m.BugRecord, len(keys))
	errs := make([]error, len(keys))
	located := make([]bool, len(keys))

	var group errgroup.Group
	group.SetLimit(parallel)

	for i, key := range keys {
		if ctx.Err() != nil {
			break
		}

		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			record, err := w.locator.Locate(ctx, key)
			if err != nil {
				errs[i] = err
				return nil
			}

			records[i] = record
			located[i] = true

			return nil
		})
	}

	_ = group.Wait()

	var (
		out      []m.BugRecord
		failures []m.BugFailure
	)

	for i, key := range keys {
		switch {
		case located[i]:
			out = append(out, records[i])
		case errs[i] != nil:
			slog.Warn("Failed to locate bug", "bug", key, "error", errs[i])
			failures = append(failures, m.BugFailure{
				Bug:    key,
				Stage:  m.StageLocate,
				Kind:   m.KindOf(errs[i]),
				Reason: errs[i].Error(),
			})
		}
	}

	return out, failures
}

// runExperiment processes every located bug for one mode. Each worker owns
// the slot of its bug.
func (w *workflow) runExperiment(
	ctx context.Context,
	runID string,
	mode m.Mode,
	records []m.BugRecord,
	locateFailures []m.BugFailure,
	parallel int,
) (m.ExperimentReport, []m.BugKey) {
	w.ui.DisplayExperimentStart(ctx, mode, len(records))

	slots := make([]BugOutcome, len(records))
	done := 0

	var group errgroup.Group
	group.SetLimit(parallel)

	for i, record := range records {
		if ctx.Err() != nil {
			break
		}

		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			slots[i] = w.orchestrator.ProcessBug(ctx, runID, record, mode)

			w.progressMu.Lock()
			done++
			w.ui.DisplayBugCompleted(ctx, mode, controller.Progress{
				Bug:       record.Key,
				Done:      done,
				Total:     len(records),
				Solved:    anyCorrect(slots[i].Outcomes),
				Failed:    slots[i].Failure != nil,
				Discarded: slots[i].Discarded,
			})
			w.progressMu.Unlock()

			return nil
		})
	}

	_ = group.Wait()

	var (
		outcomes  []m.EvaluationOutcome
		failures  = append([]m.BugFailure(nil), locateFailures...)
		discarded []m.BugKey
	)

	for i, slot := range slots {
		switch {
		case slot.Discarded:
			discarded = append(discarded, records[i].Key)
		case slot.Failure != nil:
			failures = append(failures, *slot.Failure)
		default:
			outcomes = append(outcomes, slot.Outcomes...)
		}
	}

	report := w.aggregator.Aggregate(mode, outcomes, failures)
	attachGroundTruth(&report, records)

	slog.Info("Experiment finished", "mode", mode, "bugs", report.Summary.Bugs,
		"accuracy", report.Summary.Accuracy, "solved_rate", report.Summary.SolvedRate)

	return report, discarded
}

func anyCorrect(outcomes []m.EvaluationOutcome) bool {
	for _, outcome := range outcomes {
		if outcome.Correct {
			return true
		}
	}

	return false
}

func attachGroundTruth(report *m.ExperimentReport, records []m.BugRecord) {
	byKey := make(map[m.BugKey]m.BugRecord, len(records))
	for _, record := range records {
		byKey[record.Key] = record
	}

	for i := range report.Results {
		if record, ok := byKey[report.Results[i].Bug]; ok {
			report.Results[i].Buggy = record.BuggyLines
			report.Results[i].Fixed = record.FixedLines
		}
	}
}

// finish saves the record even when ctx is cancelled and shows the summary.
func (w *workflow) finish(ctx context.Context, record m.RunRecord, verbose bool) error {
	saveCtx := context.WithoutCancel(ctx)

	path, err := w.runs.SaveRun(saveCtx, record)
	if err != nil {
		slog.Error("Failed to save run", "id", record.ID, "error", err)
		return fmt.Errorf("save run: %w", err)
	}

	slog.Info("Saved run", "id", record.ID, "path", path, "aborted", record.Aborted)

	if err := w.ui.DisplaySummary(saveCtx, record, verbose); err != nil {
		slog.Error("Failed to display summary", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run %s aborted: %w", record.ID, err)
	}

	return nil
}

func (w *workflow) release(unlock func() error) {
	if err := unlock(); err != nil {
		slog.Warn("Failed to release output lock", "error", err)
	}
}

// Locate lists the selected bugs with their span and enclosing function
// without calling the model.
func (w *workflow) Locate(ctx context.Context, args LocateArgs) error {
	if err := w.require(map[string]bool{
		"bug selector": w.selector != nil,
		"bug locator":  w.locator != nil,
		"orchestrator": w.orchestrator != nil,
	}); err != nil {
		return err
	}

	keys, err := w.selector.SelectBugs(ctx, args.Patterns, args.Shard)
	if err != nil {
		return fmt.Errorf("select bugs: %w", err)
	}

	if err := w.ui.Start(ctx, controller.WithLocateMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}

	records, failures := w.locateAll(ctx, keys, max(1, args.Parallel))

	bugs := make([]m.LocatedBug, 0, len(records))

	for _, record := range records {
		located, err := w.orchestrator.Describe(ctx, record)
		if err != nil {
			failures = append(failures, m.BugFailure{
				Bug:    record.Key,
				Stage:  m.StageContext,
				Kind:   m.KindOf(err),
				Reason: err.Error(),
			})

			continue
		}

		bugs = append(bugs, located)
	}

	if err := w.ui.DisplayLocatedBugs(ctx, bugs, failures); err != nil {
		w.ui.Close(ctx)
		slog.Error("Failed to display located bugs", "error", err)

		return fmt.Errorf("display: %w", err)
	}

	w.ui.Wait(ctx)
	w.ui.Close(ctx)

	return nil
}

func (w *workflow) loadRun(ctx context.Context, id string) (m.RunRecord, error) {
	if id == "" {
		record, err := w.runs.LatestRun(ctx)
		if err != nil {
			return m.RunRecord{}, fmt.Errorf("load latest run: %w", err)
		}

		return record, nil
	}

	record, err := w.runs.LoadRun(ctx, id)
	if err != nil {
		return m.RunRecord{}, fmt.Errorf("load run %s: %w", id, err)
	}

	return record, nil
}

// View displays a stored run, the latest when no id is given.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	if err := w.require(map[string]bool{"run store": w.runs != nil}); err != nil {
		return err
	}

	record, err := w.loadRun(ctx, args.RunID)
	if err != nil {
		return err
	}

	if err := w.ui.Start(ctx, controller.WithViewMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}

	if err := w.ui.DisplaySummary(ctx, record, args.Verbose); err != nil {
		w.ui.Close(ctx)
		return fmt.Errorf("display: %w", err)
	}

	w.ui.Wait(ctx)
	w.ui.Close(ctx)

	return nil
}

// Evaluate rescores the journaled samples of a stored run with the current
// scoring policy and saves the result as a new run.
func (w *workflow) Evaluate(ctx context.Context, args EvalArgs) error {
	if err := w.require(map[string]bool{
		"bug locator":    w.locator != nil,
		"orchestrator":   w.orchestrator != nil,
		"run store":      w.runs != nil,
		"sample journal": w.journal != nil,
	}); err != nil {
		return err
	}

	unlock, err := w.runs.Lock(ctx)
	if err != nil {
		slog.Error("Failed to lock output directory", "error", err)
		return fmt.Errorf("lock output: %w", err)
	}
	defer w.release(unlock)

	source, err := w.loadRun(ctx, args.RunID)
	if err != nil {
		return err
	}

	journaled, err := w.readJournal(ctx, source.ID)
	if err != nil {
		return err
	}

	if len(journaled.modes) == 0 {
		return fmt.Errorf("run %s has no journaled samples", source.ID)
	}

	records, locateFailures := w.locateAll(ctx, journaled.keys, max(1, args.Parallel))
	if err := ctx.Err(); err != nil {
		return err
	}

	byKey := make(map[m.BugKey]m.BugRecord, len(records))
	for _, record := range records {
		byKey[record.Key] = record
	}

	record := m.RunRecord{
		ID:          uuid.NewString(),
		Origin:      m.OriginEval,
		StartedAt:   time.Now(),
		Model:       source.Model,
		SampleCount: source.SampleCount,
		Shard:       source.Shard,
		Aborted:     source.Aborted,
		Discarded:   source.Discarded,
	}

	for _, mode := range journaled.modes {
		var outcomes []m.EvaluationOutcome

		for _, entry := range journaled.entries[mode] {
			located, ok := byKey[entry.key]
			if !ok {
				continue
			}

			outcomes = append(outcomes, w.orchestrator.Rescore(located, entry.samples)...)
			w.copySamples(ctx, record.ID, mode, entry)
		}

		failures := append(storedFailures(source, mode), locateFailures...)

		report := w.aggregator.Aggregate(mode, outcomes, failures)
		attachGroundTruth(&report, records)
		record.Experiments = append(record.Experiments, report)
	}

	record.FinishedAt = time.Now()

	slog.Info("Rescored run", "source", source.ID, "id", record.ID)

	if err := w.ui.Start(ctx, controller.WithViewMode()); err != nil {
		return err
	}
	defer w.ui.Close(context.WithoutCancel(ctx))

	return w.finish(ctx, record, args.Verbose)
}

// storedFailures returns the failures of a stored experiment. Failed bugs
// have no journaled samples, so they are carried over as they are.
func storedFailures(source m.RunRecord, mode m.Mode) []m.BugFailure {
	var out []m.BugFailure

	for _, experiment := range source.Experiments {
		if experiment.Mode == mode {
			out = append(out, experiment.Failures...)
		}
	}

	return out
}

type journalEntry struct {
	key     m.BugKey
	samples []m.Sample
}

type journalContents struct {
	modes   []m.Mode
	keys    []m.BugKey
	entries map[m.Mode][]journalEntry
}

func (w *workflow) readJournal(ctx context.Context, runID string) (journalContents, error) {
	contents := journalContents{entries: make(map[m.Mode][]journalEntry)}
	seen := make(map[m.BugKey]struct{})

	err := w.journal.ForEach(ctx, runID, func(mode m.Mode, key m.BugKey, samples []m.Sample) error {
		if _, ok := contents.entries[mode]; !ok {
			contents.modes = append(contents.modes, mode)
		}

		contents.entries[mode] = append(contents.entries[mode], journalEntry{key: key, samples: samples})

		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			contents.keys = append(contents.keys, key)
		}

		return nil
	})
	if err != nil {
		slog.Error("Failed to read sample journal", "run", runID, "error", err)
		return journalContents{}, fmt.Errorf("read journal: %w", err)
	}

	return contents, nil
}

func (w *workflow) copySamples(ctx context.Context, runID string, mode m.Mode, entry journalEntry) {
	if err := w.journal.Put(ctx, runID, mode, entry.key, entry.samples); err != nil {
		slog.Warn("Failed to journal samples", "run", runID, "bug", entry.key, "error", err)
	}
}

// Merge combines shard runs into one run with recomputed summaries.
func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	if err := w.require(map[string]bool{"run store": w.runs != nil}); err != nil {
		return err
	}

	unlock, err := w.runs.Lock(ctx)
	if err != nil {
		slog.Error("Failed to lock output directory", "error", err)
		return fmt.Errorf("lock output: %w", err)
	}
	defer w.release(unlock)

	runs, err := w.mergeInputs(ctx, args.RunIDs)
	if err != nil {
		return err
	}

	merged := w.mergeRuns(runs)

	if w.journal != nil {
		for _, run := range runs {
			journaled, err := w.readJournal(ctx, run.ID)
			if err != nil {
				slog.Warn("Failed to copy journaled samples", "run", run.ID, "error", err)
				continue
			}

			for _, mode := range journaled.modes {
				for _, entry := range journaled.entries[mode] {
					w.copySamples(ctx, merged.ID, mode, entry)
				}
			}
		}
	}

	slog.Info("Merged runs", "runs", len(runs), "id", merged.ID)

	if err := w.ui.Start(ctx, controller.WithViewMode()); err != nil {
		return err
	}
	defer w.ui.Close(context.WithoutCancel(ctx))

	return w.finish(ctx, merged, args.Verbose)
}

func (w *workflow) mergeInputs(ctx context.Context, ids []string) ([]m.RunRecord, error) {
	if len(ids) > 0 {
		runs := make([]m.RunRecord, 0, len(ids))

		for _, id := range ids {
			run, err := w.loadRun(ctx, id)
			if err != nil {
				return nil, err
			}

			runs = append(runs, run)
		}

		return runs, nil
	}

	all, err := w.runs.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return LatestShardSet(all)
}

// LatestShardSet picks the newest run of every shard index of the most
// recent sharded run. runs must be ordered by start time.
func LatestShardSet(runs []m.RunRecord) ([]m.RunRecord, error) {
	total := 0

	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Shard.Total > 1 {
			total = runs[i].Shard.Total
			break
		}
	}

	if total == 0 {
		return nil, errors.New("no sharded runs to merge")
	}

	set := make([]m.RunRecord, total)
	found := make([]bool, total)

	for _, run := range runs {
		if run.Shard.Total != total {
			continue
		}

		set[run.Shard.Index] = run
		found[run.Shard.Index] = true
	}

	for index, ok := range found {
		if !ok {
			return nil, fmt.Errorf("missing shard %d/%d", index, total)
		}
	}

	return set, nil
}

func (w *workflow) mergeRuns(runs []m.RunRecord) m.RunRecord {
	merged := m.RunRecord{
		ID:         uuid.NewString(),
		Origin:     m.OriginMerge,
		StartedAt:  runs[0].StartedAt,
		FinishedAt: runs[0].FinishedAt,
		Model:      runs[0].Model,
	}

	var (
		modes    []m.Mode
		outcomes = make(map[m.Mode][]m.EvaluationOutcome)
		failures = make(map[m.Mode][]m.BugFailure)
		truth    = make(map[m.BugKey]m.BugRecord)
	)

	for _, run := range runs {
		if run.Model != merged.Model {
			slog.Warn("Merging runs of different models", "run", run.ID, "model", run.Model, "expected", merged.Model)
		}

		merged.SampleCount = max(merged.SampleCount, run.SampleCount)
		merged.Aborted = merged.Aborted || run.Aborted
		merged.Discarded = append(merged.Discarded, run.Discarded...)

		if run.StartedAt.Before(merged.StartedAt) {
			merged.StartedAt = run.StartedAt
		}

		if run.FinishedAt.After(merged.FinishedAt) {
			merged.FinishedAt = run.FinishedAt
		}

		for _, experiment := range run.Experiments {
			if _, ok := outcomes[experiment.Mode]; !ok {
				modes = append(modes, experiment.Mode)
				outcomes[experiment.Mode] = nil
			}

			for _, result := range experiment.Results {
				outcomes[experiment.Mode] = append(outcomes[experiment.Mode], result.Outcomes...)
				truth[result.Bug] = m.BugRecord{Key: result.Bug, BuggyLines: result.Buggy, FixedLines: result.Fixed}
			}

			failures[experiment.Mode] = append(failures[experiment.Mode], experiment.Failures...)
		}
	}

	records := make([]m.BugRecord, 0, len(truth))
	for _, record := range truth {
		records = append(records, record)
	}

	for _, mode := range modes {
		report := w.aggregator.Aggregate(mode, outcomes[mode], failures[mode])
		attachGroundTruth(&report, records)
		merged.Experiments = append(merged.Experiments, report)
	}

	return merged
}
