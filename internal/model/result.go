package model

import "time"

// BugResult is the per-bug aggregate of one experiment.
type BugResult struct {
	Bug      BugKey              `json:"bug"`
	Mode     Mode                `json:"mode"`
	Outcomes []EvaluationOutcome `json:"outcomes"`
	// Solved is true iff at least one outcome is correct.
	Solved bool `json:"solved"`
	// Buggy and Fixed carry the ground truth for reports.
	Buggy []string `json:"buggy,omitempty"`
	Fixed []string `json:"fixed,omitempty"`
}

// CorrectCount returns how many outcomes were judged correct.
func (r BugResult) CorrectCount() int {
	correct := 0

	for _, outcome := range r.Outcomes {
		if outcome.Correct {
			correct++
		}
	}

	return correct
}

// LocatedBug describes where a bug was found, for dry runs.
type LocatedBug struct {
	Bug      BugKey   `json:"bug"`
	File     string   `json:"file"`
	Span     Span     `json:"span"`
	Function string   `json:"function,omitempty"`
	Region   Span     `json:"region"`
	Fallback bool     `json:"fallback,omitempty"`
	Buggy    []string `json:"buggy"`
	Fixed    []string `json:"fixed"`
}

// Stage names the pipeline step a failure happened in.
type Stage string

// Pipeline stages.
const (
	StageLocate  Stage = "locate"
	StageContext Stage = "context"
	StageRender  Stage = "render"
	StageCollect Stage = "collect"
)

// BugFailure records a bug that could not be evaluated. An empty Mode means
// the failure applies to every experiment of the run.
type BugFailure struct {
	Bug    BugKey    `json:"bug"`
	Mode   Mode      `json:"mode,omitempty"`
	Stage  Stage     `json:"stage"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// Summary is the report row of one experiment.
type Summary struct {
	Mode           Mode    `json:"mode"`
	Bugs           int     `json:"total_bugs"`
	Samples        int     `json:"total_samples"`
	CorrectSamples int     `json:"total_correct"`
	Accuracy       float64 `json:"overall_accuracy"`
	BugsSolved     int     `json:"bugs_with_at_least_one_correct"`
	SolvedRate     float64 `json:"bugs_solved_rate"`
	Excluded       int     `json:"excluded_bugs"`
}

// ExperimentReport is the complete outcome of one mode over the benchmark.
type ExperimentReport struct {
	Mode     Mode         `json:"mode"`
	Results  []BugResult  `json:"results"`
	Failures []BugFailure `json:"failures,omitempty"`
	Summary  Summary      `json:"summary"`
}

// Shard identifies the slice of the benchmark a run covered.
type Shard struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// Origin tells which command produced a run record.
type Origin string

// Run record origins. Records written before origins existed decode as
// OriginRun.
const (
	OriginRun   Origin = ""
	OriginEval  Origin = "eval"
	OriginMerge Origin = "merge"
)

// RunRecord is the persisted artifact of one fixbench run.
type RunRecord struct {
	ID          string             `json:"id"`
	Origin      Origin             `json:"origin,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Model       string             `json:"model"`
	SampleCount int                `json:"sample_count"`
	Shard       Shard              `json:"shard"`
	Aborted     bool               `json:"aborted,omitempty"`
	Discarded   []BugKey           `json:"discarded,omitempty"`
	Experiments []ExperimentReport `json:"experiments"`
}

// Resumable reports whether run --resume for shard may continue this record.
func (r RunRecord) Resumable(shard Shard) bool {
	return r.Origin == OriginRun && r.Shard == shard
}

// Summaries returns the summary row of every experiment in run order.
func (r RunRecord) Summaries() []Summary {
	rows := make([]Summary, 0, len(r.Experiments))
	for _, experiment := range r.Experiments {
		rows = append(rows, experiment.Summary)
	}

	return rows
}
