package domain

import (
	"math"
	"sort"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// ResultAggregator rolls the outcomes of one experiment up into per-bug
// results and the summary row.
type ResultAggregator interface {
	Aggregate(mode m.Mode, outcomes []m.EvaluationOutcome, failures []m.BugFailure) m.ExperimentReport
}

type resultAggregator struct{}

// NewResultAggregator constructs a ResultAggregator.
func NewResultAggregator() ResultAggregator {
	return &resultAggregator{}
}

// Aggregate groups outcomes by bug in order of first appearance. Bugs that
// only appear in failures have no samples: they are excluded from every
// denominator and reported through Failures and Summary.Excluded.
func (a *resultAggregator) Aggregate(mode m.Mode, outcomes []m.EvaluationOutcome, failures []m.BugFailure) m.ExperimentReport {
	index := make(map[m.BugKey]int)

	var results []m.BugResult

	for _, outcome := range outcomes {
		key := outcome.Sample.Bug

		i, ok := index[key]
		if !ok {
			i = len(results)
			index[key] = i
			results = append(results, m.BugResult{Bug: key, Mode: mode})
		}

		results[i].Outcomes = append(results[i].Outcomes, outcome)
		results[i].Solved = results[i].Solved || outcome.Correct
	}

	for i := range results {
		sort.SliceStable(results[i].Outcomes, func(a, b int) bool {
			return results[i].Outcomes[a].Sample.Index < results[i].Outcomes[b].Sample.Index
		})
	}

	summary := m.Summary{Mode: mode, Bugs: len(results)}

	for _, result := range results {
		summary.Samples += len(result.Outcomes)
		summary.CorrectSamples += result.CorrectCount()

		if result.Solved {
			summary.BugsSolved++
		}
	}

	excluded := make(map[m.BugKey]struct{})

	for _, failure := range failures {
		if _, evaluated := index[failure.Bug]; !evaluated {
			excluded[failure.Bug] = struct{}{}
		}
	}

	summary.Excluded = len(excluded)
	summary.Accuracy = percentage(summary.CorrectSamples, summary.Samples)
	summary.SolvedRate = percentage(summary.BugsSolved, summary.Bugs)

	return m.ExperimentReport{
		Mode:     mode,
		Results:  results,
		Failures: failures,
		Summary:  summary,
	}
}

// percentage returns part/total*100 rounded to two decimals, 0 when total
// is zero.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}

	return math.Round(float64(part)/float64(total)*10000) / 100
}
