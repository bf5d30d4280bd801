package domain

import (
	"fmt"
	"slices"
	"strings"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// MatchPolicy selects how normalized completions are compared with the
// ground truth.
type MatchPolicy string

const (
	// MatchExact requires the completion to be exactly the fixed lines.
	MatchExact MatchPolicy = "exact"
	// MatchWindow accepts any contiguous run of completion lines equal to the
	// fixed lines, so a completion returning the whole function still counts.
	MatchWindow MatchPolicy = "window"
)

// ParseMatchPolicy validates a policy name; empty selects MatchWindow.
// MatchWindow is the benchmark default and MatchExact is the literal
// line-for-line policy.
func ParseMatchPolicy(value string) (MatchPolicy, error) {
	switch MatchPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case MatchExact:
		return MatchExact, nil
	case MatchWindow, "":
		return MatchWindow, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", value)
	}
}

// CorrectnessScorer judges a sample against the ground truth of its bug.
// Score is a pure function of its inputs.
type CorrectnessScorer interface {
	Score(sample m.Sample, record m.BugRecord) m.EvaluationOutcome
}

type correctnessScorer struct {
	policy MatchPolicy
}

// NewCorrectnessScorer constructs a scorer for the given policy.
func NewCorrectnessScorer(policy MatchPolicy) CorrectnessScorer {
	if policy == "" {
		policy = MatchWindow
	}

	return &correctnessScorer{policy: policy}
}

func (s *correctnessScorer) Score(sample m.Sample, record m.BugRecord) m.EvaluationOutcome {
	outcome := m.EvaluationOutcome{Sample: sample}
	if sample.Failed {
		return outcome
	}

	got := NormalizeCode(sample.Completion)
	want := NormalizeCode(strings.Join(record.FixedLines, "\n"))

	switch {
	case len(want) == 0:
		outcome.Correct = len(got) == 0
	case s.policy == MatchExact:
		outcome.Correct = slices.Equal(got, want)
	default:
		outcome.Correct = containsRun(got, want)
	}

	return outcome
}

func containsRun(lines, run []string) bool {
	for start := 0; start+len(run) <= len(lines); start++ {
		if slices.Equal(lines[start:start+len(run)], run) {
			return true
		}
	}

	return false
}

// NormalizeCode turns text into comparable code lines: Markdown fences,
// prompt markers and trailing comments are removed, whitespace runs collapse
// to one space and blank lines are dropped.
func NormalizeCode(text string) []string {
	var lines []string

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}

		line = strings.ReplaceAll(line, "<BUGGY LINE>", "")
		line = strings.ReplaceAll(line, m.MaskMarker, "")
		line = strings.Join(strings.Fields(stripComment(line)), " ")

		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

// stripComment cuts a Python line at the first '#' outside a string literal.
func stripComment(line string) string {
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i]
		}
	}

	return line
}
