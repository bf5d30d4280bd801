package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

func sampleOf(completion string) m.Sample {
	return m.Sample{Bug: m.BugKey{Project: "calc", BugID: "1"}, Mode: m.ModeFLN, Completion: completion}
}

func TestScore_Window(t *testing.T) {
	scorer := NewCorrectnessScorer(MatchWindow)
	record := addRecord()

	tests := []struct {
		name       string
		completion string
		correct    bool
	}{
		{"bare line", "total = total + y", true},
		{"indented line", "        total = total + y", true},
		{"fenced", "```python\n    total = total + y\n```", true},
		{"marker and comment left in", "    total = total + y  # <BUGGY LINE>", true},
		{"whole function", "def add(x, y):\n    total = x\n    total = total + y\n    return total", true},
		{"still buggy", "total = total - y", false},
		{"whitespace inside the line matters", "total = total+y", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.correct, scorer.Score(sampleOf(tt.completion), record).Correct)
		})
	}
}

func TestScore_WhitespacePolicy(t *testing.T) {
	record := m.BugRecord{FixedLines: []string{"    return x + 1"}}

	for _, policy := range []MatchPolicy{MatchExact, MatchWindow} {
		outcome := NewCorrectnessScorer(policy).Score(sampleOf("return x+1"), record)
		assert.False(t, outcome.Correct, policy)
	}
}

func TestScore_Exact(t *testing.T) {
	scorer := NewCorrectnessScorer(MatchExact)
	record := addRecord()

	assert.True(t, scorer.Score(sampleOf("```\ntotal = total + y\n```"), record).Correct)
	assert.False(t, scorer.Score(sampleOf("total = x\ntotal = total + y"), record).Correct)
}

func TestScore_SentinelNeverCorrect(t *testing.T) {
	record := m.BugRecord{FixedLines: []string{m.GenerationFailedMarker}}
	sentinel := m.FailedSample(m.Prompt{Mode: m.ModeFN}, 0, 3, nil)

	assert.False(t, NewCorrectnessScorer(MatchWindow).Score(sentinel, record).Correct)
}

func TestScore_DeletedLine(t *testing.T) {
	record := m.BugRecord{FixedLines: nil}
	scorer := NewCorrectnessScorer(MatchWindow)

	assert.True(t, scorer.Score(sampleOf("```\n```"), record).Correct)
	assert.False(t, scorer.Score(sampleOf("pass"), record).Correct)
}

func TestScore_Pure(t *testing.T) {
	scorer := NewCorrectnessScorer(MatchWindow)
	sample := sampleOf("total = total + y")

	first := scorer.Score(sample, addRecord())
	second := scorer.Score(sample, addRecord())

	assert.Equal(t, first, second)
	assert.Equal(t, sample, first.Sample)
}

func TestNormalizeCode(t *testing.T) {
	got := NormalizeCode("```python\n  x  =  '#not a comment'   # real comment\n\n\t<FILL ME>\ny = 2\r\n```")
	assert.Equal(t, []string{"x = '#not a comment'", "y = 2"}, got)

	assert.Equal(t, []string{`s = "a\"#b"`}, NormalizeCode(`s = "a\"#b"  # c`))
	assert.Empty(t, NormalizeCode("# only a comment"))
}

func TestParseMatchPolicy(t *testing.T) {
	policy, err := ParseMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MatchWindow, policy)

	policy, err = ParseMatchPolicy("EXACT")
	require.NoError(t, err)
	assert.Equal(t, MatchExact, policy)

	_, err = ParseMatchPolicy("fuzzy")
	require.Error(t, err)
}
