// Package model defines the data structures shared by the fixbench pipeline.
package model

import (
	"fmt"
	"strings"
)

// BugKey identifies a single bug of the benchmark.
type BugKey struct {
	Project string `json:"project" yaml:"project"`
	BugID   string `json:"bug_id" yaml:"bug_id"`
}

// String renders the key as project/bugid.
func (k BugKey) String() string {
	return k.Project + "/" + k.BugID
}

// ParseBugKey parses the project/bugid form produced by BugKey.String.
func ParseBugKey(value string) (BugKey, error) {
	project, bugID, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok || project == "" || bugID == "" || strings.Contains(bugID, "/") {
		return BugKey{}, fmt.Errorf("invalid bug key %q: expected project/bugid", value)
	}

	return BugKey{Project: project, BugID: bugID}, nil
}

// Span is a 1-indexed, inclusive line range.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of lines covered by the span.
func (s Span) Len() int {
	if s.End < s.Start {
		return 0
	}

	return s.End - s.Start + 1
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.Start && line <= s.End
}

// Covers reports whether other lies entirely inside the span.
func (s Span) Covers(other Span) bool {
	return other.Start >= s.Start && other.End <= s.End
}

// Within reports whether the span is non-empty and fits a file of total lines.
func (s Span) Within(total int) bool {
	return s.Start >= 1 && s.End >= s.Start && s.End <= total
}

// Clamp restricts the span to [1, total].
func (s Span) Clamp(total int) Span {
	return Span{Start: max(s.Start, 1), End: min(s.End, total)}
}

func (s Span) String() string {
	if s.Start == s.End {
		return fmt.Sprintf("L%d", s.Start)
	}

	return fmt.Sprintf("L%d-L%d", s.Start, s.End)
}

// BugMetadata is what the benchmark records about a bug, before any source
// file has been read.
type BugMetadata struct {
	Key         BugKey
	FilePath    string // relative to the checkout root
	Span        Span
	BuggyLines  []string
	FixedLines  []string
	BuggyCommit string
	FixedCommit string
	TestFile    string
}

// BugRecord is a located bug. It is immutable once BugLocator has built it.
type BugRecord struct {
	Key        BugKey
	Version    int
	FilePath   string
	SourcePath Path
	Span       Span
	BuggyLines []string
	FixedLines []string
	// Source holds the buggy file split into lines; Source[0] is line 1.
	Source []string
}

// Lines returns the source lines covered by span, clamped to the file.
func (b *BugRecord) Lines(span Span) []string {
	span = span.Clamp(len(b.Source))
	if span.Len() == 0 {
		return nil
	}

	out := make([]string, span.Len())
	copy(out, b.Source[span.Start-1:span.End])

	return out
}
