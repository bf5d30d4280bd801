package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// Defaults for ContextOptions.
const (
	DefaultFallbackWindow = 21
	// NeighborRadius extends CFN contexts to the neighboring definitions
	// instead of a fixed number of lines.
	NeighborRadius = -1
)

// ContextOptions tunes the heuristic context windows.
type ContextOptions struct {
	// Radius is the number of lines added on each side of the function for
	// CFN; NeighborRadius selects the preceding and following definitions.
	Radius int
	// FallbackWindow is the size of the window used when no enclosing
	// function exists.
	FallbackWindow int
	// MaxChars bounds the tier payload; zero disables the check.
	MaxChars int
	// Truncate shrinks the CFN extension to fit MaxChars instead of failing.
	Truncate bool
}

// DefaultContextOptions returns the options used when nothing is configured.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		Radius:         NeighborRadius,
		FallbackWindow: DefaultFallbackWindow,
	}
}

// HeuristicContextBuilder produces the context payload of a tier for a
// located bug.
type HeuristicContextBuilder interface {
	Build(ctx context.Context, record m.BugRecord, tier m.Tier) (m.HeuristicContext, error)
}

type heuristicContextBuilder struct {
	python adapter.PythonFileAdapter
	opts   ContextOptions
}

// NewHeuristicContextBuilder constructs a builder that finds enclosing
// definitions with the python adapter.
func NewHeuristicContextBuilder(python adapter.PythonFileAdapter, opts ContextOptions) HeuristicContextBuilder {
	if opts.FallbackWindow <= 0 {
		opts.FallbackWindow = DefaultFallbackWindow
	}

	if opts.Radius < NeighborRadius {
		opts.Radius = NeighborRadius
	}

	return &heuristicContextBuilder{python: python, opts: opts}
}

func (b *heuristicContextBuilder) Build(ctx context.Context, record m.BugRecord, tier m.Tier) (m.HeuristicContext, error) {
	if !record.Span.Within(len(record.Source)) {
		return nil, fmt.Errorf("%s: %w: %s", record.Key, m.ErrInvalidSpan, record.Span)
	}

	content := []byte(strings.Join(record.Source, "\n") + "\n")

	scopes, err := b.python.ExtractScopes(ctx, record.SourcePath, content)
	if err != nil {
		slog.Error("Failed to extract scopes", "bug", record.Key, "path", record.SourcePath, "error", err)
		return nil, fmt.Errorf("extract scopes of %s: %w", record.Key, err)
	}

	fn, parent := b.buildFN(record, scopes)

	var payload m.HeuristicContext

	switch tier {
	case m.TierFN:
		payload = fn
	case m.TierFLN:
		payload = buildFLN(fn)
	case m.TierCFN:
		return b.buildCFN(record, buildFLN(fn), scopes, parent)
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	if err := b.checkBudget(record.Key, payload.Lines()); err != nil {
		return nil, err
	}

	return payload, nil
}

// buildFN selects the smallest function or method covering the whole span.
// It also returns the parent index used to find sibling definitions.
func (b *heuristicContextBuilder) buildFN(record m.BugRecord, scopes []m.Scope) (*m.FNContext, int) {
	best := -1

	for i, scope := range scopes {
		if !scope.IsCallable() || !scope.Span.Covers(record.Span) {
			continue
		}

		if best < 0 || scope.Span.Len() <= scopes[best].Span.Len() {
			best = i
		}
	}

	if best >= 0 {
		scope := scopes[best]

		return &m.FNContext{
			Bug:      record,
			Function: scope.Name,
			Region:   scope.Span,
			Excerpt:  record.Lines(scope.Span),
		}, best
	}

	region := fallbackWindow(record.Span, b.opts.FallbackWindow, len(record.Source))
	slog.Debug("No enclosing function, using fallback window", "bug", record.Key, "region", region)

	return &m.FNContext{
		Bug:      record,
		Region:   region,
		Excerpt:  record.Lines(region),
		Fallback: true,
	}, -1
}

// fallbackWindow centers a window of size lines on span, shifted to stay
// inside the file.
func fallbackWindow(span m.Span, size, total int) m.Span {
	extra := max(size-span.Len(), 0)
	before := extra / 2
	after := extra - before

	region := m.Span{Start: span.Start - before, End: span.End + after}

	if region.Start < 1 {
		region.End += 1 - region.Start
		region.Start = 1
	}

	if region.End > total {
		region.Start -= region.End - total
		region.End = total
	}

	return region.Clamp(total)
}

func buildFLN(fn *m.FNContext) *m.FLNContext {
	fln := &m.FLNContext{
		FNContext: *fn,
		Marked:    make([]string, len(fn.Excerpt)),
	}

	for line := fn.Bug.Span.Start; line <= fn.Bug.Span.End; line++ {
		fln.Markers = append(fln.Markers, line)
	}

	for i, text := range fn.Excerpt {
		line := fn.Region.Start + i
		if fn.Bug.Span.Contains(line) {
			text = markLine(text)
		}

		fln.Marked[i] = text
	}

	return fln
}

func markLine(text string) string {
	if strings.TrimSpace(text) == "" {
		return text + m.BuggyLineMarker
	}

	return text + "  " + m.BuggyLineMarker
}

func (b *heuristicContextBuilder) buildCFN(record m.BugRecord, fln *m.FLNContext, scopes []m.Scope, selected int) (*m.CFNContext, error) {
	region := fln.Region
	extended := b.extendedRegion(region, scopes, selected, len(record.Source))

	before := record.Lines(m.Span{Start: extended.Start, End: region.Start - 1})
	after := record.Lines(m.Span{Start: region.End + 1, End: extended.End})

	cfn := &m.CFNContext{
		FLNContext:      *fln,
		Extended:        extended,
		ExtendedExcerpt: joinExcerpt(before, fln.Marked, after, false, false),
	}

	if b.opts.MaxChars <= 0 || textLen(cfn.ExtendedExcerpt) <= b.opts.MaxChars {
		return cfn, nil
	}

	if !b.opts.Truncate {
		return nil, b.budgetError(record.Key, cfn.ExtendedExcerpt)
	}

	// Clip the outermost lines of both sides until the payload fits.
	keptBefore, keptAfter := len(before), len(after)

	for {
		if keptBefore > 0 {
			keptBefore--
		}

		if keptAfter > 0 {
			keptAfter--
		}

		lines := joinExcerpt(before[len(before)-keptBefore:], fln.Marked, after[:keptAfter],
			keptBefore < len(before), keptAfter < len(after))

		if textLen(lines) <= b.opts.MaxChars {
			cfn.Extended = m.Span{Start: region.Start - keptBefore, End: region.End + keptAfter}
			cfn.ExtendedExcerpt = lines
			cfn.Truncated = true

			slog.Debug("Truncated CFN context", "bug", record.Key, "extended", cfn.Extended)

			return cfn, nil
		}

		if keptBefore == 0 && keptAfter == 0 {
			return nil, b.budgetError(record.Key, lines)
		}
	}
}

func (b *heuristicContextBuilder) extendedRegion(region m.Span, scopes []m.Scope, selected, total int) m.Span {
	if b.opts.Radius >= 0 {
		return m.Span{Start: region.Start - b.opts.Radius, End: region.End + b.opts.Radius}.Clamp(total)
	}

	parent := -1
	if selected >= 0 {
		parent = scopes[selected].Parent
	}

	extended := region

	prevEnd, nextStart := 0, total+1

	for i, scope := range scopes {
		if i == selected || scope.Parent != parent {
			continue
		}

		if scope.Span.End < region.Start && scope.Span.End > prevEnd {
			prevEnd = scope.Span.End
			extended.Start = scope.Span.Start
		}

		if scope.Span.Start > region.End && scope.Span.Start < nextStart {
			nextStart = scope.Span.Start
			extended.End = scope.Span.End
		}
	}

	return extended
}

func joinExcerpt(before, core, after []string, clippedBefore, clippedAfter bool) []string {
	lines := make([]string, 0, len(before)+len(core)+len(after)+2)

	if clippedBefore {
		lines = append(lines, m.TruncationMarker)
	}

	lines = append(lines, before...)
	lines = append(lines, core...)
	lines = append(lines, after...)

	if clippedAfter {
		lines = append(lines, m.TruncationMarker)
	}

	return lines
}

func (b *heuristicContextBuilder) checkBudget(key m.BugKey, lines []string) error {
	if b.opts.MaxChars > 0 && textLen(lines) > b.opts.MaxChars {
		return b.budgetError(key, lines)
	}

	return nil
}

func (b *heuristicContextBuilder) budgetError(key m.BugKey, lines []string) error {
	return fmt.Errorf("%s: %w: %d chars exceed the limit of %d", key, m.ErrContextTooLarge, textLen(lines), b.opts.MaxChars)
}

// textLen is len(strings.Join(lines, "\n")) without building the string.
func textLen(lines []string) int {
	if len(lines) == 0 {
		return 0
	}

	n := len(lines) - 1
	for _, line := range lines {
		n += len(line)
	}

	return n
}
