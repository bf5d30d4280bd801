// Package domain implements the fixbench evaluation pipeline: locating bugs,
// building heuristic contexts, rendering prompts, collecting and scoring
// samples, and aggregating the results of an experiment.
package domain

import (
	"context"
	"fmt"
	"log/slog"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// BugLocator resolves a bug identifier into a located BugRecord.
type BugLocator interface {
	Locate(ctx context.Context, key m.BugKey) (m.BugRecord, error)
}

type bugLocator struct {
	provider  adapter.BenchmarkProvider
	fsAdapter adapter.SourceFSAdapter
	version   int
}

// NewBugLocator constructs a BugLocator reading metadata from provider and
// source files of the given checkout version through fsAdapter.
func NewBugLocator(provider adapter.BenchmarkProvider, fsAdapter adapter.SourceFSAdapter, version int) BugLocator {
	return &bugLocator{
		provider:  provider,
		fsAdapter: fsAdapter,
		version:   version,
	}
}

func (l *bugLocator) Locate(ctx context.Context, key m.BugKey) (m.BugRecord, error) {
	meta, err := l.provider.Lookup(ctx, key)
	if err != nil {
		slog.Debug("Benchmark has no usable entry", "bug", key, "error", err)
		return m.BugRecord{}, err
	}

	path := l.provider.SourcePath(ctx, key, l.version, meta.FilePath)

	lines, err := l.fsAdapter.ReadLines(ctx, path)
	if err != nil {
		slog.Error("Failed to read bug source", "bug", key, "path", path, "error", err)
		return m.BugRecord{}, fmt.Errorf("%s: %w: %w", key, m.ErrSourceUnavailable, err)
	}

	if !meta.Span.Within(len(lines)) {
		return m.BugRecord{}, fmt.Errorf("%s: %w: %s outside %s (%d lines)",
			key, m.ErrInvalidSpan, meta.Span, meta.FilePath, len(lines))
	}

	record := m.BugRecord{
		Key:        key,
		Version:    l.version,
		FilePath:   meta.FilePath,
		SourcePath: path,
		Span:       meta.Span,
		BuggyLines: meta.BuggyLines,
		FixedLines: meta.FixedLines,
		Source:     lines,
	}

	if len(record.BuggyLines) == 0 {
		record.BuggyLines = record.Lines(meta.Span)
	}

	return record, nil
}
