package domain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// addSource is a small Python module used across the domain tests.
//
//	 1 import os
//	 3 def helper(a):
//	 6 def add(x, y):       buggy line 8
//	11 def tail():
//	14 VALUE = 1
var addSource = []string{
	"import os",
	"",
	"def helper(a):",
	"    return a * 2",
	"",
	"def add(x, y):",
	"    total = x",
	"    total = total - y",
	"    return total",
	"",
	"def tail():",
	"    pass",
	"",
	"VALUE = 1",
}

var addScopes = []m.Scope{
	{Name: "helper", Kind: m.ScopeFunction, Span: m.Span{Start: 3, End: 4}, Parent: -1},
	{Name: "add", Kind: m.ScopeFunction, Span: m.Span{Start: 6, End: 9}, Parent: -1},
	{Name: "tail", Kind: m.ScopeFunction, Span: m.Span{Start: 11, End: 12}, Parent: -1},
}

func addRecord() m.BugRecord {
	record := m.BugRecord{
		Key:        m.BugKey{Project: "calc", BugID: "1"},
		FilePath:   "calc/ops.py",
		SourcePath: "/checkouts/calc/1/0/calc/ops.py",
		Span:       m.Span{Start: 8, End: 8},
		FixedLines: []string{"    total = total + y"},
		Source:     addSource,
	}
	record.BuggyLines = record.Lines(record.Span)

	return record
}

// stubPython serves fixed scopes for every file.
type stubPython struct {
	scopes []m.Scope
	err    error
}

func (s stubPython) ExtractScopes(_ context.Context, _ m.Path, _ []byte) ([]m.Scope, error) {
	return s.scopes, s.err
}

// stubProvider is an in-memory benchmark keeping insertion order.
type stubProvider struct {
	bugs    map[m.BugKey]m.BugMetadata
	order   []m.BugKey
	root    string
	listErr error
}

func (p *stubProvider) add(key m.BugKey, meta m.BugMetadata) {
	if p.bugs == nil {
		p.bugs = map[m.BugKey]m.BugMetadata{}
	}

	meta.Key = key
	if _, ok := p.bugs[key]; !ok {
		p.order = append(p.order, key)
	}

	p.bugs[key] = meta
}

func (p *stubProvider) List(_ context.Context) ([]m.BugKey, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}

	return append([]m.BugKey(nil), p.order...), nil
}

func (p *stubProvider) Lookup(_ context.Context, key m.BugKey) (m.BugMetadata, error) {
	meta, ok := p.bugs[key]
	if !ok {
		return m.BugMetadata{}, fmt.Errorf("%s: %w", key, m.ErrBugNotFound)
	}

	return meta, nil
}

func (p *stubProvider) SourcePath(_ context.Context, key m.BugKey, version int, file string) m.Path {
	return m.Path(filepath.Join(p.root, key.Project, key.BugID, fmt.Sprint(version), file))
}

// writeCheckout writes lines as the buggy checkout of key below root.
func writeCheckout(t *testing.T, root string, key m.BugKey, file string, lines []string) {
	t.Helper()

	path := filepath.Join(root, key.Project, key.BugID, "0", file)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

// generatorFunc adapts a function to adapter.Generator.
type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// memoryJournal is an in-memory adapter.SampleStore.
type memoryJournal struct {
	mu      sync.Mutex
	samples map[string][]m.Sample
	order   []string
	puts    int
}

var _ adapter.SampleStore = (*memoryJournal)(nil)

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{samples: map[string][]m.Sample{}}
}

func journalKey(runID string, mode m.Mode, key m.BugKey) string {
	return runID + "|" + string(mode) + "|" + key.String()
}

func (j *memoryJournal) Put(_ context.Context, runID string, mode m.Mode, key m.BugKey, samples []m.Sample) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	k := journalKey(runID, mode, key)
	if _, ok := j.samples[k]; !ok {
		j.order = append(j.order, k)
	}

	j.samples[k] = append([]m.Sample(nil), samples...)
	j.puts++

	return nil
}

func (j *memoryJournal) Get(_ context.Context, runID string, mode m.Mode, key m.BugKey) ([]m.Sample, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	samples, ok := j.samples[journalKey(runID, mode, key)]

	return samples, ok, nil
}

func (j *memoryJournal) ForEach(_ context.Context, runID string, fn func(mode m.Mode, key m.BugKey, samples []m.Sample) error) error {
	j.mu.Lock()
	order := append([]string(nil), j.order...)
	j.mu.Unlock()

	for _, k := range order {
		parts := strings.SplitN(k, "|", 3)
		if parts[0] != runID {
			continue
		}

		key, err := m.ParseBugKey(parts[2])
		if err != nil {
			return err
		}

		j.mu.Lock()
		samples := j.samples[k]
		j.mu.Unlock()

		if err := fn(m.Mode(parts[1]), key, samples); err != nil {
			return err
		}
	}

	return nil
}

func (j *memoryJournal) Close() error { return nil }
