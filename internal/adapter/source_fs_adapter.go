// Package adapter contains the infrastructure adapters of fixbench: benchmark
// providers, source parsing, model backends and persistence.
package adapter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// SourceFSAdapter abstracts the read-only filesystem access the pipeline
// needs when reading benchmark metadata and checked-out source trees. It
// hides direct `os` access so the domain logic can be tested without touching
// the disk.
type SourceFSAdapter interface {
	// ReadFile loads a file from disk and returns its contents.
	ReadFile(ctx context.Context, path m.Path) ([]byte, error)

	// ReadLines loads a text file and splits it into lines without their
	// terminators. A trailing newline does not produce an empty last line.
	ReadLines(ctx context.Context, path m.Path) ([]string, error)

	// FileInfo returns metadata for a path so callers can check existence or
	// distinguish between files and directories.
	FileInfo(ctx context.Context, path m.Path) (os.FileInfo, error)

	// ListDirs returns the sorted names of the directories directly under root.
	ListDirs(ctx context.Context, root m.Path) ([]string, error)

	// JoinPath joins path elements into a single path.
	JoinPath(ctx context.Context, elem ...string) m.Path
}

// LocalSourceFSAdapter is the os-backed SourceFSAdapter.
type LocalSourceFSAdapter struct{}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter instance ready to
// be wired into the locator and the benchmark providers.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{}
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(ctx context.Context, path m.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// #nosec G304 - path comes from benchmark metadata
	return os.ReadFile(string(path))
}

// ReadLines loads a text file and returns its lines.
func (a *LocalSourceFSAdapter) ReadLines(ctx context.Context, path m.Path) ([]string, error) {
	content, err := a.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	return SplitLines(content)
}

// SplitLines splits content into lines, accepting both \n and \r\n endings.
func SplitLines(content []byte) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("split lines: %w", err)
	}

	return lines, nil
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(ctx context.Context, path m.Path) (os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return os.Stat(string(path))
}

// ListDirs returns the names of the sub-directories of root in lexical order.
func (a *LocalSourceFSAdapter) ListDirs(ctx context.Context, root m.Path) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(string(root))
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}

	sort.Strings(dirs)

	return dirs, nil
}

// JoinPath joins path elements into a single path.
func (a *LocalSourceFSAdapter) JoinPath(_ context.Context, elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
