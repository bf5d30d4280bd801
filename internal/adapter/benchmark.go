package adapter

import (
	"context"
	"fmt"
	"strconv"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// Benchmark formats understood by NewBenchmarkProvider.
const (
	FormatBugsInPy = "bugsinpy"
	FormatManifest = "manifest"
)

// BenchmarkProvider is the read-only view of the benchmark metadata. It is
// injected into the locator so tests can substitute a fixture set of bugs.
type BenchmarkProvider interface {
	// List returns every bug of the benchmark slice in a stable order.
	List(ctx context.Context) ([]m.BugKey, error)

	// Lookup returns the metadata of one bug, or an error wrapping
	// model.ErrBugNotFound when the benchmark has no entry for it.
	Lookup(ctx context.Context, key m.BugKey) (m.BugMetadata, error)

	// SourcePath resolves a file of the given checkout version of a bug.
	// Version 0 is the buggy tree and 1 the fixed one.
	SourcePath(ctx context.Context, key m.BugKey, version int, file string) m.Path
}

// BenchmarkOptions configures NewBenchmarkProvider.
type BenchmarkOptions struct {
	Format    string
	Root      m.Path
	Checkouts m.Path
	// IncludeMultiLine keeps bugs whose fix touches more than one line.
	IncludeMultiLine bool
}

// NewBenchmarkProvider builds the provider for the configured format.
func NewBenchmarkProvider(ctx context.Context, fs SourceFSAdapter, opts BenchmarkOptions) (BenchmarkProvider, error) {
	switch opts.Format {
	case FormatBugsInPy, "":
		return NewBugsInPyProvider(fs, opts.Root, opts.Checkouts, !opts.IncludeMultiLine), nil
	case FormatManifest:
		return LoadManifestProvider(ctx, fs, opts.Root)
	default:
		return nil, fmt.Errorf("unknown benchmark format %q", opts.Format)
	}
}

// checkoutPath lays out checkouts as <root>/<project>/<bug>/<version>/<file>,
// the tree the benchmark tooling produces.
func checkoutPath(ctx context.Context, fs SourceFSAdapter, root m.Path, key m.BugKey, version int, file string) m.Path {
	return fs.JoinPath(ctx, string(root), key.Project, key.BugID, strconv.Itoa(version), file)
}
