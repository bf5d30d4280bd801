package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// Manifest is the YAML document listing a curated set of bugs.
//
//	checkouts: ./checkouts
//	bugs:
//	  - project: black
//	    bug_id: "3"
//	    file: black.py
//	    span: {start: 120, end: 120}
//	    buggy: ["    return x+1"]
//	    fixed: ["    return x - 1"]
type Manifest struct {
	Checkouts string          `yaml:"checkouts"`
	Bugs      []ManifestEntry `yaml:"bugs"`
}

// ManifestEntry is one curated bug.
type ManifestEntry struct {
	Project string   `yaml:"project"`
	BugID   string   `yaml:"bug_id"`
	File    string   `yaml:"file"`
	Span    m.Span   `yaml:"span"`
	Buggy   []string `yaml:"buggy"`
	Fixed   []string `yaml:"fixed"`
}

// Key returns the entry's bug key.
func (e ManifestEntry) Key() m.BugKey {
	return m.BugKey{Project: e.Project, BugID: e.BugID}
}

// ManifestProvider serves bug metadata from a manifest held in memory.
type ManifestProvider struct {
	fs        SourceFSAdapter
	checkouts m.Path
	order     []m.BugKey
	entries   map[m.BugKey]ManifestEntry
}

// LoadManifestProvider reads and validates the manifest at path. A relative
// checkouts directory is resolved against the manifest's directory.
func LoadManifestProvider(ctx context.Context, fs SourceFSAdapter, path m.Path) (*ManifestProvider, error) {
	content, err := fs.ReadFile(ctx, path)
	if err != nil {
		slog.Error("Failed to read manifest", "path", path, "error", err)
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	checkouts := manifest.Checkouts
	if checkouts == "" {
		checkouts = "."
	}

	if !filepath.IsAbs(checkouts) {
		checkouts = string(fs.JoinPath(ctx, filepath.Dir(string(path)), checkouts))
	}

	return NewManifestProvider(fs, m.Path(checkouts), manifest.Bugs)
}

// NewManifestProvider builds a provider from already decoded entries.
func NewManifestProvider(fs SourceFSAdapter, checkouts m.Path, entries []ManifestEntry) (*ManifestProvider, error) {
	provider := &ManifestProvider{
		fs:        fs,
		checkouts: checkouts,
		entries:   make(map[m.BugKey]ManifestEntry, len(entries)),
	}

	for i, entry := range entries {
		if entry.Project == "" || entry.BugID == "" || entry.File == "" {
			return nil, fmt.Errorf("manifest entry %d: project, bug_id and file are required", i)
		}

		key := entry.Key()
		if _, ok := provider.entries[key]; ok {
			return nil, fmt.Errorf("manifest entry %d: duplicate bug %s", i, key)
		}

		provider.entries[key] = entry
		provider.order = append(provider.order, key)
	}

	return provider, nil
}

// List returns the bugs in manifest order.
func (p *ManifestProvider) List(_ context.Context) ([]m.BugKey, error) {
	keys := make([]m.BugKey, len(p.order))
	copy(keys, p.order)

	return keys, nil
}

// Lookup returns the manifest entry of a bug.
func (p *ManifestProvider) Lookup(_ context.Context, key m.BugKey) (m.BugMetadata, error) {
	entry, ok := p.entries[key]
	if !ok {
		return m.BugMetadata{}, fmt.Errorf("%s: %w", key, m.ErrBugNotFound)
	}

	return m.BugMetadata{
		Key:        key,
		FilePath:   entry.File,
		Span:       entry.Span,
		BuggyLines: entry.Buggy,
		FixedLines: entry.Fixed,
	}, nil
}

// SourcePath resolves a file inside the checkout of a bug.
func (p *ManifestProvider) SourcePath(ctx context.Context, key m.BugKey, version int, file string) m.Path {
	return checkoutPath(ctx, p.fs, p.checkouts, key, version, file)
}
