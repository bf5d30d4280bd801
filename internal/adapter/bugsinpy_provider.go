package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

const (
	bugInfoFile  = "bug.info"
	bugPatchFile = "bug_patch.txt"
)

// BugsInPyProvider reads bug metadata from a BugsInPy checkout:
//
//	<root>/projects/<project>/bugs/<id>/bug.info
//	<root>/projects/<project>/bugs/<id>/bug_patch.txt
//
// The defective span and the ground truth are derived from the patch.
type BugsInPyProvider struct {
	fs         SourceFSAdapter
	root       m.Path
	checkouts  m.Path
	singleLine bool
}

// NewBugsInPyProvider constructs a provider rooted at a BugsInPy clone. When
// singleLine is set only bugs fixed by replacing exactly one code line are
// part of the benchmark slice.
func NewBugsInPyProvider(fsAdapter SourceFSAdapter, root, checkouts m.Path, singleLine bool) *BugsInPyProvider {
	return &BugsInPyProvider{
		fs:         fsAdapter,
		root:       root,
		checkouts:  checkouts,
		singleLine: singleLine,
	}
}

// List walks projects/*/bugs/* and keeps the bugs whose patch qualifies.
func (p *BugsInPyProvider) List(ctx context.Context) ([]m.BugKey, error) {
	projectsDir := p.fs.JoinPath(ctx, string(p.root), "projects")

	projects, err := p.fs.ListDirs(ctx, projectsDir)
	if err != nil {
		slog.Error("Failed to list BugsInPy projects", "root", p.root, "error", err)
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var keys []m.BugKey

	for _, project := range projects {
		bugsDir := p.fs.JoinPath(ctx, string(projectsDir), project, "bugs")

		bugIDs, err := p.fs.ListDirs(ctx, bugsDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("list bugs of %s: %w", project, err)
		}

		sortNumeric(bugIDs)

		for _, bugID := range bugIDs {
			key := m.BugKey{Project: project, BugID: bugID}

			if _, err := p.Lookup(ctx, key); err != nil {
				if errors.Is(err, m.ErrBugNotFound) {
					slog.Debug("Skipping bug outside the benchmark slice", "bug", key, "reason", err)
					continue
				}

				return nil, err
			}

			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Lookup reads bug.info and bug_patch.txt of a bug.
func (p *BugsInPyProvider) Lookup(ctx context.Context, key m.BugKey) (m.BugMetadata, error) {
	bugDir := p.fs.JoinPath(ctx, string(p.root), "projects", key.Project, "bugs", key.BugID)

	info, err := p.fs.ReadFile(ctx, p.fs.JoinPath(ctx, string(bugDir), bugInfoFile))
	if err != nil {
		return m.BugMetadata{}, fmt.Errorf("%s: read %s: %w: %w", key, bugInfoFile, m.ErrBugNotFound, err)
	}

	patch, err := p.fs.ReadFile(ctx, p.fs.JoinPath(ctx, string(bugDir), bugPatchFile))
	if err != nil {
		return m.BugMetadata{}, fmt.Errorf("%s: read %s: %w: %w", key, bugPatchFile, m.ErrBugNotFound, err)
	}

	change, err := ParsePatch(patch)
	if err != nil {
		return m.BugMetadata{}, fmt.Errorf("%s: %w: %w", key, m.ErrBugNotFound, err)
	}

	if p.singleLine && !change.SingleLine() {
		return m.BugMetadata{}, fmt.Errorf("%s: %w: fix changes %d deleted and %d added code lines",
			key, m.ErrBugNotFound, len(change.Deleted), len(change.Added))
	}

	fields := ParseBugInfo(info)

	return m.BugMetadata{
		Key:         key,
		FilePath:    change.File,
		Span:        change.Span(),
		BuggyLines:  change.DeletedText(),
		FixedLines:  change.Added,
		BuggyCommit: fields["buggy_commit_id"],
		FixedCommit: fields["fixed_commit_id"],
		TestFile:    fields["test_file"],
	}, nil
}

// SourcePath resolves a file inside the checkout of a bug.
func (p *BugsInPyProvider) SourcePath(ctx context.Context, key m.BugKey, version int, file string) m.Path {
	return checkoutPath(ctx, p.fs, p.checkouts, key, version, file)
}

// ParseBugInfo parses the key="value" lines of a bug.info file.
func ParseBugInfo(content []byte) map[string]string {
	fields := map[string]string{}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		fields[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}

	return fields
}

// DeletedLine is a removed code line and its number in the buggy file.
type DeletedLine struct {
	Line int
	Text string
}

// PatchChange is the code-line change a patch makes to its single source file.
type PatchChange struct {
	File    string
	Deleted []DeletedLine
	Added   []string
}

// SingleLine reports whether exactly one code line was replaced.
func (c PatchChange) SingleLine() bool {
	return len(c.Deleted) == 1 && len(c.Added) == 1
}

// Span covers every deleted code line.
func (c PatchChange) Span() m.Span {
	if len(c.Deleted) == 0 {
		return m.Span{}
	}

	return m.Span{Start: c.Deleted[0].Line, End: c.Deleted[len(c.Deleted)-1].Line}
}

// DeletedText returns the deleted code lines.
func (c PatchChange) DeletedText() []string {
	lines := make([]string, 0, len(c.Deleted))
	for _, deleted := range c.Deleted {
		lines = append(lines, deleted.Text)
	}

	return lines
}

// ParsePatch extracts the code-line change from a unified diff. The patch
// must touch exactly one non-test Python file and delete at least one code
// line; blank and comment-only lines are ignored.
func ParsePatch(patch []byte) (PatchChange, error) {
	fileDiffs, err := diff.ParseMultiFileDiff(patch)
	if err != nil {
		return PatchChange{}, fmt.Errorf("parse patch: %w", err)
	}

	var sources []*diff.FileDiff

	for _, fileDiff := range fileDiffs {
		name := diffFileName(fileDiff)
		if path.Ext(name) == ".py" && !strings.Contains(strings.ToLower(name), "test") {
			sources = append(sources, fileDiff)
		}
	}

	if len(sources) != 1 {
		return PatchChange{}, fmt.Errorf("patch changes %d non-test python files, want 1", len(sources))
	}

	change := PatchChange{File: diffFileName(sources[0])}

	for _, hunk := range sources[0].Hunks {
		origLine := int(hunk.OrigStartLine)

		for _, line := range strings.Split(strings.TrimSuffix(string(hunk.Body), "\n"), "\n") {
			if line == "" {
				origLine++
				continue
			}

			switch line[0] {
			case '-':
				if isCodeLine(line[1:]) {
					change.Deleted = append(change.Deleted, DeletedLine{Line: origLine, Text: line[1:]})
				}

				origLine++
			case '+':
				if isCodeLine(line[1:]) {
					change.Added = append(change.Added, line[1:])
				}
			case '\\':
				// "\ No newline at end of file"
			default:
				origLine++
			}
		}
	}

	if len(change.Deleted) == 0 {
		return PatchChange{}, fmt.Errorf("patch deletes no code line in %s", change.File)
	}

	return change, nil
}

func diffFileName(fileDiff *diff.FileDiff) string {
	name := fileDiff.NewName
	if name == "" || name == "/dev/null" {
		name = fileDiff.OrigName
	}

	name = strings.TrimPrefix(name, "b/")

	return strings.TrimPrefix(name, "a/")
}

func isCodeLine(line string) bool {
	stripped := strings.TrimSpace(line)
	return stripped != "" && !strings.HasPrefix(stripped, "#")
}

func sortNumeric(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])

		if errA == nil && errB == nil {
			return a < b
		}

		return ids[i] < ids[j]
	})
}
