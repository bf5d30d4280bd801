package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/nightlyone/lockfile"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

const (
	runFileName     = "run.json"
	summaryFileName = "summary.json"
	lockFileName    = ".fixbench.lock"
)

// ErrRunNotFound is returned when no stored run matches a request.
var ErrRunNotFound = errors.New("run not found")

// ErrOutputLocked is returned when another process holds the output directory.
var ErrOutputLocked = errors.New("output directory is locked by another fixbench process")

// RunStore persists run records below an output directory:
//
//	<root>/<run-id>/run.json      canonical RunRecord
//	<root>/<run-id>/summary.json  summary rows
type RunStore interface {
	// Lock takes the output directory lock for the lifetime of a run.
	Lock(ctx context.Context) (unlock func() error, err error)
	SaveRun(ctx context.Context, record m.RunRecord) (m.Path, error)
	LoadRun(ctx context.Context, id string) (m.RunRecord, error)
	// LatestRun returns the most recently started run.
	LatestRun(ctx context.Context) (m.RunRecord, error)
	// ListRuns returns every stored run ordered by start time.
	ListRuns(ctx context.Context) ([]m.RunRecord, error)
	Root() m.Path
}

// LocalRunStore is the filesystem RunStore.
type LocalRunStore struct {
	root m.Path
}

// NewLocalRunStore constructs a store rooted at dir. The directory is created
// on first save.
func NewLocalRunStore(dir m.Path) *LocalRunStore {
	return &LocalRunStore{root: dir}
}

// Root returns the output directory.
func (s *LocalRunStore) Root() m.Path {
	return s.root
}

// Lock acquires <root>/.fixbench.lock. Stale locks of dead processes are
// taken over.
func (s *LocalRunStore) Lock(_ context.Context) (func() error, error) {
	if err := os.MkdirAll(string(s.root), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	lockPath, err := filepath.Abs(filepath.Join(string(s.root), lockFileName))
	if err != nil {
		return nil, fmt.Errorf("resolve lock path: %w", err)
	}

	lock, err := lockfile.New(lockPath)
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}

	if err := lock.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			return nil, fmt.Errorf("%w: %s", ErrOutputLocked, lockPath)
		}

		slog.Error("Failed to lock output directory", "path", lockPath, "error", err)

		return nil, fmt.Errorf("lock output dir: %w", err)
	}

	return lock.Unlock, nil
}

// SaveRun writes run.json and summary.json of a record.
func (s *LocalRunStore) SaveRun(ctx context.Context, record m.RunRecord) (m.Path, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if record.ID == "" {
		return "", errors.New("save run: empty run id")
	}

	dir := filepath.Join(string(s.root), record.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Error("Failed to create run directory", "dir", dir, "error", err)
		return "", fmt.Errorf("create run dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, runFileName), record); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(dir, summaryFileName), record.Summaries()); err != nil {
		return "", err
	}

	slog.Info("Saved run", "id", record.ID, "dir", dir)

	return m.Path(dir), nil
}

// LoadRun reads the record of one run.
func (s *LocalRunStore) LoadRun(ctx context.Context, id string) (m.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return m.RunRecord{}, err
	}

	path := filepath.Join(string(s.root), id, runFileName)

	// #nosec G304 - path is built from the output directory
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}

		return m.RunRecord{}, fmt.Errorf("read run %s: %w", id, err)
	}

	var record m.RunRecord
	if err := json.Unmarshal(content, &record); err != nil {
		return m.RunRecord{}, fmt.Errorf("decode run %s: %w", id, err)
	}

	return record, nil
}

// ListRuns loads every run directory under the root.
func (s *LocalRunStore) ListRuns(ctx context.Context) ([]m.RunRecord, error) {
	entries, err := os.ReadDir(string(s.root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list runs: %w", err)
	}

	var records []m.RunRecord

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		record, err := s.LoadRun(ctx, entry.Name())
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

// LatestRun returns the run with the latest start time.
func (s *LocalRunStore) LatestRun(ctx context.Context) (m.RunRecord, error) {
	records, err := s.ListRuns(ctx)
	if err != nil {
		return m.RunRecord{}, err
	}

	if len(records) == 0 {
		return m.RunRecord{}, fmt.Errorf("%w in %s", ErrRunNotFound, s.root)
	}

	return records[len(records)-1], nil
}

func writeJSON(path string, value any) error {
	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(content, '\n'), 0o600); err != nil {
		slog.Error("Failed to write file", "path", tmp, "error", err)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}

	return nil
}
