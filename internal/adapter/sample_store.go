package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// SampleJournalFile is the bbolt database name inside the output directory.
const SampleJournalFile = "samples.db"

// SampleStore journals the completions collected for each bug so a run can be
// rescored or resumed without calling the model again.
type SampleStore interface {
	// Put stores the complete sample set of one bug in one experiment.
	Put(ctx context.Context, runID string, mode m.Mode, key m.BugKey, samples []m.Sample) error
	// Get returns the stored sample set; ok is false when nothing is stored.
	Get(ctx context.Context, runID string, mode m.Mode, key m.BugKey) (samples []m.Sample, ok bool, err error)
	// ForEach visits every stored sample set of a run.
	ForEach(ctx context.Context, runID string, fn func(mode m.Mode, key m.BugKey, samples []m.Sample) error) error
	Close() error
}

// BoltSampleStore is the bbolt-backed SampleStore. The layout is one bucket
// per run holding one sub-bucket per mode, keyed by project/bugid with the
// JSON-encoded sample set as value. Writes are transactional so an aborted
// run never leaves a half-written set behind.
type BoltSampleStore struct {
	db *bolt.DB
}

// OpenBoltSampleStore opens (or creates) the journal at path.
func OpenBoltSampleStore(path m.Path) (*BoltSampleStore, error) {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := bolt.Open(string(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}

	return &BoltSampleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltSampleStore) Close() error {
	return s.db.Close()
}

// Put implements SampleStore.
func (s *BoltSampleStore) Put(ctx context.Context, runID string, mode m.Mode, key m.BugKey, samples []m.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("marshal samples: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		run, err := tx.CreateBucketIfNotExists([]byte(runID))
		if err != nil {
			return err
		}

		bucket, err := run.CreateBucketIfNotExists([]byte(mode))
		if err != nil {
			return err
		}

		return bucket.Put([]byte(key.String()), payload)
	})
}

// Get implements SampleStore.
func (s *BoltSampleStore) Get(ctx context.Context, runID string, mode m.Mode, key m.BugKey) ([]m.Sample, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var payload []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		run := tx.Bucket([]byte(runID))
		if run == nil {
			return nil
		}

		bucket := run.Bucket([]byte(mode))
		if bucket == nil {
			return nil
		}

		if value := bucket.Get([]byte(key.String())); value != nil {
			payload = append([]byte(nil), value...)
		}

		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read samples: %w", err)
	}

	if payload == nil {
		return nil, false, nil
	}

	var samples []m.Sample
	if err := json.Unmarshal(payload, &samples); err != nil {
		return nil, false, fmt.Errorf("decode samples of %s: %w", key, err)
	}

	return samples, true, nil
}

// ForEach implements SampleStore. Modes and bugs are visited in key order.
func (s *BoltSampleStore) ForEach(ctx context.Context, runID string, fn func(m.Mode, m.BugKey, []m.Sample) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		run := tx.Bucket([]byte(runID))
		if run == nil {
			return fmt.Errorf("%w: no samples journaled for %s", ErrRunNotFound, runID)
		}

		return run.ForEachBucket(func(modeName []byte) error {
			mode := m.Mode(modeName)

			return run.Bucket(modeName).ForEach(func(k, v []byte) error {
				if err := ctx.Err(); err != nil {
					return err
				}

				key, err := m.ParseBugKey(string(k))
				if err != nil {
					return err
				}

				var samples []m.Sample
				if err := json.Unmarshal(v, &samples); err != nil {
					return fmt.Errorf("decode samples of %s: %w", key, err)
				}

				return fn(mode, key, samples)
			})
		})
	})
}

// IsJournalBusy reports whether err means another process holds the journal.
func IsJournalBusy(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}
