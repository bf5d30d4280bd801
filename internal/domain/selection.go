package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// BugSelector narrows the benchmark down to the bugs of a run.
type BugSelector interface {
	// SelectBugs lists the benchmark, keeps the bugs whose project/bugid
	// matches one of patterns (all bugs when none are given) and then keeps
	// the bugs of the shard.
	SelectBugs(ctx context.Context, patterns []string, shard m.Shard) ([]m.BugKey, error)
}

type bugSelector struct {
	provider adapter.BenchmarkProvider
}

// NewBugSelector constructs a BugSelector over a benchmark provider.
func NewBugSelector(provider adapter.BenchmarkProvider) BugSelector {
	return &bugSelector{provider: provider}
}

func (s *bugSelector) SelectBugs(ctx context.Context, patterns []string, shard m.Shard) ([]m.BugKey, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid bug pattern %q", pattern)
		}
	}

	all, err := s.provider.List(ctx)
	if err != nil {
		slog.Error("Failed to list benchmark bugs", "error", err)
		return nil, fmt.Errorf("list bugs: %w", err)
	}

	matched := FilterBugs(all, patterns)
	selected := ShardBugs(matched, shard)

	slog.Debug("Selected bugs", "benchmark", len(all), "matched", len(matched), "shard", shard, "selected", len(selected))

	return selected, nil
}

// FilterBugs keeps the keys matching at least one doublestar pattern.
// Patterns are matched against project/bugid, so "black/*" selects a
// project and "*/1?" every bug numbered 10 to 19.
func FilterBugs(keys []m.BugKey, patterns []string) []m.BugKey {
	if len(patterns) == 0 {
		return keys
	}

	var out []m.BugKey

	for _, key := range keys {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, key.String()); ok {
				out = append(out, key)
				break
			}
		}
	}

	return out
}

// ShardBugs keeps the bugs of one shard using round-robin assignment.
// Sharding is disabled when Total is zero or one.
func ShardBugs(keys []m.BugKey, shard m.Shard) []m.BugKey {
	if shard.Total <= 1 {
		return keys
	}

	var out []m.BugKey

	for i, key := range keys {
		if i%shard.Total == shard.Index {
			out = append(out, key)
		}
	}

	return out
}

// ParseShard parses the "index/total" flag value. Index is zero-based.
func ParseShard(value string) (m.Shard, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return m.Shard{}, nil
	}

	indexText, totalText, ok := strings.Cut(value, "/")
	if !ok {
		return m.Shard{}, fmt.Errorf("invalid shard %q: expected index/total", value)
	}

	index, err := strconv.Atoi(indexText)
	if err != nil {
		return m.Shard{}, fmt.Errorf("invalid shard index %q: %w", indexText, err)
	}

	total, err := strconv.Atoi(totalText)
	if err != nil {
		return m.Shard{}, fmt.Errorf("invalid shard total %q: %w", totalText, err)
	}

	if total <= 0 || index < 0 || index >= total {
		return m.Shard{}, fmt.Errorf("invalid shard %q: index must be in [0, total)", value)
	}

	return m.Shard{Index: index, Total: total}, nil
}
