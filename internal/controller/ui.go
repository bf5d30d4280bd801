// Package controller renders fixbench progress and reports to the terminal.
package controller

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeRun StartMode = iota
	ModeLocate
	ModeView
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithRunMode sets the UI to experiment execution mode.
func WithRunMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRun
	}
}

// WithLocateMode sets the UI to the dry-run listing mode.
func WithLocateMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeLocate
	}
}

// WithViewMode sets the UI to display a stored run.
func WithViewMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeView
	}
}

func newStartConfig(options []StartOption) StartConfig {
	var cfg StartConfig
	for _, option := range options {
		option(&cfg)
	}

	return cfg
}

// RunInfo describes a run about to start.
type RunInfo struct {
	ID       string
	Model    string
	Modes    []m.Mode
	Bugs     int
	Samples  int
	Parallel int
	Shard    m.Shard
	Resumed  bool
}

// Progress reports one finished bug of an experiment.
type Progress struct {
	Bug       m.BugKey
	Done      int
	Total     int
	Solved    bool
	Failed    bool
	Discarded bool
}

// UI defines how workflows report to the user.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayRunInfo(ctx context.Context, info RunInfo)
	DisplayLocatedBugs(ctx context.Context, bugs []m.LocatedBug, failures []m.BugFailure) error
	DisplayExperimentStart(ctx context.Context, mode m.Mode, bugs int)
	DisplayBugCompleted(ctx context.Context, mode m.Mode, progress Progress)
	DisplaySummary(ctx context.Context, record m.RunRecord, verbose bool) error
}

// NewUI picks the interactive TUI on terminals and SimpleUI elsewhere.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
