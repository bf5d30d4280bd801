package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// SimpleUI implements UI using cobra Command's output.
type SimpleUI struct {
	cmd  *cobra.Command
	mode StartMode
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mode = newStartConfig(options).mode

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(_ context.Context) {}

// DisplayRunInfo prints the run header.
func (s *SimpleUI) DisplayRunInfo(ctx context.Context, info RunInfo) {
	if ctx.Err() != nil {
		return
	}

	verb := "Starting"
	if info.Resumed {
		verb = "Resuming"
	}

	s.printf("%s run %s: %d bug(s), %d sample(s) each, modes %s, model %s, %d worker(s)",
		verb, info.ID, info.Bugs, info.Samples, joinModes(info.Modes), info.Model, info.Parallel)

	if info.Shard.Total > 1 {
		s.printf(" (shard %d/%d)", info.Shard.Index, info.Shard.Total)
	}

	s.printf("\n")
}

// DisplayLocatedBugs prints the dry-run table of located bugs.
func (s *SimpleUI) DisplayLocatedBugs(ctx context.Context, bugs []m.LocatedBug, failures []m.BugFailure) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderLocatedTable(bugs))

	if len(failures) > 0 {
		s.printf("\n%s", renderFailureTable(failures))
	}

	return nil
}

func renderLocatedTable(bugs []m.LocatedBug) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Bug", "File", "Span", "Function", "Region"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER,
	})

	for _, bug := range bugs {
		function := bug.Function
		if bug.Fallback {
			function = "(window)"
		}

		table.Append([]string{bug.Bug.String(), bug.File, bug.Span.String(), function, bug.Region.String()})
	}

	table.SetFooter([]string{fmt.Sprintf("Total Bugs %d", len(bugs)), "", "", "", ""})
	table.Render()

	return tableBuffer.String()
}

func renderFailureTable(failures []m.BugFailure) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Bug", "Mode", "Stage", "Kind", "Reason"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, failure := range failures {
		mode := string(failure.Mode)
		if mode == "" {
			mode = "all"
		}

		table.Append([]string{failure.Bug.String(), mode, string(failure.Stage), string(failure.Kind), failure.Reason})
	}

	table.Render()

	return tableBuffer.String()
}

// DisplayExperimentStart announces an experiment.
func (s *SimpleUI) DisplayExperimentStart(ctx context.Context, mode m.Mode, bugs int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Experiment %s: %d bug(s)\n", mode, bugs)
}

// DisplayBugCompleted prints one progress line.
func (s *SimpleUI) DisplayBugCompleted(ctx context.Context, mode m.Mode, progress Progress) {
	if ctx.Err() != nil {
		return
	}

	s.printf("[%s %d/%d] %s -> %s\n", mode, progress.Done, progress.Total, progress.Bug, progressStatus(progress))
}

func progressStatus(progress Progress) string {
	switch {
	case progress.Discarded:
		return "discarded"
	case progress.Failed:
		return "failed"
	case progress.Solved:
		return "solved"
	default:
		return "unsolved"
	}
}

// DisplaySummary prints the summary table of a run, and in verbose mode the
// diff and first completion of every unsolved bug.
func (s *SimpleUI) DisplaySummary(ctx context.Context, record m.RunRecord, verbose bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\nRun %s (model %s, %d sample(s) per bug)", record.ID, record.Model, record.SampleCount)

	if record.Aborted {
		s.printf(" [aborted, %d bug(s) discarded]", len(record.Discarded))
	}

	s.printf("\n%s", renderSummaryTable(record.Summaries()))

	var failures []m.BugFailure
	for _, experiment := range record.Experiments {
		failures = append(failures, experiment.Failures...)
	}

	if len(failures) > 0 {
		s.printf("\nFailures\n%s", renderFailureTable(failures))
	}

	if !verbose {
		return nil
	}

	for _, experiment := range record.Experiments {
		for _, result := range experiment.Results {
			if result.Solved {
				continue
			}

			s.printf("\n%s [%s] unsolved\n%s", result.Bug, experiment.Mode, UnifiedDiff(result.Buggy, result.Fixed))

			if len(result.Outcomes) > 0 {
				s.printf("first completion:\n%s\n", result.Outcomes[0].Sample.Completion)
			}
		}
	}

	return nil
}

func renderSummaryTable(rows []m.Summary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Mode", "Bugs", "Samples", "Correct", "Accuracy", "Solved", "Solved Rate", "Excluded"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	for _, row := range rows {
		table.Append([]string{
			string(row.Mode),
			fmt.Sprintf("%d", row.Bugs),
			fmt.Sprintf("%d", row.Samples),
			fmt.Sprintf("%d", row.CorrectSamples),
			fmt.Sprintf("%.2f%%", row.Accuracy),
			fmt.Sprintf("%d", row.BugsSolved),
			fmt.Sprintf("%.2f%%", row.SolvedRate),
			fmt.Sprintf("%d", row.Excluded),
		})
	}

	table.Render()

	return tableBuffer.String()
}

// UnifiedDiff renders the buggy lines against the fixed lines.
func UnifiedDiff(buggy, fixed []string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withNewlines(buggy),
		B:        withNewlines(fixed),
		FromFile: "buggy",
		ToFile:   "fixed",
		Context:  1,
	})
	if err != nil {
		return ""
	}

	return text
}

func withNewlines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line+"\n")
	}

	return out
}

func joinModes(modes []m.Mode) string {
	names := make([]string, 0, len(modes))
	for _, mode := range modes {
		names = append(names, string(mode))
	}

	return strings.Join(names, ",")
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
