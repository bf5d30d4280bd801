package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	solvedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	unsolvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle    = lipgloss.NewStyle().Faint(true)
)

// recentLimit is how many finished bugs the run view keeps on screen.
const recentLimit = 8

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output  io.Writer
	mode    StartMode
	program *tea.Program
	done    chan struct{}
	mu      sync.Mutex
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the live progress view in run mode. Other modes print
// static output and need no program.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.mode = newStartConfig(options).mode
	if t.mode != ModeRun {
		return nil
	}

	t.program = tea.NewProgram(newRunModel(), tea.WithOutput(t.output), tea.WithContext(ctx))
	t.done = make(chan struct{})

	program, done := t.program, t.done

	go func() {
		defer close(done)

		_, _ = program.Run()
	}()

	return nil
}

// Close stops the live view and waits for the terminal to be restored.
func (t *TUI) Close(_ context.Context) {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program = nil
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	<-done
}

// Wait blocks until the live view exits.
func (t *TUI) Wait(ctx context.Context) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *TUI) send(msg tea.Msg) {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

// DisplayRunInfo updates the header of the live view.
func (t *TUI) DisplayRunInfo(_ context.Context, info RunInfo) {
	t.send(runInfoMsg(info))
}

// DisplayLocatedBugs prints the located bugs table.
func (t *TUI) DisplayLocatedBugs(ctx context.Context, bugs []m.LocatedBug, failures []m.BugFailure) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Located %d bug(s)", len(bugs))))
	b.WriteString("\n\n")
	b.WriteString(renderLocatedTable(bugs))

	if len(failures) > 0 {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render(fmt.Sprintf("%d bug(s) could not be located", len(failures))))
		b.WriteString("\n\n")
		b.WriteString(renderFailureTable(failures))
	}

	_, err := fmt.Fprint(t.output, b.String())

	return err
}

// DisplayExperimentStart resets the progress bar for a new experiment.
func (t *TUI) DisplayExperimentStart(_ context.Context, mode m.Mode, bugs int) {
	t.send(experimentMsg{mode: mode, total: bugs})
}

// DisplayBugCompleted advances the progress bar.
func (t *TUI) DisplayBugCompleted(_ context.Context, mode m.Mode, p Progress) {
	t.send(progressMsg{mode: mode, progress: p})
}

// DisplaySummary stops the live view, if any, and prints the run summary.
func (t *TUI) DisplaySummary(ctx context.Context, record m.RunRecord, verbose bool) error {
	t.Close(ctx)

	var b strings.Builder

	title := fmt.Sprintf("Run %s · %s · %d sample(s) per bug", record.ID, record.Model, record.SampleCount)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if record.Aborted {
		b.WriteString(failedStyle.Render(fmt.Sprintf("aborted, %d bug(s) discarded", len(record.Discarded))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderSummaryTable(record.Summaries()))

	for _, experiment := range record.Experiments {
		if len(experiment.Failures) == 0 {
			continue
		}

		b.WriteString("\n")
		b.WriteString(failedStyle.Render(fmt.Sprintf("%s failures", experiment.Mode)))
		b.WriteString("\n")
		b.WriteString(renderFailureTable(experiment.Failures))
	}

	if verbose {
		for _, experiment := range record.Experiments {
			for _, result := range experiment.Results {
				if result.Solved {
					continue
				}

				b.WriteString("\n")
				b.WriteString(unsolvedStyle.Render(fmt.Sprintf("%s [%s] unsolved", result.Bug, experiment.Mode)))
				b.WriteString("\n")
				b.WriteString(UnifiedDiff(result.Buggy, result.Fixed))

				if len(result.Outcomes) > 0 {
					b.WriteString(faintStyle.Render(result.Outcomes[0].Sample.Completion))
					b.WriteString("\n")
				}
			}
		}
	}

	_, err := fmt.Fprint(t.output, b.String())

	return err
}

type runInfoMsg RunInfo

type experimentMsg struct {
	mode  m.Mode
	total int
}

type progressMsg struct {
	mode     m.Mode
	progress Progress
}

// runModel is the Bubble Tea model of the live run view.
type runModel struct {
	info    RunInfo
	mode    m.Mode
	done    int
	total   int
	solved  int
	failed  int
	recent  []Progress
	bar     progress.Model
	spinner spinner.Model
	width   int
}

func newRunModel() runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle

	return runModel{
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: s,
	}
}

func (rm runModel) Init() tea.Cmd {
	return rm.spinner.Tick
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.width = msg.Width
		rm.bar.Width = max(10, min(msg.Width-4, 80))

		return rm, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			interrupt()
		}

		return rm, nil

	case runInfoMsg:
		rm.info = RunInfo(msg)

		return rm, nil

	case experimentMsg:
		rm.mode = msg.mode
		rm.total = msg.total
		rm.done, rm.solved, rm.failed = 0, 0, 0
		rm.recent = nil

		return rm, nil

	case progressMsg:
		return rm.applyProgress(msg), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		rm.spinner, cmd = rm.spinner.Update(msg)

		return rm, cmd
	}

	return rm, nil
}

func (rm runModel) applyProgress(msg progressMsg) runModel {
	if msg.mode != rm.mode {
		return rm
	}

	rm.done = msg.progress.Done

	switch {
	case msg.progress.Failed:
		rm.failed++
	case msg.progress.Solved:
		rm.solved++
	}

	rm.recent = append(rm.recent, msg.progress)
	if len(rm.recent) > recentLimit {
		rm.recent = rm.recent[len(rm.recent)-recentLimit:]
	}

	return rm
}

func (rm runModel) View() string {
	var b strings.Builder

	header := fmt.Sprintf("fixbench run %s · %s · %d bug(s) × %d sample(s)",
		rm.info.ID, rm.info.Model, rm.info.Bugs, rm.info.Samples)
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	if rm.mode == "" {
		b.WriteString(rm.spinner.View())
		b.WriteString(" locating bugs...\n")

		return b.String()
	}

	percent := 0.0
	if rm.total > 0 {
		percent = float64(rm.done) / float64(rm.total)
	}

	fmt.Fprintf(&b, "%s %s %d/%d\n", rm.spinner.View(), rm.mode, rm.done, rm.total)
	b.WriteString(rm.bar.ViewAs(percent))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %s\n\n",
		solvedStyle.Render(fmt.Sprintf("solved %d", rm.solved)),
		failedStyle.Render(fmt.Sprintf("failed %d", rm.failed)))

	for _, p := range rm.recent {
		status := progressStatus(p)

		style := unsolvedStyle

		switch {
		case p.Solved:
			style = solvedStyle
		case p.Failed, p.Discarded:
			style = failedStyle
		}

		fmt.Fprintf(&b, "  %s %s\n", p.Bug, style.Render(status))
	}

	b.WriteString(faintStyle.Render("\nctrl+c to stop after in-flight bugs"))
	b.WriteString("\n")

	return b.String()
}

// interrupt forwards ctrl+c from the raw-mode terminal to the signal
// handler that owns run cancellation.
var interrupt = func() {
	if process, err := os.FindProcess(os.Getpid()); err == nil {
		_ = process.Signal(os.Interrupt)
	}
}
