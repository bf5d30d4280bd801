// Package cmd provides the root command and CLI setup for fixbench.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	"fixbench.dev/pkg/fixbench/internal/controller"
	"fixbench.dev/pkg/fixbench/internal/domain"
)

var fsAdapter adapter.SourceFSAdapter
var pythonAdapter adapter.PythonFileAdapter
var aggregator domain.ResultAggregator
var ui controller.UI

// workflow overrides the workflow built from the configuration. Tests
// substitute a mock here.
var workflow domain.Workflow

// outputDirFlag is a root-level flag shared by commands that read/write runs.
var outputDirFlag string

// verboseFlag enables debug logging and detailed summaries.
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		configureLogger("", viper.GetBool(logVerboseKey))
	}

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	pythonAdapter = adapter.NewTreeSitterPythonAdapter()
	aggregator = domain.NewResultAggregator()
}

const bugPatternsHelp = `Bugs are selected with glob patterns over project/bugid:
  - black/*        every bug of the black project
  - */1?           bugs 10 to 19 of every project
  - black/1 tqdm/3 individual bugs
Without patterns the run.bugs configuration applies, then every bug.`

const rootLongDescription = `Fixbench measures how much code context a language model needs to repair
single-line Python bugs. Each bug is prompted with a heuristic tier of
context (FN, FLN, CFN) or a baseline, sampled N times and scored against
the ground-truth fix.

` + bugPatternsHelp

const runLongDescription = `Run the selected experiments over the benchmark (default: every tier).

` + bugPatternsHelp

const locateLongDescription = `List the selected bugs with their span and enclosing function without
calling the model.

` + bugPatternsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fixbench",
		Short: "Heuristic-context bug-fix benchmark for language models",
		Long:  rootLongDescription,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

// newRootCmd returns a root command with the persistent flags but without
// subcommands or logging setup.
func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&outputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for run records and the sample journal",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "debug logging and diffs of unsolved bugs")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// signalContext is cancelled on SIGINT or SIGTERM so a run can save its
// partial record.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// bugPatterns returns the positional patterns, or the configured ones.
func bugPatterns(args []string) []string {
	if len(args) > 0 {
		return args
	}

	return viper.GetStringSlice(runBugsKey)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
