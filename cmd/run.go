package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fixbench.dev/pkg/fixbench/internal/domain"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

var runParallelFlag int
var runSamplesFlag int
var runTiersFlag []string
var runModesFlag []string
var runShardFlag string
var runResumeFlag bool

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [bug-patterns...]",
		Short: "Run bug-fix experiments",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			modes, err := selectedModes(runTiers(cmd), viper.GetStringSlice(runModesKey))
			if err != nil {
				return err
			}

			shard, err := domain.ParseShard(runShardFlag)
			if err != nil {
				return err
			}

			runArgs := domain.RunArgs{
				Patterns: bugPatterns(args),
				Modes:    modes,
				Samples:  viper.GetInt(runSamplesKey),
				Parallel: viper.GetInt(runParallelConfigKey),
				Shard:    shard,
				Resume:   runResumeFlag,
				Verbose:  viper.GetBool(logVerboseKey),
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			w, release, err := resolveWorkflow(ctx, workflowNeeds{
				benchmark: true,
				model:     true,
				journal:   true,
				samples:   runArgs.Samples,
				resume:    runArgs.Resume,
			})
			if err != nil {
				return err
			}
			defer release()

			return w.Run(ctx, runArgs)
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of bugs processed in parallel")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().IntVarP(&runSamplesFlag, runSamplesFlagName, "n", viper.GetInt(runSamplesKey), "completions sampled per bug and experiment")
	bindFlagToConfig(cmd.Flags().Lookup(runSamplesFlagName), runSamplesKey)

	cmd.Flags().StringSliceVarP(&runTiersFlag, runTierFlagName, "t", viper.GetStringSlice(runTiersKey), "heuristic tiers to run (FN, FLN, CFN); omitted when only --mode is given")
	bindFlagToConfig(cmd.Flags().Lookup(runTierFlagName), runTiersKey)

	cmd.Flags().StringSliceVarP(&runModesFlag, runModeFlagName, "m", viper.GetStringSlice(runModesKey),
		"baseline modes to run in addition to the tiers (Instruction, InstructionLabel, InstructionMask)")
	bindFlagToConfig(cmd.Flags().Lookup(runModeFlagName), runModesKey)

	cmd.Flags().StringVarP(&runShardFlag, runShardFlagName, "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")
	cmd.Flags().BoolVar(&runResumeFlag, runResumeFlagName, false, "continue the latest run, reusing journaled samples")
}

// runTiers returns the configured tiers, or none when --mode is given
// without --tier so a baseline can run alone.
func runTiers(cmd *cobra.Command) []string {
	if cmd.Flags().Changed(runModeFlagName) && !cmd.Flags().Changed(runTierFlagName) {
		return nil
	}

	return viper.GetStringSlice(runTiersKey)
}

// selectedModes merges tiers and baseline modes in order, without duplicates.
func selectedModes(tiers, modes []string) ([]m.Mode, error) {
	var (
		out  []m.Mode
		seen = make(map[m.Mode]bool)
	)

	for _, name := range append(append([]string(nil), tiers...), modes...) {
		if name == "" {
			continue
		}

		mode, err := m.ParseMode(name)
		if err != nil {
			return nil, err
		}

		if !seen[mode] {
			seen[mode] = true
			out = append(out, mode)
		}
	}

	if len(out) == 0 {
		return nil, errors.New("no tier or mode selected")
	}

	return out, nil
}
