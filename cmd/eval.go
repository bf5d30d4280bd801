package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fixbench.dev/pkg/fixbench/internal/domain"
)

var evalMatchFlag string

// evalCmd represents the eval command.
var evalCmd = newEvalCmd()

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [run-id]",
		Short: "Rescore the journaled samples of a run",
		Long: `Rescore the samples journaled by a previous run with the current scoring
policy and save the result as a new run. The model is never called.
Without a run id the latest run is rescored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evalArgs := domain.EvalArgs{
				Parallel: viper.GetInt(runParallelConfigKey),
				Verbose:  viper.GetBool(logVerboseKey),
			}

			if len(args) == 1 {
				evalArgs.RunID = args[0]
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			w, release, err := resolveWorkflow(ctx, workflowNeeds{benchmark: true, journal: true})
			if err != nil {
				return err
			}
			defer release()

			return w.Evaluate(ctx, evalArgs)
		},
	}

	cmd.Flags().StringVar(&evalMatchFlag, scoringMatchFlag, viper.GetString(scoringMatchKey), "scoring policy: window or exact")
	bindFlagToConfig(cmd.Flags().Lookup(scoringMatchFlag), scoringMatchKey)

	return cmd
}

func init() {
	rootCmd.AddCommand(evalCmd)
}
