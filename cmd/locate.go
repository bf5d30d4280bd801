package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fixbench.dev/pkg/fixbench/internal/domain"
)

var locateShardFlag string

// locateCmd represents the locate command.
var locateCmd = newLocateCmd()

func newLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate [bug-patterns...]",
		Short: "List located bugs without calling the model",
		Long:  locateLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			shard, err := domain.ParseShard(locateShardFlag)
			if err != nil {
				return err
			}

			w, release, err := resolveWorkflow(cmd.Context(), workflowNeeds{benchmark: true})
			if err != nil {
				return err
			}
			defer release()

			return w.Locate(cmd.Context(), domain.LocateArgs{
				Patterns: bugPatterns(args),
				Shard:    shard,
				Parallel: viper.GetInt(runParallelConfigKey),
			})
		},
	}

	cmd.Flags().StringVarP(&locateShardFlag, runShardFlagName, "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")

	return cmd
}

func init() {
	rootCmd.AddCommand(locateCmd)
}
