package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fixbench.dev/pkg/fixbench/internal/domain"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge [run-ids...]",
		Short: "Merge shard runs into a single run",
		Long: `Merge the runs of a sharded experiment into a single run with recomputed
summaries. Without run ids the latest complete shard set is merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, release, err := resolveWorkflow(cmd.Context(), workflowNeeds{journal: true})
			if err != nil {
				return err
			}
			defer release()

			return w.Merge(cmd.Context(), domain.MergeArgs{
				RunIDs:  args,
				Verbose: viper.GetBool(logVerboseKey),
			})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
