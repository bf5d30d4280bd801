package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fixbench.dev/pkg/fixbench/internal/domain"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view [run-id]",
		Short: "View a stored run",
		Long:  "View the summary of a stored run from the output directory, the latest one by default.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewArgs := domain.ViewArgs{Verbose: viper.GetBool(logVerboseKey)}
			if len(args) == 1 {
				viewArgs.RunID = args[0]
			}

			w, release, err := resolveWorkflow(cmd.Context(), workflowNeeds{})
			if err != nil {
				return err
			}
			defer release()

			return w.View(cmd.Context(), viewArgs)
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
