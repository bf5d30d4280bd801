package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long:  "Displays the fixbench build version, its VCS revision and the Go version used to build it.",
		Run: func(cmd *cobra.Command, _ []string) {
			info, _ := debug.ReadBuildInfo()
			for _, line := range versionLines(info) {
				cmd.Println(line)
			}
		},
	}
}

// versionLines renders the build information shown by the version command.
func versionLines(info *debug.BuildInfo) []string {
	if info == nil || info.Main.Version == "" {
		return []string{"version: unknown"}
	}

	lines := []string{
		"fixbench version\t " + info.Main.Version,
		"go version\t " + info.GoVersion,
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			lines = append(lines, "revision\t "+setting.Value)
		case "vcs.modified":
			if setting.Value == "true" {
				lines = append(lines, "modified\t true")
			}
		}
	}

	return lines
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
