package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kushal45/reviewgraph/internal/report"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func init() {
	report.ToolVersion = Version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reviewgraph %s (commit: %s)\n", Version, Commit)
		},
	}
}
