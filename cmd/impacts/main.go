// Command impacts serves and inspects climate impact rulebases.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "impacts",
		Short:         "Summarize projected climate impacts from a rules-based rulebase",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("IMPACTS_CONFIG"),
		"Path to a YAML configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newCheckCmd(),
		newFmtCmd(),
		newAggregateCmd(&configPath),
	)
	return root
}
