// Package cli implements the buildperf command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/buildperf/buildperf/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "buildperf",
	Short: "buildperf - poison-free compiler performance profiling",
	Long: `Profile compiler invocations without perturbing them.

buildperf spawns a compiler process per benchmark target, samples its CPU,
memory, and disk-I/O at a fixed cadence from a separate thread, and records
compilation phase boundaries signaled by the compiler over stdout. The result
is a structured JSON report suitable for comparing compiler performance
across runs.

Typical usage:
  buildperf bench --targets ./tests --output benchmarks.json
  buildperf specs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newSpecsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("buildperf version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
