package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildperf/buildperf/internal/bench"
	"github.com/buildperf/buildperf/internal/logging"
)

func newSpecsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "specs",
		Short: "Print the host system specifications as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Capture warnings go to stderr so stdout stays valid JSON.
			logCfg := logging.DefaultConfig()
			logCfg.Level = "warn"
			specs := bench.CaptureSystemSpecs(logging.New(logCfg))

			data, err := json.MarshalIndent(specs, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode system specs: %w", err)
			}

			cmd.Println(string(data))
			return nil
		},
	}
}
