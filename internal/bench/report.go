package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildperf/buildperf/internal/errors"
)

// WriteReport serializes the report as pretty-printed JSON to path.
func WriteReport(logger zerolog.Logger, path string, report *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer errors.DeferClose(logger, f, "failed to close report file")

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// WriteSummary prints a human-readable run summary: total suite time, then
// per-benchmark and per-phase durations.
func WriteSummary(w io.Writer, report *Report, total time.Duration) {
	fmt.Fprintf(w, "Benchmarking took %s in total:\n", total)

	for i := range report.Benchmarks {
		b := &report.Benchmarks[i]
		fmt.Fprintf(w, "  Benchmark %q took %s (%d frames):\n", b.Name, b.Duration(), len(b.Frames))

		for _, phase := range b.Phases {
			if phase.StartTime == nil || phase.EndTime == nil {
				fmt.Fprintf(w, "    Phase %q has incomplete boundaries\n", phase.Name)
				continue
			}
			suffix := ""
			if phase.Abnormal {
				suffix = " (abnormally closed)"
			}
			fmt.Fprintf(w, "    Phase %q took %s%s\n", phase.Name, *phase.EndTime-*phase.StartTime, suffix)
		}

		for _, anomaly := range b.Anomalies {
			fmt.Fprintf(w, "    Anomaly: %s\n", anomaly)
		}
	}
}
