package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildperf/buildperf/internal/bench"
	"github.com/buildperf/buildperf/internal/config"
	"github.com/buildperf/buildperf/internal/logging"
)

func newBenchCmd() *cobra.Command {
	var (
		targetsRoot string
		output      string
		period      time.Duration
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "bench [target...]",
		Short: "Run compiler benchmarks and write a performance report",
		Long: `Discover benchmark targets, run the compiler on each, and profile it.

Each target is a project directory two levels below the targets root that
contains the configured manifest file. Passing target names limits the run
to those targets.

Examples:
  buildperf bench
  buildperf bench --targets ./tests --period 10ms
  buildperf bench counter fib --output results.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().Load()
			if err != nil {
				return err
			}

			// Flags override config.
			if targetsRoot != "" {
				cfg.Targets.Root = targetsRoot
			}
			if output != "" {
				cfg.Output = output
			}
			if period > 0 {
				cfg.Sampling.Period = config.Duration(period)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runBench(ctx, cfg, args, cmd)
		},
	}

	cmd.Flags().StringVar(&targetsRoot, "targets", "", "Directory scanned for benchmark projects")
	cmd.Flags().StringVar(&output, "output", "", "Report file path")
	cmd.Flags().DurationVar(&period, "period", 0, "Sampling period (e.g. 10ms)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	return cmd
}

func runBench(ctx context.Context, cfg *config.Config, names []string, cmd *cobra.Command) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Pretty = cfg.Log.Pretty
	logger := logging.New(logCfg)

	targets, err := bench.DiscoverTargets(cfg.Targets.Root, cfg.Targets.Manifest)
	if err != nil {
		return err
	}
	targets = filterTargets(targets, names)
	if len(targets) == 0 {
		return fmt.Errorf("no benchmark targets found under %s", cfg.Targets.Root)
	}

	logger.Info().
		Int("targets", len(targets)).
		Dur("period", time.Duration(cfg.Sampling.Period)).
		Msg("Starting benchmark suite")

	// Snapshot the host before any benchmark runs so the capture cost never
	// lands inside a sampling window.
	report := &bench.Report{
		SystemSpecs: bench.CaptureSystemSpecs(logger),
	}

	epoch := time.Now()
	runner := bench.NewRunner(bench.RunnerConfig{
		Command:      cfg.Compiler.Command,
		Args:         cfg.Compiler.Args,
		SignalPrefix: cfg.Compiler.SignalPrefix,
		Period:       time.Duration(cfg.Sampling.Period),
		Manifest:     cfg.Targets.Manifest,
	}, epoch, logger)

	for _, target := range targets {
		if ctx.Err() != nil {
			logger.Warn().Msg("Benchmark suite interrupted")
			break
		}

		b, err := runner.Run(ctx, target.Name, target.Path)
		if err != nil {
			// Spawn failure for one target does not sink the suite.
			logger.Error().Err(err).Str("benchmark", target.Name).Msg("Benchmark failed")
			continue
		}
		report.Benchmarks = append(report.Benchmarks, *b)
	}
	total := time.Since(epoch)

	bench.WriteSummary(cmd.OutOrStdout(), report, total)

	if err := bench.WriteReport(logger, cfg.Output, report); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.Output).Msg("Report written")
	return nil
}

func filterTargets(targets []bench.Target, names []string) []bench.Target {
	if len(names) == 0 {
		return targets
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	var filtered []bench.Target
	for _, target := range targets {
		if _, ok := wanted[target.Name]; ok {
			filtered = append(filtered, target)
		}
	}
	return filtered
}
