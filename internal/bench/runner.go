package bench

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buildperf/buildperf/internal/collector"
)

// ErrSpawnFailed indicates the compiler process could not be started.
// Spawn failure is the one fatal condition: no partial result exists.
var ErrSpawnFailed = errors.New("failed to spawn compiler process")

// RunnerConfig configures benchmark execution.
type RunnerConfig struct {
	// Command is the compiler binary to run in each target directory.
	Command string
	// Args request phase-boundary signaling from the compiler.
	Args []string
	// SignalPrefix marks signal lines on the compiler's stdout.
	SignalPrefix string
	// Period is the frame sampling interval.
	Period time.Duration
	// Manifest is the file a target directory must contain.
	Manifest string
}

// Runner executes benchmarks: it spawns the compiler, wires its stdout signal
// channel into a collector, and assembles the result into a Benchmark.
type Runner struct {
	cfg    RunnerConfig
	epoch  time.Time
	logger zerolog.Logger
}

// NewRunner creates a runner. All benchmark timestamps are offsets from the
// given suite epoch.
func NewRunner(cfg RunnerConfig, epoch time.Time, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		epoch:  epoch,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes one benchmark: spawn the compiler in the target directory,
// collect frames and phase signals while it runs, and return the assembled
// record once it exits.
//
// A compiler that crashes or exits nonzero still yields a (degraded)
// Benchmark; only spawn failure returns an error.
func (r *Runner) Run(ctx context.Context, name, path string) (*Benchmark, error) {
	if err := VerifyTarget(path, r.cfg.Manifest); err != nil {
		return nil, err
	}

	logger := r.logger.With().Str("benchmark", name).Logger()

	b := &Benchmark{
		ID:   uuid.New().String(),
		Name: name,
		Path: path,
	}

	//nolint:gosec // G204: the compiler command is operator-supplied configuration.
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	cmd.Dir = path
	// Bounds how long the stdout pipe can stay open after cancellation when a
	// compiler subprocess inherits it; without this the reader could block on
	// an orphaned grandchild.
	cmd.WaitDelay = 3 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	// Overall timing starts immediately before spawn so the wrapper's own
	// overhead is part of the benchmark envelope, not of any phase.
	start := time.Since(r.epoch)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	b.StartTime = &start

	logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("command", r.cfg.Command).
		Msg("Benchmark started")

	col := collector.New(r.epoch, logger)
	r.attach(logger, col, int32(cmd.Process.Pid), b)

	// The reader loop is the signal channel: it must never block on the
	// sampler, and EOF (compiler exit or closed pipe) ends it cleanly.
	scanDone := make(chan struct{})
	var bytecodeSize *uint64
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			r.handleLine(logger, col, scanner.Text(), &bytecodeSize)
		}
		if err := scanner.Err(); err != nil {
			logger.Warn().Err(err).Msg("Signal channel closed with error")
		}
	}()

	// Drain the reader before Wait so signals emitted just before exit are
	// never lost to the pipe teardown.
	<-scanDone
	waitErr := cmd.Wait()

	result := col.Finish()
	end := time.Since(r.epoch)

	b.EndTime = &end
	b.BytecodeSize = bytecodeSize
	b.Phases = result.Phases
	b.Frames = result.Frames
	b.Anomalies = append(b.Anomalies, result.Anomalies...)

	if waitErr != nil {
		b.Anomalies = append(b.Anomalies, fmt.Sprintf("%s: %v", collector.AnomalyTargetFailed, waitErr))
		logger.Warn().Err(waitErr).Msg("Compiler exited abnormally, benchmark result is degraded")
	}

	logger.Info().
		Dur("duration", b.Duration()).
		Int("phases", len(b.Phases)).
		Int("frames", len(b.Frames)).
		Msg("Benchmark finished")

	return b, nil
}

// attach starts sampling the spawned process. If the process exited before
// sampling could attach, the run keeps going: overall timing still comes out,
// and the anomaly marks why the record carries no frames.
func (r *Runner) attach(logger zerolog.Logger, col *collector.Collector, pid int32, b *Benchmark) {
	if err := col.Begin(pid, r.cfg.Period); err != nil {
		b.Anomalies = append(b.Anomalies, fmt.Sprintf("%s: %v", collector.AnomalyAttachFailed, err))
		logger.Warn().Err(err).Msg("Failed to start collection, benchmark will have no frames")
	}
}

// handleLine parses one stdout line. Lines carrying the signal prefix become
// phase signals or metadata; everything else is compiler output and ignored.
func (r *Runner) handleLine(logger zerolog.Logger, col *collector.Collector, line string, bytecodeSize **uint64) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, r.cfg.SignalPrefix+" ") {
		return
	}

	rest := strings.TrimPrefix(line, r.cfg.SignalPrefix+" ")
	verb, arg, ok := strings.Cut(rest, " ")
	arg = strings.TrimSpace(arg)
	if !ok || arg == "" {
		logger.Debug().Str("line", line).Msg("Malformed signal line ignored")
		return
	}

	switch verb {
	case "start":
		col.OnSignal(collector.Signal{Kind: collector.SignalPhaseStart, Phase: arg})
	case "stop":
		col.OnSignal(collector.Signal{Kind: collector.SignalPhaseStop, Phase: arg})
	case "size":
		size, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			logger.Warn().Str("value", arg).Msg("Unparseable bytecode size signal ignored")
			return
		}
		*bytecodeSize = &size
	default:
		// Unknown message kinds are ignored and logged, never fatal.
		logger.Debug().Str("verb", verb).Msg("Unknown signal verb ignored")
	}
}
