// Package collector captures performance frames and phase boundaries for one
// measured process run without perturbing the target.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildperf/buildperf/internal/metrics"
)

// ErrAlreadyStarted indicates Begin was called on a collector that is not idle.
var ErrAlreadyStarted = errors.New("collector already started")

// DefaultJoinTimeout bounds how long Finish waits for the sampler goroutine
// to drain before reporting it as leaked.
const DefaultJoinTimeout = 5 * time.Second

// State identifies where a collector is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateCollecting
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SignalKind discriminates phase boundary signals.
type SignalKind int

const (
	// SignalPhaseStart marks the beginning of a named phase.
	SignalPhaseStart SignalKind = iota
	// SignalPhaseStop marks the end of a named phase.
	SignalPhaseStop
)

// Signal is one phase boundary message received from the target process.
type Signal struct {
	Kind  SignalKind
	Phase string
}

// Result is the immutable output of one collector run.
type Result struct {
	Phases    []Phase  `json:"phases"`
	Frames    []Frame  `json:"frames"`
	Anomalies []string `json:"anomalies,omitempty"`
}

// Collector orchestrates one measured run: it owns a frame sampler and a
// phase tracker, runs them concurrently with the target process, and produces
// the aggregated result at Finish.
//
// The sampler goroutine is the sole writer of frames and the signal path is
// the sole writer of phase boundaries; Finish is the sole reader of both.
type Collector struct {
	epoch       time.Time
	logger      zerolog.Logger
	joinTimeout time.Duration

	mu      sync.Mutex
	state   State
	tracker *Tracker
	sampler *sampler
	cancel  context.CancelFunc

	finishOnce sync.Once
	result     Result
}

// New creates an idle collector. Timestamps in the result are offsets from
// the given epoch.
func New(epoch time.Time, logger zerolog.Logger) *Collector {
	return &Collector{
		epoch:       epoch,
		logger:      logger.With().Str("component", "collector").Logger(),
		joinTimeout: DefaultJoinTimeout,
		tracker:     NewTracker(logger),
	}
}

// Begin starts sampling the process with the given pid at the given period
// and opens the phase tracker. It returns immediately; sampling proceeds
// concurrently with whatever drives the target process.
func (c *Collector) Begin(pid int32, period time.Duration) error {
	source, err := metrics.NewProcessSource(pid)
	if err != nil {
		return fmt.Errorf("failed to open metrics source: %w", err)
	}
	return c.BeginWith(source, period)
}

// BeginWith starts sampling from an explicit metrics source. Tests use this
// to inject fake sources.
func (c *Collector) BeginWith(source metrics.Source, period time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, c.state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.sampler = newSampler(source, c.epoch, period, c.logger)
	c.sampler.start(ctx)
	c.state = StateCollecting

	c.logger.Debug().Dur("period", period).Msg("Collection started")
	return nil
}

// OnSignal forwards a phase boundary signal to the tracker, stamping it with
// the arrival time. Signals received outside the collecting state are logged
// and dropped. The call never blocks the sampler.
func (c *Collector) OnSignal(sig Signal) {
	at := time.Since(c.epoch)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCollecting {
		c.logger.Warn().
			Str("phase", sig.Phase).
			Str("state", c.state.String()).
			Msg("Phase signal received outside collection window, dropped")
		return
	}

	switch sig.Kind {
	case SignalPhaseStart:
		c.tracker.Start(sig.Phase, at)
	case SignalPhaseStop:
		c.tracker.Stop(sig.Phase, at)
	}
}

// State returns the collector's current lifecycle state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Finish stops the sampler, waits for it to drain, snapshots the phase table
// (closing any still-running phase as an anomaly), and returns the immutable
// result. Finish is idempotent: repeated calls return the same cached result.
//
// Finish always succeeds; a killed or crashed target degrades the result
// rather than failing it.
func (c *Collector) Finish() Result {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		var frames []Frame
		var anomalies []string

		if c.state == StateCollecting {
			c.cancel()

			// Bounded join: if the sampler is wedged, abandon it and report
			// the leak rather than blocking finalization forever. Its frames
			// cannot be read safely in that case.
			select {
			case <-c.sampler.done:
				frames = c.sampler.frames
			case <-time.After(c.joinTimeout):
				anomalies = append(anomalies, AnomalySamplerLeaked)
				c.logger.Error().
					Dur("timeout", c.joinTimeout).
					Msg("Frame sampler did not stop within join timeout, abandoning it")
			}
		}

		phases, trackerAnomalies := c.tracker.Snapshot(time.Since(c.epoch))
		anomalies = append(anomalies, trackerAnomalies...)

		c.result = Result{
			Phases:    phases,
			Frames:    frames,
			Anomalies: anomalies,
		}
		c.state = StateFinished

		c.logger.Debug().
			Int("frames", len(frames)).
			Int("phases", len(phases)).
			Int("anomalies", len(anomalies)).
			Msg("Collection finished")
	})

	return c.result
}
