package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildperf/buildperf/internal/metrics"
)

// Frame is one timestamped sample of process metrics. The timestamp is an
// offset from the run epoch taken from the monotonic clock.
//
// disk_written_bytes and disk_read_bytes are deltas against the immediately
// preceding frame's cumulative counters; the first frame reports zero deltas.
type Frame struct {
	Timestamp             time.Duration `json:"timestamp"`
	CPUUsage              float64       `json:"cpu_usage"`
	MemoryUsage           uint64        `json:"memory_usage"`
	VirtualMemoryUsage    uint64        `json:"virtual_memory_usage"`
	DiskTotalWrittenBytes uint64        `json:"disk_total_written_bytes"`
	DiskWrittenBytes      uint64        `json:"disk_written_bytes"`
	DiskTotalReadBytes    uint64        `json:"disk_total_read_bytes"`
	DiskReadBytes         uint64        `json:"disk_read_bytes"`
}

// sampler captures frames from a metrics source at a fixed period on its own
// goroutine. It is the sole writer of its frame slice; the collector reads
// the frames only after the sampler goroutine has exited.
type sampler struct {
	source metrics.Source
	epoch  time.Time
	period time.Duration
	logger zerolog.Logger

	frames []Frame
	done   chan struct{}
}

func newSampler(source metrics.Source, epoch time.Time, period time.Duration, logger zerolog.Logger) *sampler {
	return &sampler{
		source: source,
		epoch:  epoch,
		period: period,
		logger: logger.With().Str("component", "frame_sampler").Logger(),
		done:   make(chan struct{}),
	}
}

// start launches the sampling goroutine. The goroutine exits when ctx is
// cancelled or when the target process disappears, whichever comes first.
func (s *sampler) start(ctx context.Context) {
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

func (s *sampler) run(ctx context.Context) {
	s.logger.Debug().Dur("period", s.period).Msg("Starting frame sampler")

	// Capture a frame immediately so short-lived targets still produce data.
	if stop := s.capture(); stop {
		return
	}

	// time.Ticker already corrects for drift and drops ticks when a capture
	// overruns the period, so a slow tick never causes cumulative skew.
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Int("frames", len(s.frames)).Msg("Frame sampler stopped")
			return
		case <-ticker.C:
			if stop := s.capture(); stop {
				return
			}
		}
	}
}

// capture takes one reading and appends a frame. Returns true when sampling
// should stop because the target process is gone.
func (s *sampler) capture() bool {
	reading, err := s.source.Sample()
	if err != nil {
		if errors.Is(err, metrics.ErrProcessNotFound) {
			// Target exited; the frames captured so far are the final set.
			s.logger.Debug().Int("frames", len(s.frames)).Msg("Target process exited, sampling done")
			return true
		}
		s.logger.Warn().Err(err).Msg("Failed to sample target process, skipping frame")
		return false
	}

	frame := Frame{
		Timestamp:             time.Since(s.epoch),
		CPUUsage:              reading.CPUUsage,
		MemoryUsage:           reading.MemoryUsage,
		VirtualMemoryUsage:    reading.VirtualMemoryUsage,
		DiskTotalWrittenBytes: reading.DiskWrittenBytes,
		DiskTotalReadBytes:    reading.DiskReadBytes,
	}

	// Deltas are successive differences of the cumulative counters; the first
	// frame has no predecessor and reports zero.
	if n := len(s.frames); n > 0 {
		prev := s.frames[n-1]
		frame.DiskWrittenBytes = frame.DiskTotalWrittenBytes - prev.DiskTotalWrittenBytes
		frame.DiskReadBytes = frame.DiskTotalReadBytes - prev.DiskTotalReadBytes
	}

	s.frames = append(s.frames, frame)
	return false
}
