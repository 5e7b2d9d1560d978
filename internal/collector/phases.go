package collector

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Anomaly kinds recorded into a run result. Anomalies degrade the result but
// never abort a run.
const (
	AnomalyDuplicateStart = "duplicate_phase_start"
	AnomalyUnmatchedStop  = "unmatched_phase_stop"
	AnomalyAbnormalClose  = "abnormal_phase_close"
	AnomalySamplerLeaked  = "sampler_leaked"
	AnomalyTargetFailed   = "target_exited_abnormally"
	AnomalyAttachFailed   = "collector_attach_failed"
)

// Phase is a named interval within a benchmark run. Times are offsets from
// the run epoch. A phase with only a start time is still running.
type Phase struct {
	Name      string         `json:"name"`
	StartTime *time.Duration `json:"start_time,omitempty"`
	EndTime   *time.Duration `json:"end_time,omitempty"`
	// Abnormal marks a phase that was force-closed at finalization because
	// the target never sent a stop signal for it.
	Abnormal bool `json:"abnormal,omitempty"`
}

type phaseState int

const (
	phaseRunning phaseState = iota
	phaseEnded
)

type phaseEntry struct {
	phase Phase
	state phaseState
}

// Tracker records phase boundaries as start/stop signals arrive.
//
// Each phase name is an independent state machine (unstarted -> running ->
// ended). Multiple phases may run concurrently; the tracker imposes no
// single-active-phase constraint. Phase order in snapshots is the order in
// which start signals arrived.
//
// Tracker is not safe for concurrent use; the Collector serializes access.
type Tracker struct {
	logger    zerolog.Logger
	order     []string
	entries   map[string]*phaseEntry
	anomalies []string
}

// NewTracker creates an empty phase tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger:  logger.With().Str("component", "phase_tracker").Logger(),
		entries: make(map[string]*phaseEntry),
	}
}

// Start records the start of the named phase at the given offset.
// A start signal for a phase that is already running is a non-fatal anomaly;
// the original start time is kept.
func (t *Tracker) Start(name string, at time.Duration) {
	if entry, ok := t.entries[name]; ok {
		t.anomaly(AnomalyDuplicateStart, name)
		t.logger.Warn().
			Str("phase", name).
			Dur("original_start", *entry.phase.StartTime).
			Msg("Duplicate start signal ignored")
		return
	}

	start := at
	t.entries[name] = &phaseEntry{
		phase: Phase{Name: name, StartTime: &start},
		state: phaseRunning,
	}
	t.order = append(t.order, name)

	t.logger.Debug().Str("phase", name).Dur("at", at).Msg("Phase started")
}

// Stop records the end of the named phase at the given offset.
// A stop signal for a phase that was never started, or that already ended,
// is a non-fatal anomaly; no phase entry is created or modified.
func (t *Tracker) Stop(name string, at time.Duration) {
	entry, ok := t.entries[name]
	if !ok || entry.state != phaseRunning {
		t.anomaly(AnomalyUnmatchedStop, name)
		t.logger.Warn().Str("phase", name).Msg("Unmatched stop signal ignored")
		return
	}

	end := at
	entry.phase.EndTime = &end
	entry.state = phaseEnded

	t.logger.Debug().Str("phase", name).Dur("at", at).Msg("Phase ended")
}

// Snapshot returns all phases in discovery order, along with the anomalies
// recorded so far. Any phase still running is closed at the given offset and
// marked abnormal; losing the boundary is preferable to losing the phase.
func (t *Tracker) Snapshot(now time.Duration) ([]Phase, []string) {
	phases := make([]Phase, 0, len(t.order))
	for _, name := range t.order {
		entry := t.entries[name]
		if entry.state == phaseRunning {
			end := now
			entry.phase.EndTime = &end
			entry.phase.Abnormal = true
			entry.state = phaseEnded
			t.anomaly(AnomalyAbnormalClose, name)
			t.logger.Warn().Str("phase", name).Msg("Phase never received a stop signal, closed at finalization")
		}
		phases = append(phases, entry.phase)
	}
	return phases, t.anomalies
}

func (t *Tracker) anomaly(kind, phase string) {
	t.anomalies = append(t.anomalies, fmt.Sprintf("%s: %s", kind, phase))
}
