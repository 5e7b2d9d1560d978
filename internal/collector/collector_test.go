package collector

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildperf/buildperf/internal/metrics"
)

func TestCollector_Lifecycle(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())
	assert.Equal(t, StateIdle, c.State())

	err := c.BeginWith(&fakeSource{readings: make([]metrics.Reading, 100)}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StateCollecting, c.State())

	c.Finish()
	assert.Equal(t, StateFinished, c.State())
}

func TestCollector_BeginTwice(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())

	require.NoError(t, c.BeginWith(&fakeSource{}, time.Millisecond))

	err := c.BeginWith(&fakeSource{}, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	c.Finish()
}

func TestCollector_Begin_ProcessNotFound(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())

	err := c.Begin(1<<30, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, metrics.ErrProcessNotFound)
	assert.Equal(t, StateIdle, c.State(), "failed Begin must not leak a sampler")
}

func TestCollector_EarlyProcessExit(t *testing.T) {
	// Source reports the process gone after three readings; the result holds
	// exactly three frames, none fabricated after exit.
	source := &fakeSource{readings: make([]metrics.Reading, 3)}

	c := New(time.Now(), zerolog.Nop())
	require.NoError(t, c.BeginWith(source, time.Millisecond))

	// Give the sampler time to run the source dry.
	time.Sleep(50 * time.Millisecond)

	result := c.Finish()
	assert.Len(t, result.Frames, 3)
}

func TestCollector_SignalFlow(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())
	require.NoError(t, c.BeginWith(&fakeSource{readings: make([]metrics.Reading, 1000)}, time.Millisecond))

	c.OnSignal(Signal{Kind: SignalPhaseStart, Phase: "parse"})
	time.Sleep(5 * time.Millisecond)
	c.OnSignal(Signal{Kind: SignalPhaseStop, Phase: "parse"})

	result := c.Finish()
	require.Len(t, result.Phases, 1)

	phase := result.Phases[0]
	assert.Equal(t, "parse", phase.Name)
	require.NotNil(t, phase.StartTime)
	require.NotNil(t, phase.EndTime)
	assert.GreaterOrEqual(t, *phase.EndTime, *phase.StartTime)
	assert.False(t, phase.Abnormal)
	assert.Empty(t, result.Anomalies)
}

func TestCollector_SignalOutsideWindowDropped(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())

	// Before Begin: dropped.
	c.OnSignal(Signal{Kind: SignalPhaseStart, Phase: "parse"})

	require.NoError(t, c.BeginWith(&fakeSource{}, time.Millisecond))
	result := c.Finish()
	assert.Empty(t, result.Phases)

	// After Finish: dropped, result unchanged.
	c.OnSignal(Signal{Kind: SignalPhaseStart, Phase: "late"})
	assert.Empty(t, c.Finish().Phases)
}

func TestCollector_FinishIdempotent(t *testing.T) {
	source := &fakeSource{
		readings: []metrics.Reading{
			{MemoryUsage: 1, DiskWrittenBytes: 10},
			{MemoryUsage: 2, DiskWrittenBytes: 30},
		},
	}

	c := New(time.Now(), zerolog.Nop())
	require.NoError(t, c.BeginWith(source, time.Millisecond))
	c.OnSignal(Signal{Kind: SignalPhaseStart, Phase: "parse"})

	time.Sleep(20 * time.Millisecond)

	first := c.Finish()
	second := c.Finish()

	require.Equal(t, first, second, "repeated Finish must return the identical cached result")
}

func TestCollector_OpenPhaseClosedAtFinish(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())
	require.NoError(t, c.BeginWith(&fakeSource{readings: make([]metrics.Reading, 1000)}, time.Millisecond))

	// Target "crashes" without sending the stop signal.
	c.OnSignal(Signal{Kind: SignalPhaseStart, Phase: "codegen"})

	result := c.Finish()
	require.Len(t, result.Phases, 1)
	assert.True(t, result.Phases[0].Abnormal)
	require.NotNil(t, result.Phases[0].EndTime)
	require.Len(t, result.Anomalies, 1)
	assert.Contains(t, result.Anomalies[0], AnomalyAbnormalClose)
}

func TestCollector_FinishWithoutBegin(t *testing.T) {
	c := New(time.Now(), zerolog.Nop())

	result := c.Finish()
	assert.Empty(t, result.Frames)
	assert.Empty(t, result.Phases)
	assert.Equal(t, StateFinished, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "collecting", StateCollecting.String())
	assert.Equal(t, "finished", StateFinished.String())
}
