package bench

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildperf/buildperf/internal/collector"
)

func sampleReport() *Report {
	start := 5 * time.Millisecond
	end := 80 * time.Millisecond
	phaseStart := 10 * time.Millisecond
	phaseEnd := 60 * time.Millisecond

	return &Report{
		SystemSpecs: SystemSpecs{HostName: "buildhost", TotalMemory: 1 << 30},
		Benchmarks: []Benchmark{
			{
				ID:        "run-1",
				Name:      "counter",
				Path:      "/tmp/counter",
				StartTime: &start,
				EndTime:   &end,
				Phases: []collector.Phase{
					{Name: "parse", StartTime: &phaseStart, EndTime: &phaseEnd},
				},
				Frames: []collector.Frame{
					{Timestamp: 20 * time.Millisecond, MemoryUsage: 1024},
				},
				Anomalies: []string{"unmatched_phase_stop: typecheck"},
			},
		},
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchmarks.json")

	require.NoError(t, WriteReport(zerolog.Nop(), path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Benchmarks, 1)
	assert.Equal(t, "counter", decoded.Benchmarks[0].Name)
	assert.Equal(t, "buildhost", decoded.SystemSpecs.HostName)
}

func TestWriteReport_LeavesNoOpenHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchmarks.json")
	require.NoError(t, WriteReport(zerolog.Nop(), path, sampleReport()))

	// The report file is closed after writing, so it can be replaced
	// immediately by a subsequent run.
	require.NoError(t, WriteReport(zerolog.Nop(), path, sampleReport()))
	require.NoError(t, os.Remove(path))
}

func TestWriteReport_BadPath(t *testing.T) {
	err := WriteReport(zerolog.Nop(), filepath.Join(t.TempDir(), "missing", "benchmarks.json"), sampleReport())
	require.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleReport(), 100*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, `Benchmark "counter" took 75ms`)
	assert.Contains(t, out, `Phase "parse" took 50ms`)
	assert.Contains(t, out, "Anomaly: unmatched_phase_stop: typecheck")
}

func TestWriteSummary_IncompletePhase(t *testing.T) {
	report := sampleReport()
	report.Benchmarks[0].Phases[0].EndTime = nil

	var buf bytes.Buffer
	WriteSummary(&buf, report, time.Second)
	assert.Contains(t, buf.String(), "incomplete boundaries")
}
