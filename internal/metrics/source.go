// Package metrics queries the operating system for per-process resource usage.
package metrics

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// ErrProcessNotFound indicates the target process no longer exists.
// Sampling a vanished process is an expected end-of-run condition, not a failure.
var ErrProcessNotFound = errors.New("process not found")

// Reading is one instantaneous measurement of a process.
// Disk counters are cumulative since process start; delta computation against
// the previous reading is the caller's concern.
type Reading struct {
	// CPUUsage is the process CPU percentage, normalized by the logical core
	// count so that a fully loaded machine reads near 100 regardless of core count.
	CPUUsage float64
	// MemoryUsage is the resident set size in bytes.
	MemoryUsage uint64
	// VirtualMemoryUsage is the virtual memory size in bytes.
	VirtualMemoryUsage uint64
	// DiskWrittenBytes is the cumulative number of bytes written to disk.
	DiskWrittenBytes uint64
	// DiskReadBytes is the cumulative number of bytes read from disk.
	DiskReadBytes uint64
}

// Source produces readings for a single target process.
//
// Implementations hold the baseline state needed for delta-derived values
// (CPU percentage in particular), so each Source is bound to exactly one
// measurement sequence: Sample must be called from a single goroutine, and a
// Source must not be shared between collectors.
type Source interface {
	Sample() (Reading, error)
}

// ProcessSource reads metrics for one OS process via gopsutil.
type ProcessSource struct {
	proc    *process.Process
	numCPUs int
}

// NewProcessSource creates a source bound to the process with the given pid.
// Returns ErrProcessNotFound if no such process exists.
func NewProcessSource(pid int32) (*ProcessSource, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	numCPUs, err := cpu.Counts(true)
	if err != nil || numCPUs < 1 {
		numCPUs = 1
	}

	return &ProcessSource{
		proc:    proc,
		numCPUs: numCPUs,
	}, nil
}

// Pid returns the pid this source is bound to.
func (s *ProcessSource) Pid() int32 {
	return s.proc.Pid
}

// Sample refreshes the OS-level view of the process and returns a reading.
// The CPU percentage is computed by gopsutil as a delta against the previous
// Sample call on this source; the first reading reports zero CPU.
func (s *ProcessSource) Sample() (Reading, error) {
	// Percent(0) measures against the previous call rather than blocking for
	// an internal interval, keeping per-tick work O(1).
	cpuPercent, err := s.proc.Percent(0)
	if err != nil {
		return Reading{}, s.sampleError(err)
	}

	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return Reading{}, s.sampleError(err)
	}

	reading := Reading{
		CPUUsage:           cpuPercent / float64(s.numCPUs),
		MemoryUsage:        memInfo.RSS,
		VirtualMemoryUsage: memInfo.VMS,
	}

	// IO counters require elevated privileges on some platforms; degrade to
	// zero counters rather than failing the whole reading.
	ioCounters, err := s.proc.IOCounters()
	if err == nil && ioCounters != nil {
		reading.DiskWrittenBytes = ioCounters.WriteBytes
		reading.DiskReadBytes = ioCounters.ReadBytes
	}

	return reading, nil
}

// sampleError maps gopsutil failures onto the package error taxonomy. Any
// error against a process that is no longer running means the target exited.
func (s *ProcessSource) sampleError(err error) error {
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, s.proc.Pid)
	}
	if running, runErr := s.proc.IsRunning(); runErr == nil && !running {
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, s.proc.Pid)
	}
	return fmt.Errorf("failed to sample process %d: %w", s.proc.Pid, err)
}
