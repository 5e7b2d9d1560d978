// Package bench assembles collector output into benchmark records and reports.
package bench

import (
	"time"

	"github.com/buildperf/buildperf/internal/collector"
)

// Benchmark is one measured compiler invocation.
//
// StartTime and EndTime are offsets from the suite epoch taken immediately
// before spawn and immediately after exit, so the wrapper's own overhead is
// included in overall timing but excluded from per-phase timing.
type Benchmark struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Path      string         `json:"path"`
	StartTime *time.Duration `json:"start_time,omitempty"`
	EndTime   *time.Duration `json:"end_time,omitempty"`
	// BytecodeSize is the size of the compiled output, when the compiler
	// reports one over the signal channel.
	BytecodeSize *uint64           `json:"bytecode_size,omitempty"`
	Phases       []collector.Phase `json:"phases"`
	Frames       []collector.Frame `json:"frames"`
	// Anomalies lists the non-fatal conditions recorded during the run.
	Anomalies []string `json:"anomalies,omitempty"`
}

// Duration returns the overall wall time of the benchmark, or zero if either
// boundary is missing.
func (b *Benchmark) Duration() time.Duration {
	if b.StartTime == nil || b.EndTime == nil {
		return 0
	}
	return *b.EndTime - *b.StartTime
}

// Report is the top-level output: one host snapshot plus every benchmark of
// the suite in run order.
type Report struct {
	SystemSpecs SystemSpecs `json:"system_specs"`
	Benchmarks  []Benchmark `json:"benchmarks"`
}

// SystemSpecs is an immutable one-shot snapshot of host characteristics.
//
// GlobalCPUUsage and per-CPU usage are captured for operator display but
// excluded from serialization: they are volatile measurements, not host
// identity, and would poison comparisons across runs.
type SystemSpecs struct {
	GlobalCPUUsage    float64     `json:"-"`
	CPUs              []CPU       `json:"cpus"`
	PhysicalCoreCount int64       `json:"physical_core_count"`
	TotalMemory       int64       `json:"total_memory"`
	FreeMemory        int64       `json:"free_memory"`
	AvailableMemory   int64       `json:"available_memory"`
	UsedMemory        int64       `json:"used_memory"`
	TotalSwap         int64       `json:"total_swap"`
	FreeSwap          int64       `json:"free_swap"`
	UsedSwap          int64       `json:"used_swap"`
	Uptime            int64       `json:"uptime"`
	BootTime          int64       `json:"boot_time"`
	LoadAverage       LoadAverage `json:"load_average"`
	Name              string      `json:"name"`
	KernelVersion     string      `json:"kernel_version"`
	OSVersion         string      `json:"os_version"`
	LongOSVersion     string      `json:"long_os_version"`
	DistributionID    string      `json:"distribution_id"`
	HostName          string      `json:"host_name"`
}

// CPU describes a single logical core.
type CPU struct {
	CPUUsage  float64 `json:"-"`
	Name      string  `json:"name"`
	VendorID  string  `json:"vendor_id"`
	Brand     string  `json:"brand"`
	Frequency int64   `json:"frequency"`
}

// LoadAverage holds the 1/5/15 minute load averages.
type LoadAverage struct {
	One     float64 `json:"one"`
	Five    float64 `json:"five"`
	Fifteen float64 `json:"fifteen"`
}
