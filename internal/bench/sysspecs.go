package bench

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/buildperf/buildperf/internal/safe"
)

// CaptureSystemSpecs takes a one-shot snapshot of the host.
//
// Each subsystem degrades independently: a query failure leaves its fields
// zero and logs a warning rather than failing the snapshot. Captured once per
// report, outside any sampling window, so its cost never lands in a frame.
func CaptureSystemSpecs(logger zerolog.Logger) SystemSpecs {
	logger = logger.With().Str("component", "system_specs").Logger()

	var specs SystemSpecs

	if infos, err := cpu.Info(); err != nil {
		logger.Warn().Err(err).Msg("Failed to query CPU info")
	} else {
		perCore, err := cpu.Percent(0, true)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to query per-core CPU usage")
		}
		for i, info := range infos {
			core := CPU{
				Name:      fmt.Sprintf("cpu%d", info.CPU),
				VendorID:  info.VendorID,
				Brand:     info.ModelName,
				Frequency: int64(info.Mhz),
			}
			if i < len(perCore) {
				core.CPUUsage = perCore[i]
			}
			specs.CPUs = append(specs.CPUs, core)
		}
	}

	if global, err := cpu.Percent(0, false); err == nil && len(global) > 0 {
		specs.GlobalCPUUsage = global[0]
	}

	if physical, err := cpu.Counts(false); err != nil {
		logger.Warn().Err(err).Msg("Failed to query physical core count")
	} else {
		specs.PhysicalCoreCount = int64(physical)
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.Warn().Err(err).Msg("Failed to query memory stats")
	} else {
		specs.TotalMemory = clamp(logger, "total_memory", vm.Total)
		specs.FreeMemory = clamp(logger, "free_memory", vm.Free)
		specs.AvailableMemory = clamp(logger, "available_memory", vm.Available)
		specs.UsedMemory = clamp(logger, "used_memory", vm.Used)
	}

	if swap, err := mem.SwapMemory(); err != nil {
		logger.Warn().Err(err).Msg("Failed to query swap stats")
	} else {
		specs.TotalSwap = clamp(logger, "total_swap", swap.Total)
		specs.FreeSwap = clamp(logger, "free_swap", swap.Free)
		specs.UsedSwap = clamp(logger, "used_swap", swap.Used)
	}

	if info, err := host.Info(); err != nil {
		logger.Warn().Err(err).Msg("Failed to query host info")
	} else {
		specs.Uptime = clamp(logger, "uptime", info.Uptime)
		specs.BootTime = clamp(logger, "boot_time", info.BootTime)
		specs.Name = info.OS
		specs.KernelVersion = info.KernelVersion
		specs.OSVersion = info.PlatformVersion
		specs.LongOSVersion = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		specs.DistributionID = info.Platform
		specs.HostName = info.Hostname
	}

	if avg, err := load.Avg(); err != nil {
		logger.Warn().Err(err).Msg("Failed to query load averages")
	} else {
		specs.LoadAverage = LoadAverage{
			One:     avg.Load1,
			Five:    avg.Load5,
			Fifteen: avg.Load15,
		}
	}

	return specs
}

func clamp(logger zerolog.Logger, field string, val uint64) int64 {
	converted, clamped := safe.Uint64ToInt64(val)
	if clamped {
		logger.Warn().Str("field", field).Uint64("value", val).Msg("Value clamped to int64 range")
	}
	return converted
}
