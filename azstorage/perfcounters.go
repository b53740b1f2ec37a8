package azstorage

import "github.com/azstorex/azstorage/internal/metrics"

// PerfCounters is the facade's view of the process-global performance
// counters of spec.md §6, re-exported here so callers never need to
// import internal/metrics directly.
type PerfCounters = metrics.Counters

// ResetPerfCounters zeroes every process-global performance counter.
func ResetPerfCounters() { metrics.Reset() }

// GetPerfCounters snapshots the process-global performance counters.
func GetPerfCounters() PerfCounters { return metrics.Get() }
