// Package metrics collects the host metrics an agent reports in each
// heartbeat.
package metrics

import (
	"context"
	"time"
)

type Collector interface {
	Collect(ctx context.Context) (Sample, error)
}

// Sample is one reading of the metrics the coordinator evaluates thresholds
// against. The detail structs carry absolute values for alert messages.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	Memory        MemoryDetail
	Disk          DiskDetail
	UptimeSeconds uint64
	Timestamp     time.Time
}

type MemoryDetail struct {
	Used      uint64
	Total     uint64
	Available uint64
}

type DiskDetail struct {
	Used  uint64
	Total uint64
	Free  uint64
}
