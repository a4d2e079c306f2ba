package metrics

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

type systemCollector struct {
	diskPath string
}

// NewCollector reads host metrics from /proc and statfs. diskPath is the
// mount point measured for disk usage; empty means "/".
func NewCollector(diskPath string) Collector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &systemCollector{diskPath: diskPath}
}

func (c *systemCollector) Collect(ctx context.Context) (Sample, error) {
	var sample Sample

	cpu, err := c.collectCPU(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("collect cpu: %w", err)
	}
	sample.CPUPercent = cpu

	mem, err := c.collectMemory()
	if err != nil {
		return Sample{}, fmt.Errorf("collect memory: %w", err)
	}
	sample.Memory = mem
	if mem.Total > 0 {
		sample.MemoryPercent = float64(mem.Used) / float64(mem.Total) * 100
	}

	disk, err := c.collectDisk()
	if err != nil {
		return Sample{}, fmt.Errorf("collect disk: %w", err)
	}
	sample.Disk = disk
	if disk.Total > 0 {
		sample.DiskPercent = float64(disk.Used) / float64(disk.Total) * 100
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		sample.UptimeSeconds = uint64(info.Uptime)
	}

	sample.Timestamp = time.Now()
	return sample, nil
}

type cpuStat struct{ idle, total uint64 }

func readCPUStat() (cpuStat, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return cpuStat{}, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return cpuStat{}, scanner.Err()
	}

	line := scanner.Text()
	parts := strings.Fields(line)
	if len(parts) < 5 || parts[0] != "cpu" {
		return cpuStat{}, fmt.Errorf("unexpected /proc/stat format: %q", line)
	}

	// Sum all jiffy fields for the total. Value field index 3 is idle.
	var idle, total uint64
	for i, field := range parts[1:] {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return cpuStat{}, fmt.Errorf("parse /proc/stat field %d: %w", i+1, err)
		}
		total += v
		if i == 3 {
			idle = v
		}
	}
	return cpuStat{idle: idle, total: total}, nil
}

// collectCPU takes two snapshots 200ms apart. A single snapshot gives the
// cumulative average since boot, not current load.
func (c *systemCollector) collectCPU(ctx context.Context) (float64, error) {
	s1, err := readCPUStat()
	if err != nil {
		return 0, err
	}

	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	s2, err := readCPUStat()
	if err != nil {
		return 0, err
	}

	deltaIdle := s2.idle - s1.idle
	deltaTotal := s2.total - s1.total
	if deltaTotal == 0 {
		return 0, nil
	}

	return float64(deltaTotal-deltaIdle) / float64(deltaTotal) * 100, nil
}

func (c *systemCollector) collectMemory() (MemoryDetail, error) {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return MemoryDetail{}, err
	}
	defer file.Close()

	var memTotal, memAvailable uint64

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		value, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}

		switch parts[0] {
		case "MemTotal:":
			memTotal = value * 1024
		case "MemAvailable:":
			memAvailable = value * 1024
		}
	}

	if memTotal == 0 {
		return MemoryDetail{}, scanner.Err()
	}

	return MemoryDetail{
		Used:      memTotal - memAvailable,
		Total:     memTotal,
		Available: memAvailable,
	}, nil
}

func (c *systemCollector) collectDisk() (DiskDetail, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(c.diskPath, &stat); err != nil {
		return DiskDetail{}, err
	}

	total := uint64(stat.Blocks) * uint64(stat.Bsize)
	free := uint64(stat.Bfree) * uint64(stat.Bsize)

	return DiskDetail{
		Used:  total - free,
		Total: total,
		Free:  free,
	}, nil
}
