package metrics

import (
	"context"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// memoryStatusEx matches the MEMORYSTATUSEX Windows structure.
type memoryStatusEx struct {
	dwLength                uint32
	dwMemoryLoad            uint32
	ullTotalPhys            uint64
	ullAvailPhys            uint64
	ullTotalPageFile        uint64
	ullAvailPageFile        uint64
	ullTotalVirtual         uint64
	ullAvailVirtual         uint64
	ullAvailExtendedVirtual uint64
}

var (
	modkernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemTimes       = modkernel32.NewProc("GetSystemTimes")
	procGlobalMemoryStatusEx = modkernel32.NewProc("GlobalMemoryStatusEx")
	procGetTickCount64       = modkernel32.NewProc("GetTickCount64")
)

type systemCollector struct {
	diskPath string
}

// NewCollector reads host metrics through kernel32. diskPath is the volume
// root measured for disk usage; empty means `C:\`.
func NewCollector(diskPath string) Collector {
	if diskPath == "" {
		diskPath = `C:\`
	}
	return &systemCollector{diskPath: diskPath}
}

func (c *systemCollector) Collect(ctx context.Context) (Sample, error) {
	var sample Sample

	cpu, err := c.collectCPU(ctx)
	if err != nil {
		return Sample{}, err
	}
	sample.CPUPercent = cpu

	mem, err := c.collectMemory()
	if err != nil {
		return Sample{}, err
	}
	sample.Memory = mem
	if mem.Total > 0 {
		sample.MemoryPercent = float64(mem.Used) / float64(mem.Total) * 100
	}

	disk, err := c.collectDisk()
	if err != nil {
		return Sample{}, err
	}
	sample.Disk = disk
	if disk.Total > 0 {
		sample.DiskPercent = float64(disk.Used) / float64(disk.Total) * 100
	}

	if ms, _, _ := procGetTickCount64.Call(); ms != 0 {
		sample.UptimeSeconds = uint64(ms) / 1000
	}

	sample.Timestamp = time.Now()
	return sample, nil
}

func (c *systemCollector) getSystemTimes() (idle, kernel, user uint64, err error) {
	var idleTime, kernelTime, userTime windows.Filetime
	r1, _, callErr := procGetSystemTimes.Call(
		uintptr(unsafe.Pointer(&idleTime)),
		uintptr(unsafe.Pointer(&kernelTime)),
		uintptr(unsafe.Pointer(&userTime)),
	)
	if r1 == 0 {
		return 0, 0, 0, callErr
	}
	idle = uint64(idleTime.HighDateTime)<<32 | uint64(idleTime.LowDateTime)
	kernel = uint64(kernelTime.HighDateTime)<<32 | uint64(kernelTime.LowDateTime)
	user = uint64(userTime.HighDateTime)<<32 | uint64(userTime.LowDateTime)
	return
}

// collectCPU takes two snapshots 200ms apart. A single snapshot gives the
// cumulative average since boot, not current load.
func (c *systemCollector) collectCPU(ctx context.Context) (float64, error) {
	idle1, kernel1, user1, err := c.getSystemTimes()
	if err != nil {
		return 0, err
	}

	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	idle2, kernel2, user2, err := c.getSystemTimes()
	if err != nil {
		return 0, err
	}

	deltaIdle := idle2 - idle1
	// kernel time includes idle time; total = kernel + user
	deltaTotal := (kernel2 + user2) - (kernel1 + user1)
	if deltaTotal == 0 {
		return 0, nil
	}

	return float64(deltaTotal-deltaIdle) / float64(deltaTotal) * 100, nil
}

func (c *systemCollector) collectMemory() (MemoryDetail, error) {
	var memStatus memoryStatusEx
	memStatus.dwLength = uint32(unsafe.Sizeof(memStatus))
	r1, _, err := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&memStatus)))
	if r1 == 0 {
		return MemoryDetail{}, err
	}

	return MemoryDetail{
		Used:      memStatus.ullTotalPhys - memStatus.ullAvailPhys,
		Total:     memStatus.ullTotalPhys,
		Available: memStatus.ullAvailPhys,
	}, nil
}

func (c *systemCollector) collectDisk() (DiskDetail, error) {
	root, err := windows.UTF16PtrFromString(c.diskPath)
	if err != nil {
		return DiskDetail{}, err
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(root, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return DiskDetail{}, err
	}

	return DiskDetail{
		Used:  totalBytes - totalFreeBytes,
		Total: totalBytes,
		Free:  totalFreeBytes,
	}, nil
}
