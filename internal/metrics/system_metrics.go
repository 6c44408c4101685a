package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// SystemStats is one sample of host resource usage
type SystemStats struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryUsedBytes   uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes  uint64  `json:"memory_total_bytes"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
	DiskUsedBytes     uint64  `json:"disk_used_bytes"`
	DiskTotalBytes    uint64  `json:"disk_total_bytes"`
}

// SystemCollector samples CPU, memory and the disk holding the data directory
type SystemCollector struct {
	dataDir string
	logger  *logrus.Logger

	cpuPercent func() (float64, error)
	memory     func() (*mem.VirtualMemoryStat, error)
	diskUsage  func(path string) (*disk.UsageStat, error)
}

// NewSystemCollector creates a collector for the filesystem containing dataDir
func NewSystemCollector(dataDir string, logger *logrus.Logger) *SystemCollector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SystemCollector{
		dataDir:    dataDir,
		logger:     logger,
		cpuPercent: cpuPercent,
		memory:     mem.VirtualMemory,
		diskUsage:  disk.Usage,
	}
}

// cpuPercent reports usage since the previous call without blocking
func cpuPercent() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, nil
	}
	return percentages[0], nil
}

// Collect takes one sample
func (c *SystemCollector) Collect() (*SystemStats, error) {
	cpuUsage, err := c.cpuPercent()
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}

	memInfo, err := c.memory()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}

	diskInfo, err := c.diskUsage(c.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage for %s: %w", c.dataDir, err)
	}

	return &SystemStats{
		CPUPercent:        cpuUsage,
		MemoryUsedPercent: memInfo.UsedPercent,
		MemoryUsedBytes:   memInfo.Used,
		MemoryTotalBytes:  memInfo.Total,
		DiskUsedPercent:   diskInfo.UsedPercent,
		DiskUsedBytes:     diskInfo.Used,
		DiskTotalBytes:    diskInfo.Total,
	}, nil
}

// Run samples every interval and reports to manager until ctx is done.
// The first sample is taken immediately.
func (c *SystemCollector) Run(ctx context.Context, manager Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.report(manager)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *SystemCollector) report(manager Manager) {
	stats, err := c.Collect()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to collect system metrics")
		return
	}
	manager.UpdateSystemMetrics(stats)
}
