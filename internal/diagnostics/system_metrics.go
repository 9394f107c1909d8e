package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultMinFreeBytes is the free space below which a storage filesystem is
// reported as low.
const DefaultMinFreeBytes uint64 = 64 * 1024 * 1024

// DiskUsage describes the filesystem holding a storage path.
type DiskUsage struct {
	// Path is the existing directory that was measured.
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Low reports whether less than minFree bytes are available.
func (u DiskUsage) Low(minFree uint64) bool {
	return u.FreeBytes < minFree
}

// String renders the free space for humans.
func (u DiskUsage) String() string {
	return fmt.Sprintf("%s free of %s (%.0f%% used)", FormatBytes(u.FreeBytes), FormatBytes(u.TotalBytes), u.UsedPercent)
}

// StorageDisk measures the filesystem of path. The file and its directory
// need not exist yet: the nearest existing ancestor is measured.
func StorageDisk(path string) (DiskUsage, error) {
	if path == "" {
		return DiskUsage{}, errors.New("no storage path")
	}
	dir, err := nearestDir(path)
	if err != nil {
		return DiskUsage{}, err
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("reading disk usage of %s: %w", dir, err)
	}
	return DiskUsage{
		Path:        dir,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// nearestDir returns path if it is a directory, else its closest existing
// ancestor directory.
func nearestDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	for dir := abs; ; {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing directory above %s", path)
		}
		dir = parent
	}
}

// SystemMetrics holds the host memory usage.
type SystemMetrics struct {
	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`
}

// CollectSystem reads the host memory usage.
func CollectSystem() (SystemMetrics, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return SystemMetrics{}, fmt.Errorf("reading memory: %w", err)
	}
	return SystemMetrics{
		MemTotalMB: float64(vm.Total) / 1024 / 1024,
		MemUsedMB:  float64(vm.Used) / 1024 / 1024,
		MemPercent: vm.UsedPercent,
	}, nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
