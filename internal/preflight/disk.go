package preflight

import (
	"fmt"
	"syscall"

	"github.com/academe-ai/academe/internal/ui"
)

// MinDiskSpaceBytes is the minimum free space required in the data
// directory (200MB: SQLite database plus vector snapshots).
const MinDiskSpaceBytes = 200 * 1024 * 1024

// CheckDiskSpace verifies free space at the data directory.
func (c *Checker) CheckDiskSpace() CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.cfg.Storage.DataDir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	availableBytes := int64(stat.Bavail) * int64(stat.Bsize) //nolint:gosec

	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		ui.FormatBytes(availableBytes), ui.FormatBytes(MinDiskSpaceBytes))
	if availableBytes < MinDiskSpaceBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}
