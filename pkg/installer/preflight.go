// pkg/installer/preflight.go - free-space check before a batch starts.

package installer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/progress"
)

// ErrInsufficientSpace is returned when the destination cannot hold the batch.
var ErrInsufficientSpace = errors.New("insufficient free space")

// DiskFree reports the free bytes of the filesystem holding path. A path that
// does not exist yet is resolved to its nearest existing parent.
func DiskFree(path string) (uint64, error) {
	dir, err := existingParent(path)
	if err != nil {
		return 0, err
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("query disk usage for %s: %w", dir, err)
	}
	return usage.Free, nil
}

func existingParent(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %s", path)
		}
		dir = parent
	}
}

// RequiredBytes sums the known sizes of items, saturating at math.MaxUint64.
func RequiredBytes(items []catalog.Item) uint64 {
	var total uint64
	for _, it := range items {
		if it.Size > math.MaxUint64-total {
			return math.MaxUint64
		}
		total += it.Size
	}
	return total
}

func (o *Orchestrator) preflight(items []catalog.Item, dest Destination) error {
	if dest.Path == "" || o.FreeSpace == nil {
		return nil
	}
	need := RequiredBytes(items)
	if need == 0 {
		return nil
	}
	free, err := o.FreeSpace(dest.Path)
	if err != nil {
		logging.Warn("Free space unknown, skipping check", "path", dest.Path, "error", err)
		return nil
	}
	logging.Debug("Install preflight", "path", dest.Path, "required", need, "free", free)
	if need > free {
		return fmt.Errorf("%w: %s required, %s available at %s",
			ErrInsufficientSpace, progress.FormatBytes(int64(need)), progress.FormatBytes(int64(free)), dest.Path)
	}
	return nil
}
