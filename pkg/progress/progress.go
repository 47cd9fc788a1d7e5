// pkg/progress/progress.go - byte-level progress tracking for downloads

package progress

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Func receives bytes transferred so far and the expected total (0 if unknown).
type Func func(done, total int64)

// ProgressReader wraps an io.Reader to track read progress.
type ProgressReader struct {
	reader         io.Reader
	total          int64
	read           int64
	onProgress     Func
	lastUpdate     time.Time
	updateInterval time.Duration
}

// NewProgressReader creates a new progress tracking reader. onProgress may be nil.
func NewProgressReader(reader io.Reader, total int64, onProgress Func) *ProgressReader {
	return &ProgressReader{
		reader:         reader,
		total:          total,
		onProgress:     onProgress,
		updateInterval: 200 * time.Millisecond,
	}
}

// Read implements io.Reader interface with progress tracking
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		atomic.AddInt64(&pr.read, int64(n))
		pr.updateProgress(false)
	}
	if err == io.EOF {
		pr.updateProgress(true)
	}
	return n, err
}

// Done returns the number of bytes read so far.
func (pr *ProgressReader) Done() int64 {
	return atomic.LoadInt64(&pr.read)
}

// Percent returns the completion percentage, or -1 when the total is unknown.
func (pr *ProgressReader) Percent() int {
	return Percent(pr.Done(), pr.total)
}

func (pr *ProgressReader) updateProgress(final bool) {
	if pr.onProgress == nil {
		return
	}
	now := time.Now()
	done := pr.Done()
	// Throttle updates, but always deliver the first and the last one.
	if !final && !pr.lastUpdate.IsZero() && now.Sub(pr.lastUpdate) < pr.updateInterval && done < pr.total {
		return
	}
	pr.lastUpdate = now
	pr.onProgress(done, pr.total)
}

// Percent converts a byte count into 0..100, or -1 when total is unknown.
func Percent(done, total int64) int {
	if total <= 0 {
		return -1
	}
	pct := int(done * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// FormatBytes formats byte counts in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
