// Package recording persists telemetry runs as CSV files and loads
// them back for static viewing. One file is one run.
package recording

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Columns of the recording format, in order.
var Header = []string{
	"timestamp",
	"gpu_id",
	"utilization_pct",
	"memory_used_mb",
	"memory_total_mb",
	"temperature_c",
	"power_draw_w",
	"process_label",
}

// TimestampLayout matches the nvidia-smi timestamp the poller parses,
// so a recording row round-trips exactly.
const TimestampLayout = "2006/01/02 15:04:05.000"

const (
	filePrefix     = "gpu_"
	fileExt        = ".csv"
	fileExtGzipped = ".csv.gz"
)

// NewPath builds a fresh recording path under dir, stamped with the
// start time and a short run id.
func NewPath(dir string, start time.Time, compress bool) (path, runID string) {
	runID = uuid.NewString()[:8]
	ext := fileExt
	if compress {
		ext = fileExtGzipped
	}
	name := fmt.Sprintf("%s%s_%s%s", filePrefix, start.Format("20060102_150405"), runID, ext)
	return filepath.Join(dir, name), runID
}

// IsCompressed reports whether the path names a gzip recording.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

func isRecordingName(name string) bool {
	if !strings.HasPrefix(name, filePrefix) {
		return false
	}
	return strings.HasSuffix(name, fileExt) || strings.HasSuffix(name, fileExtGzipped)
}
