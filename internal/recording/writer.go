package recording

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// Recorder appends sample batches to a CSV recording, flushing after
// every batch so a crashed run still leaves a usable file. Gzip
// recordings append as independent members, which concatenate into one
// valid stream.
type Recorder struct {
	path   string
	file   *os.File
	gz     *gzip.Writer
	csv    *csv.Writer
	logger *slog.Logger
}

// NewRecorder opens (or creates) the recording at path. The header row
// is written only when the file is new.
func NewRecorder(path string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat recording: %w", err)
	}

	r := &Recorder{
		path:   path,
		file:   file,
		logger: logger.With("component", "recorder", "path", path),
	}

	var sink io.Writer = file
	if IsCompressed(path) {
		r.gz = gzip.NewWriter(file)
		sink = r.gz
	}
	r.csv = csv.NewWriter(sink)

	if info.Size() == 0 {
		if err := r.csv.Write(Header); err != nil {
			r.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := r.flush(); err != nil {
			r.Close()
			return nil, err
		}
	}

	return r, nil
}

// Path returns the recording's file path.
func (r *Recorder) Path() string { return r.path }

// Append writes one batch of samples and flushes.
func (r *Recorder) Append(batch []telemetry.Sample) error {
	for _, sample := range batch {
		if err := r.csv.Write(formatRow(sample)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return r.flush()
}

func (r *Recorder) flush() error {
	r.csv.Flush()
	if err := r.csv.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if r.gz != nil {
		if err := r.gz.Flush(); err != nil {
			return fmt.Errorf("flush gzip: %w", err)
		}
	}
	return nil
}

// Close flushes and releases the underlying file.
func (r *Recorder) Close() error {
	r.csv.Flush()
	var errs []error
	if err := r.csv.Error(); err != nil {
		errs = append(errs, err)
	}
	if r.gz != nil {
		if err := r.gz.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gzip: %w", err))
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close file: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func formatRow(sample telemetry.Sample) []string {
	return []string{
		sample.Timestamp.Format(TimestampLayout),
		strconv.Itoa(sample.GPUID),
		formatFloat(sample.UtilizationPct),
		formatFloat(sample.MemoryUsedMB),
		formatFloat(sample.MemoryTotalMB),
		formatFloat(sample.TemperatureC),
		formatFloat(sample.PowerDrawW),
		sample.ProcessLabel,
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
