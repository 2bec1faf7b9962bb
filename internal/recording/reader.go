package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// Load reads a full recording into memory. Malformed rows are skipped,
// per-GPU timestamp regressions are dropped; only an unreadable file is
// an error. Loaded samples satisfy the same invariants as live ones.
func Load(path string, logger *slog.Logger) ([]telemetry.Sample, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "recording_loader", "path", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer file.Close()

	var source io.Reader = file
	if IsCompressed(path) {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		source = gz
	}

	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1

	var (
		samples  []telemetry.Sample
		lastSeen = make(map[int]time.Time)
		skipped  int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A truncated tail is expected for crashed runs.
			logger.Debug("csv read stopped", "err", err)
			break
		}
		if len(row) > 0 && row[0] == Header[0] {
			continue
		}

		sample, err := parseRow(row)
		if err != nil {
			skipped++
			logger.Debug("skipping malformed row", "err", err)
			continue
		}
		if last, ok := lastSeen[sample.GPUID]; ok && sample.Timestamp.Before(last) {
			skipped++
			logger.Debug("dropping out-of-order row", "gpu_id", sample.GPUID)
			continue
		}
		lastSeen[sample.GPUID] = sample.Timestamp
		samples = append(samples, sample)
	}

	if skipped > 0 {
		logger.Warn("recording loaded with skipped rows", "skipped", skipped, "loaded", len(samples))
	}
	return samples, nil
}

func parseRow(row []string) (telemetry.Sample, error) {
	if len(row) < 7 {
		return telemetry.Sample{}, fmt.Errorf("expected at least 7 columns, got %d", len(row))
	}

	ts, err := telemetry.ParseTimestamp(row[0])
	if err != nil {
		return telemetry.Sample{}, err
	}
	gpuID, err := strconv.Atoi(row[1])
	if err != nil {
		return telemetry.Sample{}, fmt.Errorf("parse gpu_id: %w", err)
	}

	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		raw := row[2+i]
		if raw == "" {
			values[i] = 0
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return telemetry.Sample{}, fmt.Errorf("parse %s: %w", Header[2+i], err)
		}
		values[i] = value
	}

	// process_label column is absent in older recordings.
	var label string
	if len(row) > 7 {
		label = row[7]
	}

	sample := telemetry.Sample{
		Timestamp:      ts,
		GPUID:          gpuID,
		UtilizationPct: values[0],
		MemoryUsedMB:   values[1],
		MemoryTotalMB:  values[2],
		TemperatureC:   values[3],
		PowerDrawW:     values[4],
		ProcessLabel:   label,
	}
	if err := sample.Validate(); err != nil {
		return telemetry.Sample{}, err
	}
	return sample, nil
}
