package telemetry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts emitted by nvidia-smi, most specific first.
var timestampLayouts = []string{
	"2006/01/02 15:04:05.000",
	"2006/01/02 15:04:05",
}

var (
	rayLabelPattern    = regexp.MustCompile(`ray::([a-zA-Z0-9_.\-:]+)`)
	pythonScriptSuffix = regexp.MustCompile(`([\w\-]+\.py)\b`)
)

// ParseTimestamp parses an nvidia-smi timestamp string.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// parseQueryLine parses one row of
// `--query-gpu=timestamp,index,utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw`
// CSV output into a Sample without its process label.
func parseQueryLine(line string) (Sample, error) {
	fields := splitCSVFields(line)
	if len(fields) < 7 {
		return Sample{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}

	ts, err := ParseTimestamp(fields[0])
	if err != nil {
		return Sample{}, err
	}

	gpuID, err := strconv.Atoi(fields[1])
	if err != nil {
		return Sample{}, fmt.Errorf("parse gpu index: %w", err)
	}

	util, err := parseMetricValue(fields[2])
	if err != nil {
		return Sample{}, fmt.Errorf("parse utilization: %w", err)
	}
	memUsed, err := parseMetricValue(fields[3])
	if err != nil {
		return Sample{}, fmt.Errorf("parse memory used: %w", err)
	}
	memTotal, err := parseMetricValue(fields[4])
	if err != nil {
		return Sample{}, fmt.Errorf("parse memory total: %w", err)
	}
	temp, err := parseMetricValue(fields[5])
	if err != nil {
		return Sample{}, fmt.Errorf("parse temperature: %w", err)
	}
	// Power reads "[N/A]" on some boards; treat that as zero draw.
	power, err := parseMetricValue(fields[6])
	if err != nil {
		power = 0
	}

	sample := Sample{
		Timestamp:      ts,
		GPUID:          gpuID,
		UtilizationPct: clampFloat(util, 0, 100),
		MemoryUsedMB:   memUsed,
		MemoryTotalMB:  memTotal,
		TemperatureC:   temp,
		PowerDrawW:     power,
	}
	if sample.MemoryTotalMB > 0 && sample.MemoryUsedMB > sample.MemoryTotalMB {
		sample.MemoryUsedMB = sample.MemoryTotalMB
	}
	return sample, sample.Validate()
}

func parseMetricValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "[") {
		return 0, fmt.Errorf("value unavailable: %q", raw)
	}
	return strconv.ParseFloat(raw, 64)
}

func splitCSVFields(line string) []string {
	raw := strings.Split(line, ",")
	fields := make([]string, 0, len(raw))
	for _, field := range raw {
		fields = append(fields, strings.TrimSpace(field))
	}
	return fields
}

// ExtractProcessLabel reduces a raw process name to a display label.
// Ray workers report as "ray::function", python interpreters by their
// script name; anything else passes through trimmed.
func ExtractProcessLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if match := rayLabelPattern.FindStringSubmatch(name); match != nil {
		return match[1]
	}
	if match := pythonScriptSuffix.FindStringSubmatch(name); match != nil {
		return match[1]
	}
	// Strip any path prefix from plain executables.
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 && idx < len(name)-1 {
		name = name[idx+1:]
	}
	const maxLabelLen = 64
	if len(name) > maxLabelLen {
		name = name[:maxLabelLen]
	}
	return name
}

func joinLabels(labels []string) string {
	return strings.Join(labels, "; ")
}

func clampFloat(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
