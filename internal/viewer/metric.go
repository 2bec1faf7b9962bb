// Package viewer implements the time-series viewer engine: the
// navigable window over recorded or live GPU telemetry and the
// downsampled view-models renderers consume.
package viewer

import (
	"math"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// Metric identifies one plottable series of a sample.
type Metric string

const (
	MetricUtilization Metric = "utilization"
	MetricMemory      Metric = "memory"
	MetricTemperature Metric = "temperature"
	MetricPower       Metric = "power"
)

// AllMetrics lists every plottable metric in display order.
var AllMetrics = []Metric{MetricUtilization, MetricMemory, MetricTemperature, MetricPower}

// DefaultSelection matches the original tool's default of plotting
// memory only.
var DefaultSelection = []Metric{MetricMemory}

// Valid reports whether m names a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricUtilization, MetricMemory, MetricTemperature, MetricPower:
		return true
	}
	return false
}

// Value extracts the metric's scalar from a sample.
func (m Metric) Value(sample telemetry.Sample) float64 {
	switch m {
	case MetricUtilization:
		return sample.UtilizationPct
	case MetricMemory:
		return sample.MemoryUsedMB
	case MetricTemperature:
		return sample.TemperatureC
	case MetricPower:
		return sample.PowerDrawW
	}
	return math.NaN()
}

// Unit returns the metric's display unit.
func (m Metric) Unit() string {
	switch m {
	case MetricUtilization:
		return "%"
	case MetricMemory:
		return "MB"
	case MetricTemperature:
		return "°C"
	case MetricPower:
		return "W"
	}
	return ""
}

// normalizedPercent maps the metric's value onto a 0-100 scale for
// severity banding.
func (m Metric) normalizedPercent(sample telemetry.Sample) float64 {
	switch m {
	case MetricUtilization:
		return sample.UtilizationPct
	case MetricMemory:
		if sample.MemoryTotalMB <= 0 {
			return math.NaN()
		}
		return sample.MemoryUsedMB / sample.MemoryTotalMB * 100
	case MetricTemperature:
		return sample.TemperatureC / temperatureScaleC * 100
	case MetricPower:
		return sample.PowerDrawW / powerScaleW * 100
	}
	return math.NaN()
}
