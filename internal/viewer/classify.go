package viewer

import (
	"math"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// Band is the severity classification of a metric value.
type Band string

const (
	BandUnknown  Band = "unknown"
	BandSafe     Band = "safe"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
)

// Status is the activity label derived from utilization.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusIdle    Status = "idle"
	StatusActive  Status = "active"
	StatusHot     Status = "hot"
)

// Normalization scales for metrics that are not natively percentages.
const (
	temperatureScaleC = 100
	powerScaleW       = 400
)

// ClassifyPercent maps a percentage value to a severity band. Ties
// resolve to the lower-severity band: exactly 50 is moderate, exactly
// 75 is moderate.
func ClassifyPercent(value float64) Band {
	switch {
	case math.IsNaN(value):
		return BandUnknown
	case value < 50:
		return BandSafe
	case value <= 75:
		return BandModerate
	default:
		return BandHigh
	}
}

// ClassifyStatus maps utilization to an activity label. Exactly 30 and
// exactly 80 are both active.
func ClassifyStatus(utilization float64) Status {
	switch {
	case math.IsNaN(utilization):
		return StatusUnknown
	case utilization < 30:
		return StatusIdle
	case utilization <= 80:
		return StatusActive
	default:
		return StatusHot
	}
}

// MetricBand classifies one metric of a sample, normalizing
// non-percentage metrics onto a 0-100 scale first.
func MetricBand(sample telemetry.Sample, metric Metric) Band {
	if !metric.Valid() {
		return BandUnknown
	}
	return ClassifyPercent(metric.normalizedPercent(sample))
}
