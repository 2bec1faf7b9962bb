package viewer

import (
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// DefaultSparkBuckets is the sparkline resolution.
const DefaultSparkBuckets = 40

// DefaultPlotBuckets is the detail plot resolution.
const DefaultPlotBuckets = 120

// Aggregate selects how samples within a bucket collapse to one value.
type Aggregate string

const (
	AggregateMean Aggregate = "mean"
	AggregateLast Aggregate = "last"
)

// Bucket is one downsampled display unit. HasData false marks a gap;
// renderers decide how to depict it, the engine never interpolates.
type Bucket struct {
	Value   float64 `json:"value"`
	HasData bool    `json:"has_data"`
}

// Axis carries the y-extremes of the visible data and the window's edge
// labels. Extremes come from the clipped slice, not full history, so
// the axis tracks exactly what is on screen.
type Axis struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	StartLabel string  `json:"start_label"`
	EndLabel   string  `json:"end_label"`
}

const axisLabelLayout = "15:04:05"

// Bucketize reduces the window's samples to exactly count buckets, one
// per equal-width sub-interval. samples must already be clipped to the
// window (the store's Range does that); extra samples outside it are
// ignored. count <= 0 falls back to the sparkline default.
func Bucketize(samples []telemetry.Sample, win Window, metric Metric, count int, agg Aggregate) []Bucket {
	if count <= 0 {
		count = DefaultSparkBuckets
	}
	buckets := make([]Bucket, count)

	span := win.Span()
	if span <= 0 {
		return buckets
	}

	sums := make([]float64, count)
	counts := make([]int, count)

	for _, sample := range samples {
		offset := sample.Timestamp.Sub(win.Start)
		if offset < 0 || offset >= span {
			continue
		}
		idx := int(int64(offset) * int64(count) / int64(span))
		if idx >= count {
			idx = count - 1
		}
		value := metric.Value(sample)
		switch agg {
		case AggregateLast:
			sums[idx] = value
			counts[idx] = 1
		default:
			sums[idx] += value
			counts[idx]++
		}
	}

	for i := range buckets {
		if counts[i] == 0 {
			continue
		}
		buckets[i] = Bucket{Value: sums[i] / float64(counts[i]), HasData: true}
	}
	return buckets
}

// AxisFor computes the axis for the visible slice. ok is false when no
// sample falls inside the window.
func AxisFor(samples []telemetry.Sample, win Window, metric Metric) (Axis, bool) {
	axis := Axis{
		StartLabel: win.Start.Format(axisLabelLayout),
		EndLabel:   win.End.Format(axisLabelLayout),
	}

	var seen bool
	for _, sample := range samples {
		if sample.Timestamp.Before(win.Start) || !sample.Timestamp.Before(win.End) {
			continue
		}
		value := metric.Value(sample)
		if !seen {
			axis.Min, axis.Max = value, value
			seen = true
			continue
		}
		if value < axis.Min {
			axis.Min = value
		}
		if value > axis.Max {
			axis.Max = value
		}
	}
	return axis, seen
}

// bucketWidth is exposed for tests asserting sub-interval geometry.
func bucketWidth(win Window, count int) time.Duration {
	if count <= 0 {
		count = DefaultSparkBuckets
	}
	return win.Span() / time.Duration(count)
}
