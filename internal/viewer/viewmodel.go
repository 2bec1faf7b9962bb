package viewer

import (
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// MetricSeries is the bucketed rendering of one metric over the
// current window.
type MetricSeries struct {
	Metric  Metric   `json:"metric"`
	Unit    string   `json:"unit"`
	Buckets []Bucket `json:"buckets"`
	Spark   []Bucket `json:"spark"`
	Axis    Axis     `json:"axis"`
	HasData bool     `json:"has_data"`
}

// GPUView is one GPU's slice of the view-model. A GPU with no samples
// yet is still present, with HasData false, so grid layouts stay
// stable.
type GPUView struct {
	GPUID       int               `json:"gpu_id"`
	HasData     bool              `json:"has_data"`
	Latest      *telemetry.Sample `json:"latest,omitempty"`
	Status      Status            `json:"status"`
	Bands       map[Metric]Band   `json:"bands"`
	Series      []MetricSeries    `json:"series"`
	Timeline    []Segment         `json:"timeline"`
	SampleCount int               `json:"sample_count"`
}

// ViewModel is the immutable per-refresh output the renderer consumes.
// It is freshly constructed every refresh and safe to hand across
// goroutines without synchronisation.
type ViewModel struct {
	GeneratedAt time.Time `json:"generated_at"`
	Window      Window    `json:"window"`
	SpanSeconds float64   `json:"span_seconds"`
	Mode        Mode      `json:"mode"`
	GPUs        []GPUView `json:"gpus"`
}
