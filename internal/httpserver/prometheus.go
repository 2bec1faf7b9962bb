package httpserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gpuscope/gpuscope/internal/telemetry"
	"github.com/gpuscope/gpuscope/internal/viewer"
)

// gpuMetricsCollector exposes the latest sample per GPU as prometheus
// gauges. It reads the engine's latest cache on every scrape, so values
// are as fresh as the last poll.
type gpuMetricsCollector struct {
	engine *viewer.Engine
	descs  []gpuMetricDesc
}

type gpuMetricDesc struct {
	desc  *prometheus.Desc
	value func(telemetry.Sample) float64
}

func newGPUMetricsCollector(engine *viewer.Engine) *gpuMetricsCollector {
	if engine == nil {
		return nil
	}

	newDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("gpuscope", "gpu", name),
			help,
			[]string{"gpu_id"},
			nil,
		)
	}

	return &gpuMetricsCollector{
		engine: engine,
		descs: []gpuMetricDesc{
			{
				desc:  newDesc("utilization_percent", "GPU utilization percentage."),
				value: func(s telemetry.Sample) float64 { return s.UtilizationPct },
			},
			{
				desc:  newDesc("memory_used_mb", "GPU memory in use, megabytes."),
				value: func(s telemetry.Sample) float64 { return s.MemoryUsedMB },
			},
			{
				desc:  newDesc("memory_total_mb", "Total GPU memory, megabytes."),
				value: func(s telemetry.Sample) float64 { return s.MemoryTotalMB },
			},
			{
				desc:  newDesc("temperature_celsius", "GPU core temperature."),
				value: func(s telemetry.Sample) float64 { return s.TemperatureC },
			},
			{
				desc:  newDesc("power_draw_watts", "GPU board power draw."),
				value: func(s telemetry.Sample) float64 { return s.PowerDrawW },
			},
			{
				desc:  newDesc("sample_timestamp_seconds", "Unix timestamp of the latest sample."),
				value: func(s telemetry.Sample) float64 { return float64(s.Timestamp.Unix()) },
			},
			{
				desc:  newDesc("sample_age_seconds", "Seconds since the latest sample was taken."),
				value: func(s telemetry.Sample) float64 { return time.Since(s.Timestamp).Seconds() },
			},
		},
	}
}

func (c *gpuMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

func (c *gpuMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, id := range c.engine.GPUIDs() {
		sample, ok := c.engine.Latest(id)
		if !ok {
			continue
		}
		label := strconv.Itoa(id)
		for _, d := range c.descs {
			ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, d.value(sample), label)
		}
	}
}
