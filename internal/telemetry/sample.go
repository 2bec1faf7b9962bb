package telemetry

import (
	"fmt"
	"time"
)

// Sample is one timestamped measurement tuple for one GPU. Samples are
// immutable facts: the poller produces them, the viewer engine consumes
// them, nothing mutates them in between.
type Sample struct {
	Timestamp      time.Time `json:"ts"`
	GPUID          int       `json:"gpu_id"`
	UtilizationPct float64   `json:"utilization_pct"`
	MemoryUsedMB   float64   `json:"memory_used_mb"`
	MemoryTotalMB  float64   `json:"memory_total_mb"`
	TemperatureC   float64   `json:"temperature_c"`
	PowerDrawW     float64   `json:"power_draw_w"`
	ProcessLabel   string    `json:"process_label,omitempty"`
}

// Validate checks the invariants every stored sample must satisfy.
func (s Sample) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("sample has zero timestamp")
	}
	if s.GPUID < 0 {
		return fmt.Errorf("negative gpu id %d", s.GPUID)
	}
	if s.UtilizationPct < 0 || s.UtilizationPct > 100 {
		return fmt.Errorf("utilization %.2f out of [0,100]", s.UtilizationPct)
	}
	if s.MemoryTotalMB <= 0 {
		return fmt.Errorf("memory total %.2f must be > 0", s.MemoryTotalMB)
	}
	if s.MemoryUsedMB < 0 || s.MemoryUsedMB > s.MemoryTotalMB {
		return fmt.Errorf("memory used %.2f out of [0,%.2f]", s.MemoryUsedMB, s.MemoryTotalMB)
	}
	if s.PowerDrawW < 0 {
		return fmt.Errorf("power draw %.2f must be >= 0", s.PowerDrawW)
	}
	return nil
}

// Idle reports whether the sample carries no process attribution.
func (s Sample) Idle() bool {
	return s.ProcessLabel == ""
}
