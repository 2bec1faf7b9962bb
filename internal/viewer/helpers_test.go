package viewer

import (
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSample(ts time.Time, gpuID int, util float64, label string) telemetry.Sample {
	return telemetry.Sample{
		Timestamp:      ts,
		GPUID:          gpuID,
		UtilizationPct: util,
		MemoryUsedMB:   4000,
		MemoryTotalMB:  16000,
		TemperatureC:   55,
		PowerDrawW:     150,
		ProcessLabel:   label,
	}
}

func testLimits() Limits {
	return Limits{
		MinSpan:     5 * time.Second,
		MaxSpan:     time.Hour,
		DefaultSpan: 300 * time.Second,
	}
}
