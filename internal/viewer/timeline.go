package viewer

import (
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// Segment is a run of consecutive samples sharing one process label,
// clipped to the window. An empty label means idle.
type Segment struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BuildTimeline derives label segments from the window's samples.
// Adjacent samples with the same label merge regardless of sampling
// gaps, unless the gap exceeds maxGap: a segment must not imply
// continuous activity across a stall. maxGap <= 0 disables gap
// splitting.
func BuildTimeline(samples []telemetry.Sample, win Window, maxGap time.Duration) []Segment {
	var segments []Segment
	var current *Segment
	var prevTS time.Time

	for _, sample := range samples {
		ts := sample.Timestamp
		if ts.Before(win.Start) || !ts.Before(win.End) {
			continue
		}

		stalled := current != nil && maxGap > 0 && ts.Sub(prevTS) > maxGap
		if current == nil || current.Label != sample.ProcessLabel || stalled {
			if current != nil {
				segments = append(segments, *current)
			}
			current = &Segment{Label: sample.ProcessLabel, Start: ts, End: ts}
		} else {
			current.End = ts
		}
		prevTS = ts
	}

	if current != nil {
		segments = append(segments, *current)
	}
	return segments
}
