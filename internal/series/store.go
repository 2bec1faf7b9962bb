// Package series holds the per-GPU append-only sample history the
// viewer engine reads from.
package series

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// ErrOutOfOrder is returned when an appended sample's timestamp
// precedes the last stored sample for the same GPU.
var ErrOutOfOrder = errors.New("sample out of order")

// Store keeps one ordered sample sequence per GPU id. GPU ids enter
// the known set either through Register or as samples arrive; the set
// only grows within a run. Store is not safe for concurrent use; the
// owning engine serialises access.
type Store struct {
	cap     int
	samples map[int][]telemetry.Sample
	order   []int
}

// NewStore creates an empty store. cap bounds the per-GPU history as a
// ring (oldest evicted); cap <= 0 means unbounded.
func NewStore(cap int) *Store {
	return &Store{
		cap:     cap,
		samples: make(map[int][]telemetry.Sample),
	}
}

// Register adds gpuID to the known set without any samples, so it
// shows up in GPUIDs before telemetry for it arrives. Registering a
// known id is a no-op.
func (s *Store) Register(gpuID int) {
	if _, known := s.samples[gpuID]; known {
		return
	}
	s.samples[gpuID] = nil
	s.order = append(s.order, gpuID)
}

// Append adds a sample to its GPU's sequence. Fails with ErrOutOfOrder
// if the timestamp precedes the last stored sample for that GPU; the
// store is left unchanged in that case.
func (s *Store) Append(sample telemetry.Sample) error {
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("invalid sample: %w", err)
	}

	seq, known := s.samples[sample.GPUID]
	if len(seq) > 0 && sample.Timestamp.Before(seq[len(seq)-1].Timestamp) {
		return fmt.Errorf("gpu %d: %w: %s precedes %s", sample.GPUID, ErrOutOfOrder,
			sample.Timestamp.Format(time.RFC3339Nano), seq[len(seq)-1].Timestamp.Format(time.RFC3339Nano))
	}

	if !known {
		s.order = append(s.order, sample.GPUID)
	}

	seq = append(seq, sample)
	if s.cap > 0 && len(seq) > s.cap {
		seq = seq[len(seq)-s.cap:]
	}
	s.samples[sample.GPUID] = seq
	return nil
}

// Range returns the contiguous subsequence for gpuID whose timestamps
// fall in [start, end). Unknown GPUs yield an empty result. The
// returned slice aliases the store; callers that hold it across
// mutations must copy.
func (s *Store) Range(gpuID int, start, end time.Time) []telemetry.Sample {
	seq := s.samples[gpuID]
	if len(seq) == 0 || !end.After(start) {
		return nil
	}

	lo := sort.Search(len(seq), func(i int) bool {
		return !seq[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(seq), func(i int) bool {
		return !seq[i].Timestamp.Before(end)
	})
	if lo >= hi {
		return nil
	}
	return seq[lo:hi]
}

// GPUIDs returns the set of GPU ids seen so far, in order of first
// appearance.
func (s *Store) GPUIDs() []int {
	ids := make([]int, len(s.order))
	copy(ids, s.order)
	return ids
}

// Latest returns the most recent sample for gpuID.
func (s *Store) Latest(gpuID int) (telemetry.Sample, bool) {
	seq := s.samples[gpuID]
	if len(seq) == 0 {
		return telemetry.Sample{}, false
	}
	return seq[len(seq)-1], true
}

// Len returns the number of stored samples for gpuID.
func (s *Store) Len(gpuID int) int {
	return len(s.samples[gpuID])
}

// Bounds returns the earliest and latest timestamps across all GPUs.
// ok is false while the store is empty.
func (s *Store) Bounds() (min, max time.Time, ok bool) {
	for _, seq := range s.samples {
		if len(seq) == 0 {
			continue
		}
		first, last := seq[0].Timestamp, seq[len(seq)-1].Timestamp
		if !ok {
			min, max, ok = first, last, true
			continue
		}
		if first.Before(min) {
			min = first
		}
		if last.After(max) {
			max = last
		}
	}
	return min, max, ok
}
