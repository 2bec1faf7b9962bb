package series

import (
	"errors"
	"testing"
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleAt(ts time.Time, gpuID int, util float64) telemetry.Sample {
	return telemetry.Sample{
		Timestamp:      ts,
		GPUID:          gpuID,
		UtilizationPct: util,
		MemoryUsedMB:   1000,
		MemoryTotalMB:  8000,
		TemperatureC:   50,
		PowerDrawW:     100,
	}
}

func TestAppendAndRange(t *testing.T) {
	store := NewStore(0)
	for i := 0; i < 10; i++ {
		if err := store.Append(sampleAt(base.Add(time.Duration(i)*time.Second), 0, float64(i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	// [2s, 5s) picks seconds 2, 3, 4.
	got := store.Range(0, base.Add(2*time.Second), base.Add(5*time.Second))
	if len(got) != 3 {
		t.Fatalf("range len = %d, want 3", len(got))
	}
	if got[0].UtilizationPct != 2 || got[2].UtilizationPct != 4 {
		t.Fatalf("range = %+v", got)
	}
}

func TestRangeAgainstLinearScan(t *testing.T) {
	store := NewStore(0)
	var all []telemetry.Sample
	ts := base
	for i := 0; i < 50; i++ {
		// Uneven spacing, including duplicates.
		if i%3 != 0 {
			ts = ts.Add(time.Duration(i%7) * 500 * time.Millisecond)
		}
		s := sampleAt(ts, 0, float64(i))
		if err := store.Append(s); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		all = append(all, s)
	}

	start := base.Add(5 * time.Second)
	end := base.Add(40 * time.Second)
	got := store.Range(0, start, end)

	var want []telemetry.Sample
	for _, s := range all {
		if !s.Timestamp.Before(start) && s.Timestamp.Before(end) {
			want = append(want, s)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("range len = %d, linear scan %d", len(got), len(want))
	}
	for i := range got {
		if got[i].UtilizationPct != want[i].UtilizationPct {
			t.Fatalf("range[%d] = %v, want %v", i, got[i].UtilizationPct, want[i].UtilizationPct)
		}
	}
}

func TestRangeEdges(t *testing.T) {
	store := NewStore(0)
	if err := store.Append(sampleAt(base, 0, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Start is inclusive.
	if got := store.Range(0, base, base.Add(time.Second)); len(got) != 1 {
		t.Fatalf("inclusive start missed the sample: %d", len(got))
	}
	// End is exclusive.
	if got := store.Range(0, base.Add(-time.Second), base); len(got) != 0 {
		t.Fatalf("exclusive end returned %d samples", len(got))
	}
	// Inverted window.
	if got := store.Range(0, base.Add(time.Second), base); got != nil {
		t.Fatalf("inverted window returned %d samples", len(got))
	}
	// Unknown GPU.
	if got := store.Range(7, base, base.Add(time.Second)); got != nil {
		t.Fatalf("unknown gpu returned %d samples", len(got))
	}
}

func TestAppendOutOfOrderLeavesStoreUnchanged(t *testing.T) {
	store := NewStore(0)
	if err := store.Append(sampleAt(base.Add(10*time.Second), 0, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := store.Append(sampleAt(base, 0, 2))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("error = %v, want ErrOutOfOrder", err)
	}
	if store.Len(0) != 1 {
		t.Fatalf("len = %d, want 1", store.Len(0))
	}
	latest, _ := store.Latest(0)
	if latest.UtilizationPct != 1 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestAppendEqualTimestampAllowed(t *testing.T) {
	store := NewStore(0)
	if err := store.Append(sampleAt(base, 0, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(sampleAt(base, 0, 2)); err != nil {
		t.Fatalf("Append equal timestamp: %v", err)
	}
	if store.Len(0) != 2 {
		t.Fatalf("len = %d, want 2", store.Len(0))
	}
}

func TestAppendPerGPUOrdering(t *testing.T) {
	store := NewStore(0)
	// GPU 1 lagging behind GPU 0 is fine; ordering is per GPU.
	if err := store.Append(sampleAt(base.Add(10*time.Second), 0, 1)); err != nil {
		t.Fatalf("Append gpu0: %v", err)
	}
	if err := store.Append(sampleAt(base, 1, 2)); err != nil {
		t.Fatalf("Append gpu1: %v", err)
	}
}

func TestAppendRejectsInvalidSample(t *testing.T) {
	store := NewStore(0)
	bad := sampleAt(base, 0, 150) // utilization above 100
	if err := store.Append(bad); err == nil {
		t.Fatal("expected validation error")
	}
	if store.Len(0) != 0 {
		t.Fatalf("invalid sample was stored")
	}
}

func TestRingCapEvictsOldest(t *testing.T) {
	store := NewStore(3)
	for i := 0; i < 5; i++ {
		if err := store.Append(sampleAt(base.Add(time.Duration(i)*time.Second), 0, float64(i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if store.Len(0) != 3 {
		t.Fatalf("len = %d, want 3", store.Len(0))
	}
	got := store.Range(0, base, base.Add(time.Minute))
	if got[0].UtilizationPct != 2 {
		t.Fatalf("oldest surviving sample = %v, want 2", got[0].UtilizationPct)
	}
}

func TestGPUIDsFirstAppearanceOrder(t *testing.T) {
	store := NewStore(0)
	for _, id := range []int{3, 0, 2, 0, 3} {
		if err := store.Append(sampleAt(base.Add(time.Duration(store.Len(id))*time.Second), id, 1)); err != nil {
			t.Fatalf("Append gpu%d: %v", id, err)
		}
	}
	ids := store.GPUIDs()
	want := []int{3, 0, 2}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestRegisterBeforeSamples(t *testing.T) {
	store := NewStore(0)
	store.Register(1)
	store.Register(0)
	store.Register(1) // repeat is a no-op

	ids := store.GPUIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 0 {
		t.Fatalf("ids = %v, want [1 0]", ids)
	}
	if _, ok := store.Latest(1); ok {
		t.Fatal("registered GPU reported a sample")
	}
	if _, _, ok := store.Bounds(); ok {
		t.Fatal("sample-less store reported bounds")
	}

	// First real sample must not re-enter the order.
	if err := store.Append(sampleAt(base, 0, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	ids = store.GPUIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 0 {
		t.Fatalf("ids after append = %v, want [1 0]", ids)
	}
	if latest, ok := store.Latest(0); !ok || latest.UtilizationPct != 5 {
		t.Fatalf("latest = %+v, ok = %v", latest, ok)
	}
}

func TestBounds(t *testing.T) {
	store := NewStore(0)
	if _, _, ok := store.Bounds(); ok {
		t.Fatal("empty store reported bounds")
	}

	if err := store.Append(sampleAt(base.Add(time.Minute), 0, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(sampleAt(base, 1, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(sampleAt(base.Add(2*time.Minute), 1, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	min, max, ok := store.Bounds()
	if !ok {
		t.Fatal("bounds not reported")
	}
	if !min.Equal(base) || !max.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("bounds = [%s, %s]", min, max)
	}
}
