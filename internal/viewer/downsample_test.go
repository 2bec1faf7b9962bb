package viewer

import (
	"testing"
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

func sparkWindow() Window {
	return Window{Start: testBase, End: testBase.Add(40 * time.Second)}
}

func TestBucketizeEmptyInput(t *testing.T) {
	buckets := Bucketize(nil, sparkWindow(), MetricUtilization, 40, AggregateMean)
	if len(buckets) != 40 {
		t.Fatalf("len = %d, want 40", len(buckets))
	}
	for i, b := range buckets {
		if b.HasData {
			t.Fatalf("bucket %d unexpectedly has data", i)
		}
	}
}

func TestBucketizeMeanCollapsesBucket(t *testing.T) {
	win := sparkWindow()
	// Both land in bucket 0 (first second of a 1s-per-bucket window).
	samples := []telemetry.Sample{
		testSample(testBase.Add(100*time.Millisecond), 0, 20, ""),
		testSample(testBase.Add(900*time.Millisecond), 0, 40, ""),
	}
	buckets := Bucketize(samples, win, MetricUtilization, 40, AggregateMean)
	if !buckets[0].HasData {
		t.Fatal("bucket 0 has no data")
	}
	if buckets[0].Value != 30 {
		t.Fatalf("bucket 0 value = %v, want 30", buckets[0].Value)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].HasData {
			t.Fatalf("bucket %d unexpectedly has data", i)
		}
	}
}

func TestBucketizeLastKeepsNewest(t *testing.T) {
	win := sparkWindow()
	samples := []telemetry.Sample{
		testSample(testBase.Add(100*time.Millisecond), 0, 20, ""),
		testSample(testBase.Add(900*time.Millisecond), 0, 40, ""),
	}
	buckets := Bucketize(samples, win, MetricUtilization, 40, AggregateLast)
	if buckets[0].Value != 40 {
		t.Fatalf("bucket 0 value = %v, want 40", buckets[0].Value)
	}
}

func TestBucketizeIgnoresOutOfWindowSamples(t *testing.T) {
	win := sparkWindow()
	samples := []telemetry.Sample{
		testSample(testBase.Add(-time.Second), 0, 99, ""),
		testSample(win.End, 0, 99, ""), // end is exclusive
		testSample(testBase.Add(20*time.Second+500*time.Millisecond), 0, 50, ""),
	}
	buckets := Bucketize(samples, win, MetricUtilization, 40, AggregateMean)
	for i, b := range buckets {
		if i == 20 {
			if !b.HasData || b.Value != 50 {
				t.Fatalf("bucket 20 = %+v, want value 50", b)
			}
			continue
		}
		if b.HasData {
			t.Fatalf("bucket %d unexpectedly has data", i)
		}
	}
}

func TestBucketizeSparseLeavesGaps(t *testing.T) {
	win := sparkWindow()
	samples := []telemetry.Sample{
		testSample(testBase, 0, 10, ""),
		testSample(testBase.Add(39*time.Second), 0, 90, ""),
	}
	buckets := Bucketize(samples, win, MetricUtilization, 40, AggregateMean)
	if !buckets[0].HasData || !buckets[39].HasData {
		t.Fatalf("edge buckets missing data: %+v %+v", buckets[0], buckets[39])
	}
	for i := 1; i < 39; i++ {
		if buckets[i].HasData {
			t.Fatalf("bucket %d should be a gap", i)
		}
	}
}

func TestBucketizeZeroSpan(t *testing.T) {
	win := Window{Start: testBase, End: testBase}
	buckets := Bucketize([]telemetry.Sample{testSample(testBase, 0, 50, "")}, win, MetricUtilization, 10, AggregateMean)
	if len(buckets) != 10 {
		t.Fatalf("len = %d, want 10", len(buckets))
	}
	for _, b := range buckets {
		if b.HasData {
			t.Fatal("zero-span window produced data")
		}
	}
}

func TestBucketWidth(t *testing.T) {
	win := Window{Start: testBase, End: testBase.Add(2 * time.Minute)}
	if got := bucketWidth(win, 40); got != 3*time.Second {
		t.Fatalf("bucketWidth = %s, want 3s", got)
	}
}

func TestAxisForTracksVisibleExtremes(t *testing.T) {
	win := sparkWindow()
	samples := []telemetry.Sample{
		testSample(testBase.Add(-time.Second), 0, 100, ""), // outside, must not count
		testSample(testBase.Add(time.Second), 0, 25, ""),
		testSample(testBase.Add(2*time.Second), 0, 70, ""),
	}
	axis, ok := AxisFor(samples, win, MetricUtilization)
	if !ok {
		t.Fatal("expected visible data")
	}
	if axis.Min != 25 || axis.Max != 70 {
		t.Fatalf("axis extremes = [%v, %v], want [25, 70]", axis.Min, axis.Max)
	}
	if axis.StartLabel != "12:00:00" || axis.EndLabel != "12:00:40" {
		t.Fatalf("axis labels = %q %q", axis.StartLabel, axis.EndLabel)
	}
}

func TestAxisForEmptyWindow(t *testing.T) {
	axis, ok := AxisFor(nil, sparkWindow(), MetricMemory)
	if ok {
		t.Fatal("expected no data")
	}
	if axis.StartLabel == "" || axis.EndLabel == "" {
		t.Fatal("edge labels must be present even without data")
	}
}
