package telemetry

import (
	"strings"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2025/06/01 12:30:45.123")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.Local)
	if !ts.Equal(want) {
		t.Fatalf("ts = %s, want %s", ts, want)
	}

	// Whole-second fallback layout.
	if _, err := ParseTimestamp("2025/06/01 12:30:45"); err != nil {
		t.Fatalf("fallback layout: %v", err)
	}

	if _, err := ParseTimestamp("June 1st"); err == nil {
		t.Fatal("expected error for garbage timestamp")
	}
}

func TestParseQueryLine(t *testing.T) {
	line := "2025/06/01 12:30:45.123, 1, 87, 12034, 24576, 71, 284.52"
	sample, err := parseQueryLine(line)
	if err != nil {
		t.Fatalf("parseQueryLine: %v", err)
	}
	if sample.GPUID != 1 {
		t.Fatalf("gpu id = %d", sample.GPUID)
	}
	if sample.UtilizationPct != 87 {
		t.Fatalf("utilization = %v", sample.UtilizationPct)
	}
	if sample.MemoryUsedMB != 12034 || sample.MemoryTotalMB != 24576 {
		t.Fatalf("memory = %v/%v", sample.MemoryUsedMB, sample.MemoryTotalMB)
	}
	if sample.TemperatureC != 71 {
		t.Fatalf("temperature = %v", sample.TemperatureC)
	}
	if sample.PowerDrawW != 284.52 {
		t.Fatalf("power = %v", sample.PowerDrawW)
	}
}

func TestParseQueryLinePowerNA(t *testing.T) {
	line := "2025/06/01 12:30:45.123, 0, 10, 100, 8192, 40, [N/A]"
	sample, err := parseQueryLine(line)
	if err != nil {
		t.Fatalf("parseQueryLine: %v", err)
	}
	if sample.PowerDrawW != 0 {
		t.Fatalf("power = %v, want 0 for [N/A]", sample.PowerDrawW)
	}
}

func TestParseQueryLineClamps(t *testing.T) {
	// Utilization above 100 clamps; memory used above total clamps.
	line := "2025/06/01 12:30:45.123, 0, 120, 9000, 8192, 40, 100"
	sample, err := parseQueryLine(line)
	if err != nil {
		t.Fatalf("parseQueryLine: %v", err)
	}
	if sample.UtilizationPct != 100 {
		t.Fatalf("utilization = %v, want clamped to 100", sample.UtilizationPct)
	}
	if sample.MemoryUsedMB != sample.MemoryTotalMB {
		t.Fatalf("memory used = %v, want clamped to total %v", sample.MemoryUsedMB, sample.MemoryTotalMB)
	}
}

func TestParseQueryLineMalformed(t *testing.T) {
	cases := []string{
		"",
		"2025/06/01 12:30:45.123, 0, 10",
		"not-a-time, 0, 10, 100, 8192, 40, 100",
		"2025/06/01 12:30:45.123, zero, 10, 100, 8192, 40, 100",
		"2025/06/01 12:30:45.123, 0, [N/A], 100, 8192, 40, 100",
	}
	for _, line := range cases {
		if _, err := parseQueryLine(line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}

func TestExtractProcessLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"ray::ImplicitFunc.train", "ImplicitFunc.train"},
		{"ray::RolloutWorker", "RolloutWorker"},
		{"/usr/bin/python3 /home/user/project/train.py --epochs 10", "train.py"},
		{"python3 eval.py", "eval.py"},
		{"/opt/cuda/bin/nvidia-cuda-mps-server", "nvidia-cuda-mps-server"},
		{"bare-binary", "bare-binary"},
	}
	for _, tc := range cases {
		if got := ExtractProcessLabel(tc.in); got != tc.want {
			t.Fatalf("ExtractProcessLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractProcessLabelCapsLength(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := ExtractProcessLabel(long); len(got) != 64 {
		t.Fatalf("label len = %d, want 64", len(got))
	}
}

func TestJoinLabels(t *testing.T) {
	if got := joinLabels([]string{"a.py", "b.py"}); got != "a.py; b.py" {
		t.Fatalf("joinLabels = %q", got)
	}
}

func TestParseInventoryLine(t *testing.T) {
	line := "0, NVIDIA A100-SXM4-40GB, GPU-8f6a, 40960, 00000000:07:00.0, 0x20B010DE"
	device, err := parseInventoryLine(line)
	if err != nil {
		t.Fatalf("parseInventoryLine: %v", err)
	}
	if device.Index != 0 || device.Name != "NVIDIA A100-SXM4-40GB" {
		t.Fatalf("device = %+v", device)
	}
	if device.MemoryTotalMB != 40960 {
		t.Fatalf("memory = %v", device.MemoryTotalMB)
	}
	if device.PCIDeviceID != "0x20B010DE" {
		t.Fatalf("pci device id = %q", device.PCIDeviceID)
	}

	if _, err := parseInventoryLine("0, name only"); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestShouldUseResolvedName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"NVIDIA A100-SXM4-40GB", false},
		{"", true},
		{"unknown", true},
		{"Unknown", true},
		{"[N/A]", true},
		{"0x20B0", true},
	}
	for _, tc := range cases {
		if got := shouldUseResolvedName(tc.name); got != tc.want {
			t.Fatalf("shouldUseResolvedName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSplitSMIDeviceID(t *testing.T) {
	vendor, device := splitSMIDeviceID("0x20B010DE")
	if vendor != "10DE" || device != "20B0" {
		t.Fatalf("split = %q/%q, want 10DE/20B0", vendor, device)
	}

	vendor, device = splitSMIDeviceID("garbage")
	if vendor != "" || device != "" {
		t.Fatalf("split garbage = %q/%q, want empty", vendor, device)
	}
}
