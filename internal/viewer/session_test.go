package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	engine := NewLiveEngine(testBase, testOptions(), nil)
	if err := engine.Ingest([]telemetry.Sample{
		testSample(testBase.Add(-10*time.Second), 0, 50, "train.py"),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	clock := func() time.Time { return testBase }
	return NewSession(engine, clock, nil)
}

func TestSessionRefreshNowPublishes(t *testing.T) {
	session := newTestSession(t)
	vm := session.RefreshNow()
	if vm == nil {
		t.Fatal("RefreshNow returned nil")
	}
	latest, ok := session.Feed().Latest()
	if !ok || latest != vm {
		t.Fatalf("feed latest = %v, %v", latest, ok)
	}
}

func TestSessionNavigate(t *testing.T) {
	session := newTestSession(t)

	if err := session.Navigate(ActionPanLeft); err != nil {
		t.Fatalf("pan_left: %v", err)
	}
	if session.Engine().Mode() != ModePaused {
		t.Fatalf("mode = %s, want %s", session.Engine().Mode(), ModePaused)
	}

	// Each successful command publishes a fresh frame.
	vm, ok := session.Feed().Latest()
	if !ok || vm.Mode != ModePaused {
		t.Fatalf("feed frame = %+v", vm)
	}

	if err := session.Navigate(ActionTogglePause); err != nil {
		t.Fatalf("toggle_pause: %v", err)
	}
	if session.Engine().Mode() != ModeLive {
		t.Fatalf("mode = %s, want %s", session.Engine().Mode(), ModeLive)
	}
}

func TestSessionNavigateUnknownAction(t *testing.T) {
	session := newTestSession(t)
	err := session.Navigate(Action("warp"))
	if !errors.Is(err, ErrInvalidNavigation) {
		t.Fatalf("error = %v, want ErrInvalidNavigation", err)
	}
	if _, ok := session.Feed().Latest(); ok {
		t.Fatal("rejected command still published a frame")
	}
}

func TestSessionSelection(t *testing.T) {
	session := newTestSession(t)

	if got := session.Selection(); len(got) != 1 || got[0] != MetricMemory {
		t.Fatalf("default selection = %v", got)
	}

	if err := session.SetSelection([]Metric{MetricUtilization, MetricTemperature}); err != nil {
		t.Fatalf("SetSelection: %v", err)
	}
	vm, ok := session.Feed().Latest()
	if !ok {
		t.Fatal("selection change did not publish")
	}
	series := vm.GPUs[0].Series
	if len(series) != 2 || series[0].Metric != MetricUtilization || series[1].Metric != MetricTemperature {
		t.Fatalf("series = %+v", series)
	}

	if err := session.SetSelection([]Metric{Metric("bogus")}); err == nil {
		t.Fatal("expected error for unknown metric")
	}

	// Empty selection restores the default.
	if err := session.SetSelection(nil); err != nil {
		t.Fatalf("SetSelection(nil): %v", err)
	}
	if got := session.Selection(); len(got) != 1 || got[0] != MetricMemory {
		t.Fatalf("selection after reset = %v", got)
	}
}

func TestSessionRunPublishesAndStops(t *testing.T) {
	session := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx, 10*time.Millisecond)
	}()

	ch, unsub := session.Feed().Subscribe()
	defer unsub()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no frame published within a second")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSessionRunRejectsBadInterval(t *testing.T) {
	session := newTestSession(t)
	if err := session.Run(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
