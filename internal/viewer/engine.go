package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gpuscope/gpuscope/internal/series"
	"github.com/gpuscope/gpuscope/internal/telemetry"
)

// Options tune the engine. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	Limits         Limits        // window span limits; DefaultSpan 300s, MinSpan 5s
	PanFraction    float64       // default 0.25
	ZoomFactor     float64       // default 2
	Buckets        int           // detail buckets per series, default DefaultPlotBuckets
	SparkBuckets   int           // compact sparkline buckets, default DefaultSparkBuckets
	TimelineMaxGap time.Duration // 0 disables gap splitting
	Aggregate      Aggregate     // default AggregateMean
	HistoryCap     int           // per-GPU ring cap, 0 unbounded
}

func (o Options) withDefaults() Options {
	if o.Limits.DefaultSpan <= 0 {
		o.Limits.DefaultSpan = 300 * time.Second
	}
	if o.Limits.MinSpan <= 0 {
		o.Limits.MinSpan = 5 * time.Second
	}
	if o.PanFraction <= 0 {
		o.PanFraction = 0.25
	}
	if o.ZoomFactor <= 1 {
		o.ZoomFactor = 2
	}
	if o.Buckets <= 0 {
		o.Buckets = DefaultPlotBuckets
	}
	if o.SparkBuckets <= 0 {
		o.SparkBuckets = DefaultSparkBuckets
	}
	if o.Aggregate == "" {
		o.Aggregate = AggregateMean
	}
	return o
}

// Engine owns one run's mutable state: the sample store and the window
// model. Append and refresh are short critical sections; downsampling
// and classification run over copied data outside the lock, so one
// producer goroutine and one consumer goroutine can drive it
// concurrently.
type Engine struct {
	mu     sync.Mutex
	store  *series.Store
	window *Model
	opts   Options
	logger *slog.Logger

	dropped uint64
}

// NewLiveEngine creates an engine for a live run starting empty.
func NewLiveEngine(now time.Time, opts Options, logger *slog.Logger) *Engine {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  series.NewStore(opts.HistoryCap),
		window: NewLiveModel(now, opts.Limits),
		opts:   opts,
		logger: logger.With("component", "viewer_engine"),
	}
}

// NewStaticEngine creates an engine over a finished recording. The
// recorded samples must satisfy the same invariants as live ones;
// violating rows are dropped, an empty recording is an error.
func NewStaticEngine(recorded []telemetry.Sample, opts Options, logger *slog.Logger) (*Engine, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "viewer_engine")

	store := series.NewStore(opts.HistoryCap)
	var dropped uint64
	for _, sample := range recorded {
		if err := store.Append(sample); err != nil {
			dropped++
			logger.Warn("dropping recorded sample", "gpu_id", sample.GPUID, "err", err)
		}
	}

	minTS, maxTS, ok := store.Bounds()
	if !ok {
		return nil, fmt.Errorf("recording holds no valid samples")
	}
	if !maxTS.After(minTS) {
		// Single-instant recording still needs a non-empty window.
		maxTS = minTS.Add(time.Second)
	}

	window, err := NewStaticModel(minTS, maxTS, opts.Limits)
	if err != nil {
		return nil, fmt.Errorf("init static window: %w", err)
	}

	return &Engine{
		store:   store,
		window:  window,
		opts:    opts,
		logger:  logger,
		dropped: dropped,
	}, nil
}

// Ingest appends a batch of samples. Out-of-order samples are dropped
// and reported through the joined error; the rest of the batch still
// lands. Never fatal.
func (e *Engine) Ingest(batch []telemetry.Sample) error {
	if len(batch) == 0 {
		return nil
	}

	e.mu.Lock()
	var errs []error
	for _, sample := range batch {
		if err := e.store.Append(sample); err != nil {
			e.dropped++
			errs = append(errs, err)
		}
	}
	e.mu.Unlock()

	if errs != nil {
		err := errors.Join(errs...)
		e.logger.Warn("dropped samples during ingest", "count", len(errs), "err", err)
		return err
	}
	return nil
}

// RegisterGPUs declares GPU ids known ahead of telemetry, typically
// from device discovery. A registered GPU appears in every view-model
// even before its first sample lands.
func (e *Engine) RegisterGPUs(ids []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		e.store.Register(id)
	}
}

// DroppedSamples returns how many samples were rejected so far.
func (e *Engine) DroppedSamples() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Latest returns the most recent sample for gpuID.
func (e *Engine) Latest(gpuID int) (telemetry.Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Latest(gpuID)
}

// GPUIDs returns the GPUs seen so far in first-appearance order.
func (e *Engine) GPUIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.GPUIDs()
}

// Mode returns the window's current mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Mode()
}

// gpuSnapshot is the copied per-GPU state Refresh computes from after
// releasing the lock.
type gpuSnapshot struct {
	gpuID   int
	samples []telemetry.Sample
	latest  telemetry.Sample
	hasData bool
}

// Refresh advances the live window to now, snapshots the visible data
// under the lock, and computes the view-model lock-free. selection
// picks which metrics get bucketed series; nil means the default
// (memory). Never blocks and never fails: partial data yields a
// partial, still-complete view-model.
func (e *Engine) Refresh(now time.Time, selection []Metric) *ViewModel {
	metrics := normalizeSelection(selection)

	e.mu.Lock()
	e.window.FollowLive(now)
	win := e.window.Window()
	mode := e.window.Mode()
	ids := e.store.GPUIDs()

	snapshots := make([]gpuSnapshot, 0, len(ids))
	for _, gpuID := range ids {
		snap := gpuSnapshot{gpuID: gpuID}
		if visible := e.store.Range(gpuID, win.Start, win.End); len(visible) > 0 {
			snap.samples = make([]telemetry.Sample, len(visible))
			copy(snap.samples, visible)
		}
		snap.latest, snap.hasData = e.store.Latest(gpuID)
		snapshots = append(snapshots, snap)
	}
	e.mu.Unlock()

	vm := &ViewModel{
		GeneratedAt: now,
		Window:      win,
		SpanSeconds: win.Span().Seconds(),
		Mode:        mode,
		GPUs:        make([]GPUView, 0, len(snapshots)),
	}
	for _, snap := range snapshots {
		vm.GPUs = append(vm.GPUs, e.buildGPUView(snap, win, metrics))
	}
	return vm
}

func (e *Engine) buildGPUView(snap gpuSnapshot, win Window, metrics []Metric) GPUView {
	view := GPUView{
		GPUID:       snap.gpuID,
		HasData:     snap.hasData,
		Status:      StatusUnknown,
		Bands:       make(map[Metric]Band, len(AllMetrics)),
		SampleCount: len(snap.samples),
	}
	for _, metric := range AllMetrics {
		view.Bands[metric] = BandUnknown
	}
	if !snap.hasData {
		return view
	}

	latest := snap.latest
	view.Latest = &latest
	view.Status = ClassifyStatus(latest.UtilizationPct)
	for _, metric := range AllMetrics {
		view.Bands[metric] = MetricBand(latest, metric)
	}

	view.Series = make([]MetricSeries, 0, len(metrics))
	for _, metric := range metrics {
		axis, hasData := AxisFor(snap.samples, win, metric)
		view.Series = append(view.Series, MetricSeries{
			Metric:  metric,
			Unit:    metric.Unit(),
			Buckets: Bucketize(snap.samples, win, metric, e.opts.Buckets, e.opts.Aggregate),
			Spark:   Bucketize(snap.samples, win, metric, e.opts.SparkBuckets, e.opts.Aggregate),
			Axis:    axis,
			HasData: hasData,
		})
	}

	view.Timeline = BuildTimeline(snap.samples, win, e.opts.TimelineMaxGap)
	return view
}

func normalizeSelection(selection []Metric) []Metric {
	if len(selection) == 0 {
		return DefaultSelection
	}
	metrics := make([]Metric, 0, len(selection))
	for _, metric := range selection {
		if metric.Valid() {
			metrics = append(metrics, metric)
		}
	}
	if len(metrics) == 0 {
		return DefaultSelection
	}
	return metrics
}

// Navigation operations. All are synchronous, idempotent on repeat,
// and reject malformed input without touching window state.

// PanBack shifts the window back by the configured fraction of its
// span, pausing a live window.
func (e *Engine) PanBack() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Pan(PanBack, e.opts.PanFraction)
}

// PanForward shifts the window forward by the configured fraction.
func (e *Engine) PanForward() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Pan(PanForward, e.opts.PanFraction)
}

// ZoomIn narrows the span by the configured factor.
func (e *Engine) ZoomIn() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Zoom(1 / e.opts.ZoomFactor)
}

// ZoomOut widens the span by the configured factor.
func (e *Engine) ZoomOut() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Zoom(e.opts.ZoomFactor)
}

// JumpStart snaps to the beginning of available data.
func (e *Engine) JumpStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, _, ok := e.store.Bounds()
	if !ok {
		return
	}
	e.window.JumpStart(start)
}

// JumpEnd snaps to the end of available data.
func (e *Engine) JumpEnd() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, end, ok := e.store.Bounds()
	if !ok {
		return
	}
	e.window.JumpEnd(end)
}

// Reset returns to the default view, resuming Live in a live context.
func (e *Engine) Reset(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window.Reset(now)
}

// TogglePause swaps Live and Paused.
func (e *Engine) TogglePause(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.TogglePause(now)
}

// Zoom applies an arbitrary zoom factor, for callers that do not use
// the configured step.
func (e *Engine) Zoom(factor float64) error {
	if factor <= 0 || math.IsNaN(factor) {
		return fmt.Errorf("%w: zoom factor %v must be > 0", ErrInvalidNavigation, factor)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Zoom(factor)
}
