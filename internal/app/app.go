// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gpuscope/gpuscope/internal/config"
	"github.com/gpuscope/gpuscope/internal/httpserver"
	"github.com/gpuscope/gpuscope/internal/recording"
	"github.com/gpuscope/gpuscope/internal/telemetry"
	"github.com/gpuscope/gpuscope/internal/viewer"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle for the configured mode.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	switch cfg.Mode {
	case config.ModeLive:
		return runLive(ctx, baseLogger, cfg)
	case config.ModeStatic:
		return runStatic(ctx, baseLogger, cfg)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func runLive(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	devices, err := telemetry.Discover(ctx, cfg.NvidiaSMIPath, baseLogger.With("component", "gpu_discovery"))
	if err != nil {
		return fmt.Errorf("discover gpus: %w", err)
	}
	appLogger.Info("discovered GPUs", "count", len(devices))

	source := telemetry.NewSMISource(cfg.NvidiaSMIPath, baseLogger.With("component", "smi_source"))
	manager, err := telemetry.NewManager(cfg.PollInterval, source, baseLogger.With("component", "telemetry"))
	if err != nil {
		return fmt.Errorf("init telemetry manager: %w", err)
	}

	engine := viewer.NewLiveEngine(time.Now(), viewerOptions(cfg.View), baseLogger)
	engine.RegisterGPUs(deviceIndexes(devices))
	session := viewer.NewSession(engine, time.Now, baseLogger)

	var (
		recorder *recording.Recorder
		runID    string
	)
	if cfg.RecordEnable {
		if err := os.MkdirAll(cfg.RecordingDir, 0o755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
		var path string
		path, runID = recording.NewPath(cfg.RecordingDir, time.Now(), cfg.CompressRecords)
		recorder, err = recording.NewRecorder(path, baseLogger.With("component", "recorder"))
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		appLogger.Info("recording run", "path", path, "run_id", runID)
	}

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), devices, session, runID)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(manager.Run(gctx))
	})

	g.Go(func() error {
		batches, unsubscribe := manager.Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-gctx.Done():
				return nil
			case batch, ok := <-batches:
				if !ok {
					return nil
				}
				// Drop errors are already counted and logged by the engine.
				_ = engine.Ingest(batch)
				if recorder != nil {
					if err := recorder.Append(batch); err != nil {
						appLogger.Warn("recording append failed", "err", err)
					}
				}
			}
		}
	})

	g.Go(func() error {
		return ignoreCanceled(session.Run(gctx, cfg.RefreshInterval))
	})

	registerServer(g, gctx, srv, appLogger)

	err = g.Wait()

	if recorder != nil {
		if closeErr := recorder.Close(); closeErr != nil {
			appLogger.Warn("recorder close", "err", closeErr)
		}
	}
	if err != nil {
		return err
	}
	appLogger.Info("shutdown complete")
	return nil
}

func runStatic(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	path := cfg.Recording
	if path == "" {
		info, ok, err := recording.Latest(cfg.RecordingDir)
		if err != nil {
			return fmt.Errorf("locate latest recording: %w", err)
		}
		if !ok {
			return fmt.Errorf("no recordings found in %s", cfg.RecordingDir)
		}
		path = info.Path
	}

	samples, err := recording.Load(path, baseLogger.With("component", "recording_loader"))
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	appLogger.Info("loaded recording", "path", path, "samples", len(samples))

	engine, err := viewer.NewStaticEngine(samples, viewerOptions(cfg.View), baseLogger)
	if err != nil {
		return fmt.Errorf("init static engine: %w", err)
	}
	session := viewer.NewSession(engine, time.Now, baseLogger)

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), recordedDevices(engine), session, filepath.Base(path))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(session.Run(gctx, cfg.RefreshInterval))
	})

	registerServer(g, gctx, srv, appLogger)

	if err := g.Wait(); err != nil {
		return err
	}
	appLogger.Info("shutdown complete")
	return nil
}

// registerServer runs the HTTP listener in the group and shuts it down
// when the group context is canceled.
func registerServer(g *errgroup.Group, gctx context.Context, srv *httpserver.Server, logger *slog.Logger) {
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated", "reason", gctx.Err())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
}

// recordedDevices reconstructs a device inventory from recorded
// samples. Recordings carry no inventory rows, so names are synthetic.
func recordedDevices(engine *viewer.Engine) []telemetry.Device {
	ids := engine.GPUIDs()
	devices := make([]telemetry.Device, 0, len(ids))
	for _, id := range ids {
		device := telemetry.Device{
			Index: id,
			Name:  fmt.Sprintf("GPU %d (recorded)", id),
		}
		if sample, ok := engine.Latest(id); ok {
			device.MemoryTotalMB = sample.MemoryTotalMB
		}
		devices = append(devices, device)
	}
	return devices
}

func deviceIndexes(devices []telemetry.Device) []int {
	ids := make([]int, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.Index)
	}
	return ids
}

func viewerOptions(view config.ViewConfig) viewer.Options {
	return viewer.Options{
		Limits: viewer.Limits{
			MinSpan:     view.MinSpan,
			MaxSpan:     view.MaxSpan,
			DefaultSpan: view.DefaultSpan,
		},
		PanFraction:    view.PanFraction,
		ZoomFactor:     view.ZoomFactor,
		Buckets:        view.PlotBuckets,
		SparkBuckets:   view.SparkBuckets,
		TimelineMaxGap: view.TimelineMaxGap,
		HistoryCap:     view.HistoryCap,
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
