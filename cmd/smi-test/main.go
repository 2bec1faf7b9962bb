package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gpuscope/gpuscope/internal/telemetry"
)

type options struct {
	binary     string
	sample     bool
	gpuFilter  int
	jsonOutput bool
	timeout    time.Duration
}

func parseFlags() options {
	defaultBinary := envOrDefault("APP_NVIDIA_SMI_PATH", "nvidia-smi")

	var opts options
	flag.StringVar(&opts.binary, "smi", defaultBinary, "Path to the nvidia-smi binary")
	flag.BoolVar(&opts.sample, "sample", false, "Collect one telemetry sample per GPU")
	flag.IntVar(&opts.gpuFilter, "gpu", -1, "Limit sampling to a specific GPU index")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit output as JSON")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-command timeout")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	devices, err := telemetry.Discover(ctx, opts.binary, logger.With("component", "gpu_discovery"))
	if err != nil {
		logger.Error("gpu discovery failed", "err", err)
		os.Exit(1)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(devices); err != nil {
			logger.Error("encode discovery output", "err", err)
			os.Exit(1)
		}
	} else {
		if len(devices) == 0 {
			fmt.Println("No GPUs detected")
		} else {
			fmt.Println("Discovered GPUs:")
		}
		for _, device := range devices {
			fmt.Printf("- %d: %s (UUID: %s, Memory: %.0f MB, PCI: %s)\n",
				device.Index, device.Name, device.UUID, device.MemoryTotalMB, device.PCIBusID)
		}
	}

	if !opts.sample {
		return
	}

	source := telemetry.NewSMISource(opts.binary, logger.With("component", "smi_source"))
	samples, err := source.Poll(ctx)
	if err != nil {
		logger.Error("poll failed", "err", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Samples collected at %s\n", time.Now().UTC().Format(time.RFC3339))

	for _, sample := range samples {
		if opts.gpuFilter >= 0 && sample.GPUID != opts.gpuFilter {
			continue
		}
		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			logger.Error("encode sample", "gpu_id", sample.GPUID, "err", err)
			continue
		}
		fmt.Printf("GPU %d sample:\n%s\n\n", sample.GPUID, string(data))
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
