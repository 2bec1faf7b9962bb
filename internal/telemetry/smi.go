package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

const (
	sampleQuery  = "timestamp,index,utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw"
	uuidQuery    = "index,uuid"
	computeQuery = "pid,process_name,gpu_uuid"
)

// Source produces one batch of already-parsed samples per poll tick.
// Absence of a GPU in a batch is not an error.
type Source interface {
	Poll(ctx context.Context) ([]Sample, error)
}

// SMISource polls nvidia-smi for per-GPU telemetry and process
// attribution. Non-fatal query failures degrade to samples without
// process labels.
type SMISource struct {
	binary    string
	logger    *slog.Logger
	uuidIndex map[string]int
}

// NewSMISource constructs a source that shells out to the given
// nvidia-smi binary.
func NewSMISource(binary string, logger *slog.Logger) *SMISource {
	if binary == "" {
		binary = "nvidia-smi"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMISource{
		binary: binary,
		logger: logger.With("component", "smi_source"),
	}
}

// Poll queries one batch of samples, one per GPU the driver reports.
// Per-GPU timestamps are monotone because nvidia-smi stamps the whole
// batch at query time.
func (s *SMISource) Poll(ctx context.Context) ([]Sample, error) {
	output, err := s.run(ctx, "--query-gpu="+sampleQuery, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("query gpu telemetry: %w", err)
	}

	labels := s.processLabels(ctx)

	var samples []Sample
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sample, err := parseQueryLine(line)
		if err != nil {
			s.logger.Debug("skipping malformed telemetry row", "line", line, "err", err)
			continue
		}
		sample.ProcessLabel = labels[sample.GPUID]
		samples = append(samples, sample)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].GPUID < samples[j].GPUID
	})
	return samples, nil
}

// processLabels maps gpu index to a combined label of the compute
// processes currently running there. Best effort: any failure yields an
// empty map and idle labels.
func (s *SMISource) processLabels(ctx context.Context) map[int]string {
	if err := s.ensureUUIDIndex(ctx); err != nil {
		s.logger.Debug("uuid index unavailable", "err", err)
		return nil
	}

	output, err := s.run(ctx, "--query-compute-apps="+computeQuery, "--format=csv,noheader,nounits")
	if err != nil {
		s.logger.Debug("compute apps query failed", "err", err)
		return nil
	}

	perGPU := make(map[int][]string)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := splitCSVFields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		gpuID, ok := s.uuidIndex[fields[2]]
		if !ok {
			continue
		}
		if label := ExtractProcessLabel(fields[1]); label != "" {
			perGPU[gpuID] = append(perGPU[gpuID], label)
		}
	}

	labels := make(map[int]string, len(perGPU))
	for gpuID, parts := range perGPU {
		labels[gpuID] = joinLabels(parts)
	}
	return labels
}

func (s *SMISource) ensureUUIDIndex(ctx context.Context) error {
	if s.uuidIndex != nil {
		return nil
	}

	output, err := s.run(ctx, "--query-gpu="+uuidQuery, "--format=csv,noheader")
	if err != nil {
		return fmt.Errorf("query gpu uuids: %w", err)
	}

	index := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := splitCSVFields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		gpuID, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		index[fields[1]] = gpuID
	}
	s.uuidIndex = index
	return nil
}

func (s *SMISource) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %s: %w", s.binary, msg, err)
		}
		return nil, fmt.Errorf("%s: %w", s.binary, err)
	}
	return stdout.Bytes(), nil
}
