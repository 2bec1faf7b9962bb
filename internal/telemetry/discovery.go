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

const inventoryQuery = "index,name,uuid,memory.total,pci.bus_id,pci.device_id"

// Device describes one GPU reported by the driver at startup.
type Device struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	UUID          string  `json:"uuid"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	PCIBusID      string  `json:"pci_bus_id"`
	PCIDeviceID   string  `json:"pci_device_id"`
}

// Discover enumerates the GPUs nvidia-smi reports. Placeholder product
// names are resolved against the PCI database where possible.
func Discover(ctx context.Context, binary string, logger *slog.Logger) ([]Device, error) {
	if binary == "" {
		binary = "nvidia-smi"
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, binary, "--query-gpu="+inventoryQuery, "--format=csv,noheader,nounits")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("gpu inventory: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("gpu inventory: %w", err)
	}

	var devices []Device
	scanner := bufio.NewScanner(bytes.NewReader(stdout.Bytes()))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		device, err := parseInventoryLine(line)
		if err != nil {
			logger.Warn("skipping malformed inventory row", "line", line, "err", err)
			continue
		}
		if shouldUseResolvedName(device.Name) {
			vendorID, deviceID := splitSMIDeviceID(device.PCIDeviceID)
			if resolved := lookupGPUName(vendorID, deviceID); resolved != "" {
				device.Name = resolved
			}
		}
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

func parseInventoryLine(line string) (Device, error) {
	fields := splitCSVFields(line)
	if len(fields) < 6 {
		return Device{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return Device{}, fmt.Errorf("parse index: %w", err)
	}
	memTotal, err := parseMetricValue(fields[3])
	if err != nil {
		return Device{}, fmt.Errorf("parse memory total: %w", err)
	}

	return Device{
		Index:         index,
		Name:          fields[1],
		UUID:          fields[2],
		MemoryTotalMB: memTotal,
		PCIBusID:      fields[4],
		PCIDeviceID:   fields[5],
	}, nil
}

func shouldUseResolvedName(current string) bool {
	lower := strings.ToLower(strings.TrimSpace(current))
	if lower == "" || lower == "unknown" || lower == "[n/a]" {
		return true
	}
	return strings.HasPrefix(lower, "0x")
}
