package api

import (
	"github.com/gpuscope/gpuscope/internal/telemetry"
	"github.com/gpuscope/gpuscope/internal/viewer"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type       string             `json:"type"`
	Mode       string             `json:"mode"`
	RunID      string             `json:"run_id,omitempty"`
	IntervalMS int                `json:"interval_ms"`
	Devices    []telemetry.Device `json:"devices"`
	Metrics    []viewer.Metric    `json:"metrics"`
	Selection  []viewer.Metric    `json:"selection"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(mode string, runID string, intervalMS int, devices []telemetry.Device, selection []viewer.Metric) HelloMessage {
	return HelloMessage{
		Type:       "hello",
		Mode:       mode,
		RunID:      runID,
		IntervalMS: intervalMS,
		Devices:    devices,
		Metrics:    viewer.AllMetrics,
		Selection:  selection,
	}
}

// ViewMessage wraps a view-model frame for transport.
type ViewMessage struct {
	Type string `json:"type"`
	*viewer.ViewModel
}

// NewViewMessage constructs a view payload.
func NewViewMessage(vm *viewer.ViewModel) ViewMessage {
	return ViewMessage{
		Type:      "view",
		ViewModel: vm,
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// NavMessage carries one operator command (pan, zoom, jump, reset,
// toggle-pause).
type NavMessage struct {
	Type   string        `json:"type"`
	Action viewer.Action `json:"action"`
}

// SelectMessage replaces the session's metric selection.
type SelectMessage struct {
	Type    string          `json:"type"`
	Metrics []viewer.Metric `json:"metrics"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
