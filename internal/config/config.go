package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects the data source for a run.
type Mode string

const (
	// ModeLive polls nvidia-smi and follows the live edge.
	ModeLive Mode = "live"
	// ModeStatic views a finished recording.
	ModeStatic Mode = "static"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	Mode             Mode
	Recording        string // static mode input; empty means latest in RecordingDir
	RecordEnable     bool
	RecordingDir     string
	CompressRecords  bool
	NvidiaSMIPath    string
	PollInterval     time.Duration
	RefreshInterval  time.Duration
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	View             ViewConfig
	WS               WebsocketConfig
}

// ViewConfig captures tunables for the viewer engine.
type ViewConfig struct {
	DefaultSpan    time.Duration
	MinSpan        time.Duration
	MaxSpan        time.Duration
	PanFraction    float64
	ZoomFactor     float64
	SparkBuckets   int
	PlotBuckets    int
	TimelineMaxGap time.Duration
	HistoryCap     int
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       ":8080",
		Mode:             ModeLive,
		RecordEnable:     true,
		RecordingDir:     "logs",
		CompressRecords:  false,
		NvidiaSMIPath:    "nvidia-smi",
		PollInterval:     1 * time.Second,
		RefreshInterval:  1 * time.Second,
		AllowedOrigins:   []string{"*"},
		EnablePrometheus: false,
		EnablePprof:      false,
		LogLevel:         slog.LevelInfo,
		View: ViewConfig{
			DefaultSpan:    300 * time.Second,
			MinSpan:        5 * time.Second,
			MaxSpan:        24 * time.Hour,
			PanFraction:    0.25,
			ZoomFactor:     2,
			SparkBuckets:   40,
			PlotBuckets:    120,
			TimelineMaxGap: 3 * time.Second,
			HistoryCap:     0,
		},
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
	}

	if value := strings.TrimSpace(os.Getenv("APP_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_MODE")); value != "" {
		switch Mode(strings.ToLower(value)) {
		case ModeLive:
			cfg.Mode = ModeLive
		case ModeStatic:
			cfg.Mode = ModeStatic
		default:
			return Config{}, fmt.Errorf("parse APP_MODE: unsupported mode %q", value)
		}
	}

	if value := strings.TrimSpace(os.Getenv("APP_RECORDING")); value != "" {
		cfg.Recording = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_RECORD_ENABLE")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_RECORD_ENABLE: %w", err)
		}
		cfg.RecordEnable = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_RECORDING_DIR")); value != "" {
		cfg.RecordingDir = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_COMPRESS_RECORDINGS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_COMPRESS_RECORDINGS: %w", err)
		}
		cfg.CompressRecords = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_NVIDIA_SMI_PATH")); value != "" {
		cfg.NvidiaSMIPath = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_POLL_INTERVAL")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_POLL_INTERVAL: %w", err)
		}
		if duration <= 0 {
			return Config{}, fmt.Errorf("APP_POLL_INTERVAL must be > 0")
		}
		cfg.PollInterval = duration
	}

	if value := strings.TrimSpace(os.Getenv("APP_REFRESH_INTERVAL")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_REFRESH_INTERVAL: %w", err)
		}
		if duration <= 0 {
			return Config{}, fmt.Errorf("APP_REFRESH_INTERVAL must be > 0")
		}
		cfg.RefreshInterval = duration
	}

	if value := strings.TrimSpace(os.Getenv("APP_ALLOWED_ORIGINS")); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PROMETHEUS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PROMETHEUS: %w", err)
		}
		cfg.EnablePrometheus = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PPROF")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PPROF: %w", err)
		}
		cfg.EnablePprof = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("APP_DEFAULT_SPAN")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_DEFAULT_SPAN: %w", err)
		}
		if duration <= 0 {
			return Config{}, fmt.Errorf("APP_DEFAULT_SPAN must be > 0")
		}
		cfg.View.DefaultSpan = duration
	}

	if value := strings.TrimSpace(os.Getenv("APP_MIN_SPAN")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_MIN_SPAN: %w", err)
		}
		if duration <= 0 {
			return Config{}, fmt.Errorf("APP_MIN_SPAN must be > 0")
		}
		cfg.View.MinSpan = duration
	}

	if value := strings.TrimSpace(os.Getenv("APP_MAX_SPAN")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_MAX_SPAN: %w", err)
		}
		if duration <= 0 {
			return Config{}, fmt.Errorf("APP_MAX_SPAN must be > 0")
		}
		cfg.View.MaxSpan = duration
	}

	if cfg.View.MinSpan > cfg.View.MaxSpan {
		return Config{}, fmt.Errorf("APP_MIN_SPAN must not exceed APP_MAX_SPAN")
	}

	if value := strings.TrimSpace(os.Getenv("APP_PAN_FRACTION")); value != "" {
		fraction, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_PAN_FRACTION: %w", err)
		}
		if fraction <= 0 || fraction > 1 {
			return Config{}, fmt.Errorf("APP_PAN_FRACTION must be in (0,1]")
		}
		cfg.View.PanFraction = fraction
	}

	if value := strings.TrimSpace(os.Getenv("APP_ZOOM_FACTOR")); value != "" {
		factor, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ZOOM_FACTOR: %w", err)
		}
		if factor <= 1 {
			return Config{}, fmt.Errorf("APP_ZOOM_FACTOR must be > 1")
		}
		cfg.View.ZoomFactor = factor
	}

	if value := strings.TrimSpace(os.Getenv("APP_SPARK_BUCKETS")); value != "" {
		buckets, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_SPARK_BUCKETS: %w", err)
		}
		if buckets <= 0 {
			return Config{}, fmt.Errorf("APP_SPARK_BUCKETS must be > 0")
		}
		cfg.View.SparkBuckets = buckets
	}

	if value := strings.TrimSpace(os.Getenv("APP_PLOT_BUCKETS")); value != "" {
		buckets, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_PLOT_BUCKETS: %w", err)
		}
		if buckets <= 0 {
			return Config{}, fmt.Errorf("APP_PLOT_BUCKETS must be > 0")
		}
		cfg.View.PlotBuckets = buckets
	}

	if value := strings.TrimSpace(os.Getenv("APP_TIMELINE_MAX_GAP")); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_TIMELINE_MAX_GAP: %w", err)
		}
		if duration < 0 {
			return Config{}, fmt.Errorf("APP_TIMELINE_MAX_GAP must be >= 0")
		}
		cfg.View.TimelineMaxGap = duration
	}

	if value := strings.TrimSpace(os.Getenv("APP_HISTORY_CAP")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_HISTORY_CAP: %w", err)
		}
		if limit < 0 {
			return Config{}, fmt.Errorf("APP_HISTORY_CAP must be >= 0")
		}
		cfg.View.HistoryCap = limit
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_MAX_CLIENTS")); value != "" {
		maxClients, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_MAX_CLIENTS: %w", err)
		}
		if maxClients <= 0 {
			return Config{}, fmt.Errorf("APP_WS_MAX_CLIENTS must be > 0")
		}
		cfg.WS.MaxClients = maxClients
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_WRITE_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_WRITE_TIMEOUT: %w", err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("APP_WS_WRITE_TIMEOUT must be > 0")
		}
		cfg.WS.WriteTimeout = timeout
	}

	if value := strings.TrimSpace(os.Getenv("APP_WS_READ_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_WS_READ_TIMEOUT: %w", err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("APP_WS_READ_TIMEOUT must be > 0")
		}
		cfg.WS.ReadTimeout = timeout
	}

	return cfg, nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
