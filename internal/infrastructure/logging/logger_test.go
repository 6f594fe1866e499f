package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/indihub/internal/infrastructure/config"
)

func TestNew_Outputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		logger := New(config.LoggingConfig{Level: "info", Format: "json", Output: output}, "1.0.0")
		if logger == nil {
			t.Fatalf("New() with output %q returned nil", output)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestVerbosity(t *testing.T) {
	tests := []struct {
		level string
		count int
		want  string
	}{
		{"info", 0, "info"},
		{"warn", 0, "warn"},
		{"info", 1, "debug"},
		{"error", 2, "trace"},
		{"error", 3, "trace"},
	}
	for _, tt := range tests {
		if got := Verbosity(tt.level, tt.count); got != tt.want {
			t.Errorf("Verbosity(%q, %d) = %q, want %q", tt.level, tt.count, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3")

	logger.Info("driver scheduled for restart", "driver", "indi_simulator_ccd", "restarts", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}

	want := map[string]any{
		"msg":      "driver scheduled for restart",
		"service":  "indihub",
		"version":  "1.2.3",
		"driver":   "indi_simulator_ccd",
		"restarts": float64(2),
		"level":    "INFO",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %v", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "dev")

	logger.Debug("dropping stream BLOB")
	logger.Info("client connected")
	logger.Warn("driver transport failed")

	out := buf.String()
	if strings.Contains(out, "dropping stream BLOB") || strings.Contains(out, "client connected") {
		t.Errorf("records below warn were written: %s", out)
	}
	if !strings.Contains(out, "driver transport failed") {
		t.Errorf("warn record missing: %s", out)
	}
	if !strings.Contains(out, "service=indihub") {
		t.Errorf("text output missing service field: %s", out)
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "dev")

	logger.With("component", "broker").Info("listening")

	if !strings.Contains(buf.String(), `"component":"broker"`) {
		t.Errorf("output missing component attribute: %s", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestNewWithWriter_TraceAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "trace", Format: "json"}, "dev")

	logger.Debug("client element", "tag", "getProperties")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level = %v, want DEBUG", entry["level"])
	}
	if _, ok := entry["source"]; !ok {
		t.Errorf("trace output missing source: %s", buf.String())
	}
}
