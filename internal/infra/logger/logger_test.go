package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roundtable/internal/infra/config"
)

func TestJSONHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "info", Format: "JSON"}))

	log.Info("round started", "round", 1)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v, output: %s", err, buf.String())
	}
	if entry["msg"] != "round started" {
		t.Errorf("msg = %q, want %q", entry["msg"], "round started")
	}
	if entry["round"] != float64(1) {
		t.Errorf("round = %v, want 1", entry["round"])
	}
}

func TestTextHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "warn", Format: "text"}))

	log.Info("should be filtered")
	log.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message should appear at warn level")
	}
}

func TestRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "info", Format: "json"}))

	log.Info("participant configured",
		"participant", "claude",
		"api_key", "sk-ant-123",
		"Authorization", "Bearer abc",
		"token_budget", 100,
		"secret", "",
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["api_key"] != redacted || entry["Authorization"] != redacted {
		t.Errorf("secrets leaked: %s", buf.String())
	}
	if entry["participant"] != "claude" {
		t.Errorf("participant = %v", entry["participant"])
	}
	if entry["token_budget"] != float64(100) {
		t.Errorf("numeric attrs should pass through, got %v", entry["token_budget"])
	}
	if entry["secret"] != "" {
		t.Errorf("empty values stay empty, got %v", entry["secret"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{" Debug ", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputTargets(t *testing.T) {
	tests := []struct {
		output string
		want   io.Writer
	}{
		{"stdout", os.Stdout},
		{"stderr", os.Stderr},
		{"", os.Stderr},
		{"discard", io.Discard},
	}
	for _, tt := range tests {
		w, closer, err := openOutput(tt.output)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", tt.output, err)
		}
		if w != tt.want {
			t.Errorf("openOutput(%q) returned unexpected writer", tt.output)
		}
		closer()
	}
}

func TestOpenOutputInvalidPath(t *testing.T) {
	if _, _, err := openOutput("/nonexistent/dir/log.txt"); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("file output test", "key", "value")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "file output test") {
		t.Error("log file should contain the logged message")
	}
	if !strings.Contains(string(data), "service=roundtable") {
		t.Error("log line should carry the service attribute")
	}
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: "/nonexistent/dir/app.log"})
	if err == nil {
		t.Error("expected error for invalid output path")
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	if log.Enabled(nil, slog.LevelError) {
		t.Error("discard logger should not enable error level")
	}
}
