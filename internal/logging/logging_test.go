package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.WarnLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"WARNING", zapcore.WarnLevel, false},
		{" debug ", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("hidden entry")
	logger.Warn("visible entry", zap.String("key", "value"))
	logger.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden entry") {
		t.Errorf("info entry written at warn level:\n%s", out)
	}
	if !strings.Contains(out, "visible entry") || !strings.Contains(out, "value") {
		t.Errorf("warn entry missing:\n%s", out)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragdesk.log")
	logger, err := New(Config{Level: "info", File: path}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("request completed", zap.Int("status", 200))
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	if entry["msg"] != "request completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v", entry["status"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Errorf("missing timestamp key: %v", entry)
	}
}
