package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	if got := LevelFromEnv(); got != zapcore.DebugLevel {
		t.Errorf("LevelFromEnv() = %s, want debug", got)
	}

	t.Setenv(EnvLevel, "nonsense")
	if got := LevelFromEnv(); got != zapcore.InfoLevel {
		t.Errorf("LevelFromEnv() = %s, want info for invalid value", got)
	}
}

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(RunContext{RunID: "run-1", Host: "wpt.example"}, zapcore.InfoLevel, &buf)

	logger.Info("tests launched", map[string]any{"count": 2})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
	if entry["host"] != "wpt.example" {
		t.Errorf("host = %v", entry["host"])
	}
	if entry["message"] != "tests launched" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(RunContext{}, zapcore.WarnLevel, &buf)

	logger.Info("hidden", nil)
	logger.Sugar().Debugf("hidden %d", 1)
	logger.Warn("shown", nil)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("entries below warn should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestNewNop(_ *testing.T) {
	logger := NewNop()
	logger.Error("discarded", map[string]any{"k": "v"})
	logger.Sugar().With("k", "v").Infof("discarded %s", "too")
}
