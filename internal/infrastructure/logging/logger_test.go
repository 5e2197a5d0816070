package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
)

func TestNewWithWriter_JSONDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)

	logger.Info("pot created", "pot_id", "abc")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	checks := map[string]string{
		"msg":     "pot created",
		"service": "smartpot",
		"version": "1.2.3",
		"pot_id":  "abc",
	}
	for key, want := range checks {
		if entry[key] != want {
			t.Errorf("entry[%q] = %v, want %q", key, entry[key], want)
		}
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, "dev", &buf)

	logger.Debug("reading stored")

	out := buf.String()
	if !strings.Contains(out, "msg=\"reading stored\"") {
		t.Errorf("text output missing message: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn"}, "dev", &buf)

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
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

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "dev", &buf)

	child := logger.With("component", "ingest")
	if child == logger {
		t.Fatal("expected child logger to be different from parent")
	}

	child.Info("subscribed")
	if !strings.Contains(buf.String(), `"component":"ingest"`) {
		t.Errorf("child output missing component field: %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	fallback := Discard()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("FromContext() without logger should return fallback")
	}

	scoped := Discard().With("request_id", "r-1")
	ctx := WithContext(context.Background(), scoped)
	if got := FromContext(ctx, fallback); got != scoped {
		t.Error("FromContext() did not return the stored logger")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}
