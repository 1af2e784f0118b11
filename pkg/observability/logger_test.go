package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Info("subscription created")

	entry := decodeLogLine(t, &buf)
	if entry["msg"] != "subscription created" {
		t.Errorf("expected message in output, got %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected INFO level, got %v", entry["level"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	logger.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at error level, got %q", buf.String())
	}

	logger.Errorf("sweep failed after %d retries", 3)
	if !strings.Contains(buf.String(), "sweep failed after 3 retries") {
		t.Errorf("expected error to be logged, got %q", buf.String())
	}
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf).WithField("subscription_id", 42)

	logger.Info("paused")

	entry := decodeLogLine(t, &buf)
	if entry["subscription_id"] != float64(42) {
		t.Errorf("expected subscription_id field, got %v", entry["subscription_id"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("connection refused")).Error("invoice generation failed")

	entry := decodeLogLine(t, &buf)
	if entry["error"] != "connection refused" {
		t.Errorf("expected error field, got %v", entry["error"])
	}

	// nil error should be a no-op, not a nil field
	if got := logger.WithError(nil); got != logger {
		t.Error("expected WithError(nil) to return the same logger")
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, expected %q", tt.level, got, tt.expected)
		}
	}
}

func TestLogLevelString_OutOfRange(t *testing.T) {
	if got := LogLevel(99).String(); got != "INFO" {
		t.Errorf("expected out-of-range level to read as INFO, got %q", got)
	}
}
