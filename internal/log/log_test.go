package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: "test", Format: "json", Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_ComponentTagging(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.Info("one")
	logger.WithComponent(ComponentWorker).Warn("two", "k", "v")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0][FieldComponent] != "test" {
		t.Errorf("component = %v, want test", lines[0][FieldComponent])
	}
	if lines[1][FieldComponent] != ComponentWorker || lines[1]["k"] != "v" {
		t.Errorf("second line = %v", lines[1])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Error("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Errorf("lines = %v", lines)
	}
}

func TestNewContext_CarriesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), newBufferLogger(&buf).With(FieldRequestID, "req-123"))

	FromContext(ctx).Info("inside")
	LogFailure(ctx, "failed", errors.New("boom"), ComponentLedger, ErrorTypeConsistency)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, l := range lines {
		if l[FieldRequestID] != "req-123" {
			t.Errorf("line lost request id: %v", l)
		}
	}
	if lines[1][FieldComponent] != ComponentLedger || lines[1][FieldErrorType] != ErrorTypeConsistency {
		t.Errorf("failure line = %v", lines[1])
	}
}

func TestFromContext_Fallback(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Errorf("Component() = %q, want unknown", l.Component())
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodPost, "/api/transactions?x=1", nil)
	sl.LogHTTPEnd(ctx, req, http.StatusServiceUnavailable, 12, "10.0.0.1")
	sl.LogTransactionMutation(ctx, OpCreate, "user-1", "tx-1", "acc-1", "EXPENSE", 2500)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["level"] != "ERROR" || lines[0][FieldStatusCode] != float64(503) {
		t.Errorf("http line = %v", lines[0])
	}
	if lines[1]["msg"] != "Transaction created" || lines[1][FieldAmountCents] != float64(2500) {
		t.Errorf("mutation line = %v", lines[1])
	}
}
