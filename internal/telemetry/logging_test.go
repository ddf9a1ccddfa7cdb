package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record %q: %v", buf.String(), err)
	}
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"INFO+2", slog.LevelInfo + 2},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_ServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "taskbridge-api", slog.LevelWarn, "json")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at WARN level: %s", buf.String())
	}

	logger.Warn("kept")
	rec := decodeRecord(t, &buf)
	if rec["service"] != "taskbridge-api" || rec["msg"] != "kept" {
		t.Errorf("unexpected record: %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Error("source must be added only at DEBUG level")
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "", slog.LevelInfo, "TEXT").Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte("msg=hello")) {
		t.Errorf("expected text record, got %q", buf.String())
	}
	if bytes.Contains(buf.Bytes(), []byte("service=")) {
		t.Errorf("empty service must not be logged: %q", buf.String())
	}
}

func TestFromContext_AddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "", slog.LevelInfo, "json")
	ctx := WithLogger(context.Background(), logger)

	FromContext(ctx).Info("no span")
	if rec := decodeRecord(t, &buf); rec["trace_id"] != nil {
		t.Errorf("unexpected trace_id without span: %v", rec)
	}
	buf.Reset()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	FromContext(trace.ContextWithSpanContext(ctx, sc)).Info("with span")
	if rec := decodeRecord(t, &buf); rec["trace_id"] != sc.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", rec["trace_id"], sc.TraceID())
	}

	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger without one in context")
	}
}

func TestWithAnycard_MasksCardNumber(t *testing.T) {
	var buf bytes.Buffer
	id := uuid.New()
	WithAnycard(NewLogger(&buf, "", slog.LevelInfo, "json"), id, "6006491234567890123").Info("flagged")

	rec := decodeRecord(t, &buf)
	if rec["card_number"] != "***************0123" {
		t.Errorf("card_number = %v", rec["card_number"])
	}
	if rec["anycard_id"] != id.String() {
		t.Errorf("anycard_id = %v", rec["anycard_id"])
	}
}

func TestMaskCardNumber(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"111":              "111",
		" 1234 ":           "1234",
		"600649":           "**0649",
		"6006491234567890": "************7890",
	}
	for in, want := range tests {
		if got := MaskCardNumber(in); got != want {
			t.Errorf("MaskCardNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
