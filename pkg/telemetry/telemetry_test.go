package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mjasion/balena-home/smarthouse/pkg/config"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"a=1", map[string]string{"a": "1"}},
		{"a=1, b=x=y ,", map[string]string{"a": "1", "b": "x=y"}},
		{"novalue,=empty", map[string]string{}},
	}

	for _, tt := range tests {
		got := parseHeaders(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parseHeaders(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("parseHeaders(%q)[%q] = %q, want %q", tt.in, k, got[k], v)
			}
		}
	}
}

func TestInitProviders_Disabled(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	p, err := InitProviders(context.Background(), &config.OpenTelemetryConfig{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p != nil {
		t.Errorf("Expected nil providers when disabled, got %+v", p)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil providers should be a no-op, got: %v", err)
	}
}

func TestLogWithTrace_AddsIDsForRecordingSpan(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	tp := trace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	InfoWithTrace(ctx, logger, "with span")
	span.End()

	InfoWithTrace(context.Background(), logger, "without span")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}

	if _, ok := entries[0].ContextMap()["trace_id"]; !ok {
		t.Error("Expected trace_id on entry logged inside a span")
	}
	if _, ok := entries[1].ContextMap()["trace_id"]; ok {
		t.Error("Expected no trace_id outside a span")
	}
}

func TestLogWithTrace_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	DebugWithTrace(context.Background(), logger, "dropped")
	WarnWithTrace(context.Background(), logger, "kept")
	ErrorWithTrace(context.Background(), logger, "kept too")

	if logs.Len() != 2 {
		t.Errorf("Expected 2 entries at warn and above, got %d", logs.Len())
	}
}

func TestNewInstruments(t *testing.T) {
	ins, err := NewInstruments("test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ins.Lines == nil || ins.Probes == nil || ins.StoreDuration == nil {
		t.Error("Expected every instrument to be created")
	}
	ins.Lines.Add(context.Background(), 1)
}
