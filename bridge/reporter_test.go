package bridge

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewReporter_InvalidSchedule(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	if _, err := NewReporter("every minute please", NewStats(nil), logger); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestReporter_ReportLogsDelta(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stats := NewStats(nil)

	r, err := NewReporter("", stats, zap.New(core))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ctx := context.Background()
	stats.storeFinished(ctx, time.Now(), time.Millisecond, nil)
	stats.storeFinished(ctx, time.Now(), time.Millisecond, nil)
	r.Report()
	stats.storeFinished(ctx, time.Now(), time.Millisecond, nil)
	r.Report()

	entries := logs.FilterMessage("bridge stats").All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(entries))
	}
	if got := entries[1].ContextMap()["stored_delta"]; got != uint64(1) {
		t.Errorf("Expected stored_delta 1 in second report, got %v", got)
	}
	if got := entries[1].ContextMap()["stored"]; got != uint64(3) {
		t.Errorf("Expected stored 3, got %v", got)
	}
}

func TestReporter_StartStop(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	r, err := NewReporter("@every 1h", NewStats(nil), logger)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	r.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
	if ctx.Err() != nil {
		t.Error("Expected Stop to return before timeout")
	}
}
