package profiling

import (
	"testing"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/pkg/config"
)

func TestStart_Disabled(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	p, err := Start(&config.ProfilingConfig{}, logger)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p != nil {
		t.Fatal("Expected nil profiler when disabled")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop on nil profiler should be a no-op, got: %v", err)
	}
}

func TestProfileTypes(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ProfilingConfig
		want int
	}{
		{"none", config.ProfilingConfig{}, 0},
		{"cpu only", config.ProfilingConfig{CPU: true}, 1},
		{"memory", config.ProfilingConfig{Alloc: true, Inuse: true}, 4},
		{"contention", config.ProfilingConfig{MutexRate: 5, BlockRate: 5}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(ProfileTypes(&tt.cfg)); got != tt.want {
				t.Errorf("Expected %d profile types, got %d", tt.want, got)
			}
		})
	}
}
