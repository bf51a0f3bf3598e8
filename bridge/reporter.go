package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReportSchedule logs bridge counters once a minute
const DefaultReportSchedule = "@every 1m"

// Reporter periodically logs a Stats snapshot together with the change
// since the previous report
type Reporter struct {
	cron   *cron.Cron
	stats  *Stats
	logger *zap.Logger

	mu   sync.Mutex
	last Snapshot
}

func NewReporter(schedule string, stats *Stats, logger *zap.Logger) (*Reporter, error) {
	if schedule == "" {
		schedule = DefaultReportSchedule
	}

	r := &Reporter{
		cron:   cron.New(),
		stats:  stats,
		logger: logger.Named("stats"),
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish
func (r *Reporter) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Report logs the current counters
func (r *Reporter) Report() {
	snap := r.stats.Snapshot()

	r.mu.Lock()
	prev := r.last
	r.last = snap
	r.mu.Unlock()

	r.logger.Info("bridge stats",
		zap.Uint64("lines", snap.Lines),
		zap.Uint64("dropped_lines", snap.DroppedLines),
		zap.Uint64("frames", snap.Frames),
		zap.Uint64("stored", snap.Stored),
		zap.Uint64("stored_delta", snap.Stored-prev.Stored),
		zap.Uint64("parse_errors", snap.ParseErrors),
		zap.Uint64("store_errors", snap.StoreErrors),
		zap.Uint64("abandoned", snap.Abandoned),
		zap.Uint64("commands_forwarded", snap.CommandsForwarded),
		zap.Uint64("probes_answered", snap.ProbesAnswered),
		zap.Time("last_stored", snap.LastStored),
	)
}
