package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mjasion/balena-home/smarthouse/pkg/telemetry"
)

// Stats counts ingestion and relay activity. All methods are safe for
// concurrent use; the relay updates it from its own goroutine.
type Stats struct {
	lines       atomic.Uint64
	dropped     atomic.Uint64
	frames      atomic.Uint64
	stored      atomic.Uint64
	parseErrors atomic.Uint64
	storeErrors atomic.Uint64
	abandoned   atomic.Uint64
	forwarded   atomic.Uint64
	probes      atomic.Uint64
	lastStored  atomic.Int64

	ins *telemetry.Instruments
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	Lines             uint64    `json:"lines"`
	DroppedLines      uint64    `json:"droppedLines"`
	Frames            uint64    `json:"frames"`
	Stored            uint64    `json:"stored"`
	ParseErrors       uint64    `json:"parseErrors"`
	StoreErrors       uint64    `json:"storeErrors"`
	Abandoned         uint64    `json:"abandoned"`
	CommandsForwarded uint64    `json:"commandsForwarded"`
	ProbesAnswered    uint64    `json:"probesAnswered"`
	LastStored        time.Time `json:"lastStored"`
}

// NewStats creates Stats that also feed ins when it is not nil
func NewStats(ins *telemetry.Instruments) *Stats {
	return &Stats{ins: ins}
}

func (s *Stats) lineRead(ctx context.Context) {
	s.lines.Add(1)
	if s.ins != nil {
		s.ins.Lines.Add(ctx, 1)
	}
}

func (s *Stats) linesDropped(ctx context.Context, n uint64) {
	s.dropped.Add(n)
	if s.ins != nil {
		s.ins.DroppedLines.Add(ctx, int64(n))
	}
}

func (s *Stats) frameCompleted(ctx context.Context) {
	s.frames.Add(1)
	if s.ins != nil {
		s.ins.Frames.Add(ctx, 1)
	}
}

func (s *Stats) framesAbandoned(ctx context.Context, n uint64) {
	s.abandoned.Add(n)
	if s.ins != nil {
		s.ins.Abandoned.Add(ctx, int64(n))
	}
}

func (s *Stats) parseFailed(ctx context.Context) {
	s.parseErrors.Add(1)
	if s.ins != nil {
		s.ins.ParseErrors.Add(ctx, 1)
	}
}

func (s *Stats) storeFinished(ctx context.Context, at time.Time, took time.Duration, err error) {
	if s.ins != nil {
		s.ins.StoreDuration.Record(ctx, took.Seconds())
	}
	if err != nil {
		s.storeErrors.Add(1)
		if s.ins != nil {
			s.ins.StoreErrors.Add(ctx, 1)
		}
		return
	}
	s.stored.Add(1)
	s.lastStored.Store(at.UnixNano())
	if s.ins != nil {
		s.ins.Stored.Add(ctx, 1)
	}
}

// CommandForwarded implements relay.Observer
func (s *Stats) CommandForwarded() {
	s.forwarded.Add(1)
	if s.ins != nil {
		s.ins.Forwarded.Add(context.Background(), 1)
	}
}

// ProbeAnswered implements relay.Observer
func (s *Stats) ProbeAnswered() {
	s.probes.Add(1)
	if s.ins != nil {
		s.ins.Probes.Add(context.Background(), 1)
	}
}

// LastStored returns when the sink last accepted a reading, or the zero time
func (s *Stats) LastStored() time.Time {
	ns := s.lastStored.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Lines:             s.lines.Load(),
		DroppedLines:      s.dropped.Load(),
		Frames:            s.frames.Load(),
		Stored:            s.stored.Load(),
		ParseErrors:       s.parseErrors.Load(),
		StoreErrors:       s.storeErrors.Load(),
		Abandoned:         s.abandoned.Load(),
		CommandsForwarded: s.forwarded.Load(),
		ProbesAnswered:    s.probes.Load(),
		LastStored:        s.LastStored(),
	}
}
