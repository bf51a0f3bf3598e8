package sink

import (
	"context"
	"time"

	"github.com/mjasion/balena-home/smarthouse/pkg/buffer"
	"github.com/mjasion/balena-home/smarthouse/pkg/metrics"
	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// RemoteWrite queues readings in a bounded ring buffer that a
// metrics.Pusher drains on its own schedule. Store never blocks on the
// network; when the buffer is full the oldest reading is lost.
type RemoteWrite struct {
	buf          *buffer.RingBuffer[*types.SensorReading]
	pusher       *metrics.Pusher
	flushTimeout time.Duration
}

// NewRemoteWrite wires a sink to the buffer that pusher drains
func NewRemoteWrite(buf *buffer.RingBuffer[*types.SensorReading], pusher *metrics.Pusher, flushTimeout time.Duration) *RemoteWrite {
	return &RemoteWrite{buf: buf, pusher: pusher, flushTimeout: flushTimeout}
}

func (s *RemoteWrite) Store(_ context.Context, r *types.SensorReading) error {
	cp := *r
	s.buf.Add(&cp)
	return nil
}

// Close performs a final flush of whatever is still buffered
func (s *RemoteWrite) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	return s.pusher.Flush(ctx)
}
