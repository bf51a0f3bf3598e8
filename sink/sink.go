// Package sink holds the persistence side of the bridge. Every sink accepts
// one reading at a time from the ingestion loop; a failed Store is reported
// to the caller and never retried here.
package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// Sink stores parsed readings
type Sink interface {
	Store(ctx context.Context, r *types.SensorReading) error
	Close() error
}

// Envelope is the JSON document published by the message sinks
type Envelope struct {
	Device string `json:"device"`
	types.SensorReading
}

func encodeReading(device string, r *types.SensorReading) ([]byte, error) {
	env := Envelope{Device: device, SensorReading: *r}
	env.Timestamp = env.Timestamp.UTC().Truncate(time.Millisecond)
	return json.Marshal(env)
}
