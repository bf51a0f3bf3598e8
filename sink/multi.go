package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// Named attaches a label to a sink for error messages
type Named struct {
	Name string
	Sink Sink
}

// Multi stores each reading in every sink, in order. One failing sink does
// not stop the others; all failures are joined into the returned error.
type Multi struct {
	sinks []Named
}

func NewMulti(sinks ...Named) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Store(ctx context.Context, r *types.SensorReading) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Store(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}
