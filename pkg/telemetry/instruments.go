package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the bridge counters exported through the global meter
// provider. With OpenTelemetry disabled they are no-ops.
type Instruments struct {
	Lines         metric.Int64Counter
	DroppedLines  metric.Int64Counter
	Frames        metric.Int64Counter
	Stored        metric.Int64Counter
	ParseErrors   metric.Int64Counter
	StoreErrors   metric.Int64Counter
	Abandoned     metric.Int64Counter
	Forwarded     metric.Int64Counter
	Probes        metric.Int64Counter
	StoreDuration metric.Float64Histogram
}

// NewInstruments registers the bridge instruments on the named meter
func NewInstruments(meterName string) (*Instruments, error) {
	m := otel.Meter(meterName)
	ins := &Instruments{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&ins.Lines, "smarthouse.serial.lines", "Lines read from the serial device"},
		{&ins.DroppedLines, "smarthouse.serial.lines_dropped", "Overlong lines discarded by the line reader"},
		{&ins.Frames, "smarthouse.frames.completed", "Frames that reached the completion marker"},
		{&ins.Stored, "smarthouse.readings.stored", "Readings accepted by the sink"},
		{&ins.ParseErrors, "smarthouse.frames.parse_errors", "Completed frames that failed to parse"},
		{&ins.StoreErrors, "smarthouse.readings.store_errors", "Readings the sink rejected"},
		{&ins.Abandoned, "smarthouse.frames.abandoned", "Partial frames discarded before completion"},
		{&ins.Forwarded, "smarthouse.relay.forwarded", "Commands written to the serial device"},
		{&ins.Probes, "smarthouse.relay.probes", "Liveness probes answered by the relay"},
	}
	for _, c := range counters {
		counter, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	h, err := m.Float64Histogram("smarthouse.sink.store_duration",
		metric.WithDescription("Time spent in Sink.Store"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store duration histogram: %w", err)
	}
	ins.StoreDuration = h

	return ins, nil
}
