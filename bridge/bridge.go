// Package bridge runs the ingestion loop: serial lines are grouped into
// frames, parsed into readings and handed to the sink in arrival order.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/frame"
	"github.com/mjasion/balena-home/smarthouse/pkg/telemetry"
	"github.com/mjasion/balena-home/smarthouse/sink"
)

// ErrSerialIO marks a failure reading the serial device. It ends ingestion.
var ErrSerialIO = errors.New("serial I/O error")

// LineReader yields decoded lines from the device
type LineReader interface {
	Next() (string, error)
}

// dropCounter is implemented by readers that discard overlong lines
type dropCounter interface {
	Dropped() uint64
}

type Bridge struct {
	lines  LineReader
	acc    *frame.Accumulator
	parser *frame.Parser
	sink   sink.Sink
	stats  *Stats
	tracer trace.Tracer
	logger *zap.Logger

	// last LineReader drop count seen
	dropped uint64
}

// Option configures a Bridge
type Option func(*Bridge)

// WithStats replaces the bridge's private Stats with a shared one
func WithStats(s *Stats) Option {
	return func(b *Bridge) {
		b.stats = s
	}
}

func New(lines LineReader, acc *frame.Accumulator, parser *frame.Parser, s sink.Sink, logger *zap.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		lines:  lines,
		acc:    acc,
		parser: parser,
		sink:   s,
		stats:  NewStats(nil),
		tracer: otel.Tracer("smarthouse-bridge"),
		logger: logger.Named("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stats returns the counters the bridge updates
func (b *Bridge) Stats() *Stats {
	return b.stats
}

// Run reads lines until the device fails or ctx is cancelled. Shutdown is
// signalled by cancelling ctx and closing the port; Run then returns nil.
// Any other read failure is returned wrapped in ErrSerialIO.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("ingestion started")
	for {
		line, err := b.lines.Next()
		b.syncDropped(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("ingestion stopped", zap.Int("pending_lines", b.acc.Pending()))
				return nil
			}
			return fmt.Errorf("%w: %w", ErrSerialIO, err)
		}
		b.handleLine(ctx, line)
	}
}

func (b *Bridge) syncDropped(ctx context.Context) {
	dc, ok := b.lines.(dropCounter)
	if !ok {
		return
	}
	total := dc.Dropped()
	if n := total - b.dropped; n > 0 {
		b.dropped = total
		b.stats.linesDropped(ctx, n)
		b.logger.Warn("overlong serial line discarded", zap.Uint64("dropped_total", total))
	}
}

func (b *Bridge) handleLine(ctx context.Context, line string) {
	b.stats.lineRead(ctx)

	before := b.acc.Abandoned()
	status, text := b.acc.Feed(line)
	if n := b.acc.Abandoned() - before; n > 0 {
		b.stats.framesAbandoned(ctx, n)
		b.logger.Debug("partial frame discarded", zap.String("line", line))
	}
	if status != frame.Complete {
		return
	}

	b.stats.frameCompleted(ctx)
	b.handleFrame(ctx, text)
}

func (b *Bridge) handleFrame(ctx context.Context, text string) {
	ctx, span := b.tracer.Start(ctx, "frame")
	defer span.End()

	res, err := b.parser.Parse(text)
	if err != nil {
		b.stats.parseFailed(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")

		fields := []zap.Field{zap.String("frame", text), zap.Error(err)}
		var perr *frame.ParseError
		if errors.As(err, &perr) {
			fields = append(fields, zap.String("field", string(perr.Field)), zap.String("reason", perr.Reason))
		}
		telemetry.WarnWithTrace(ctx, b.logger, "frame rejected", fields...)
		return
	}

	reading := res.Reading
	span.SetAttributes(
		attribute.Float64("temperature", reading.TemperatureCelsius),
		attribute.String("motion", res.Motion.String()),
	)

	start := time.Now()
	err = b.sink.Store(ctx, &reading)
	took := time.Since(start)
	b.stats.storeFinished(ctx, reading.Timestamp, took, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		telemetry.WarnWithTrace(ctx, b.logger, "reading dropped",
			zap.Time("timestamp", reading.Timestamp),
			zap.Duration("duration", took),
			zap.Error(err),
		)
		return
	}

	span.SetStatus(codes.Ok, "stored")
	telemetry.DebugWithTrace(ctx, b.logger, "reading stored",
		zap.Time("timestamp", reading.Timestamp),
		zap.Float64("temperature", reading.TemperatureCelsius),
		zap.Float64("humidity", reading.HumidityPercent),
		zap.Float64("air_quality", reading.AirQuality),
		zap.Float64("light_percent", reading.LightPercent),
		zap.Float64("lux", reading.Lux),
		zap.String("motion", res.Motion.String()),
		zap.Duration("duration", took),
	)
}
