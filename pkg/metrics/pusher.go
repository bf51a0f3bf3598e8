package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/pkg/buffer"
	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// TimeSeriesBuilder converts a batch of readings to remote_write series
type TimeSeriesBuilder func(ctx context.Context, readings []*types.SensorReading) ([]prompb.TimeSeries, error)

// Config contains configuration for the remote_write pusher
type Config struct {
	URL          string
	Username     string
	Password     string
	PushInterval time.Duration
	BatchSize    int
	Timeout      time.Duration
	MaxAttempts  int
	// RetryBackoff is the first retry delay; it doubles on every attempt
	RetryBackoff time.Duration
	Builder      TimeSeriesBuilder
}

// Pusher periodically drains a ring buffer of readings and ships them to a
// Prometheus remote_write endpoint
type Pusher struct {
	cfg      Config
	client   *http.Client
	buffer   *buffer.RingBuffer[*types.SensorReading]
	logger   *zap.Logger
	lastPush atomic.Int64
}

// New creates a Pusher. Zero values in cfg fall back to sane defaults.
func New(cfg Config, buf *buffer.RingBuffer[*types.SensorReading], logger *zap.Logger) *Pusher {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(string, *http.Request) string {
				return "prometheus.remote_write"
			}),
		),
	}

	return &Pusher{
		cfg:    cfg,
		client: client,
		buffer: buf,
		logger: logger,
	}
}

// Run flushes the buffer on every push interval until ctx is cancelled
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PushInterval)
	defer ticker.Stop()

	p.logger.Info("remote_write pusher started",
		zap.Duration("push_interval", p.cfg.PushInterval),
		zap.Int("batch_size", p.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("remote_write pusher stopping")
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("remote_write flush failed", zap.Error(err))
			}
		}
	}
}

// Flush drains the buffer and pushes it in batches. On the first failing
// batch the unsent readings go back into the buffer for the next flush.
func (p *Pusher) Flush(ctx context.Context) error {
	readings := p.buffer.Drain()
	if len(readings) == 0 {
		p.logger.Debug("no readings to push")
		return nil
	}

	for start := 0; start < len(readings); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(readings))

		if err := p.Push(ctx, readings[start:end]); err != nil {
			p.buffer.Requeue(readings[start:])
			return fmt.Errorf("push batch of %d readings (%d requeued): %w", end-start, len(readings)-start, err)
		}
	}
	return nil
}

// Push sends readings in one write request, retrying with exponential backoff
func (p *Pusher) Push(ctx context.Context, readings []*types.SensorReading) error {
	ctx, span := otel.Tracer("metrics").Start(ctx, "metrics.Push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("metrics.readings", len(readings))),
	)
	defer span.End()

	if len(readings) == 0 {
		span.SetStatus(codes.Ok, "nothing to push")
		return nil
	}

	if p.cfg.Builder == nil {
		err := fmt.Errorf("no TimeSeriesBuilder configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	series, err := p.cfg.Builder(ctx, readings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "builder failed")
		return fmt.Errorf("build time series: %w", err)
	}
	span.SetAttributes(attribute.Int("metrics.time_series", len(series)))

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: series})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("marshal write request: %w", err)
	}
	body := snappy.Encode(nil, data)

	var lastErr error
	backoff := p.cfg.RetryBackoff
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		lastErr = p.send(ctx, body)
		if lastErr == nil {
			p.lastPush.Store(time.Now().UnixNano())
			p.logger.Info("pushed readings",
				zap.Int("readings", len(readings)),
				zap.Int("time_series", len(series)),
				zap.Int("attempt", attempt),
			)
			span.SetStatus(codes.Ok, "pushed")
			return nil
		}

		p.logger.Warn("remote_write attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.cfg.MaxAttempts),
			zap.Error(lastErr),
		)
		span.AddEvent("push attempt failed", trace.WithAttributes(
			attribute.Int("metrics.attempt", attempt),
			attribute.String("error", lastErr.Error()),
		))

		if attempt == p.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context cancelled")
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all attempts failed")
	return fmt.Errorf("push failed after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

func (p *Pusher) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.cfg.Username != "" && p.cfg.Password != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote_write returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// LastPushTime returns the time of the last successful push, zero if none
func (p *Pusher) LastPushTime() time.Time {
	ns := p.lastPush.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Buffered returns how many readings wait for the next flush
func (p *Pusher) Buffered() int {
	return p.buffer.Size()
}
