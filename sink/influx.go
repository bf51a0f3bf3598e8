package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// InfluxConfig selects the InfluxDB v2 target
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Device      string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes one point per reading with the blocking write API
type Influx struct {
	cfg    InfluxConfig
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
}

func NewInflux(cfg InfluxConfig, logger *zap.Logger) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		cfg:    cfg,
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger.Named("sink.influx"),
	}
}

// NewPoint converts a reading to a line protocol point
func NewPoint(measurement, device string, r *types.SensorReading) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{"device": device},
		map[string]interface{}{
			"temperature":     r.TemperatureCelsius,
			"humidity":        r.HumidityPercent,
			"air_quality":     r.AirQuality,
			"light_percent":   r.LightPercent,
			"lux":             r.Lux,
			"motion_detected": r.MotionDetected,
		},
		r.Timestamp,
	)
}

func (s *Influx) Store(ctx context.Context, r *types.SensorReading) error {
	if err := s.writer.WritePoint(ctx, NewPoint(s.cfg.Measurement, s.cfg.Device, r)); err != nil {
		return fmt.Errorf("influx write to bucket %s: %w", s.cfg.Bucket, err)
	}
	s.logger.Debug("reading written", zap.String("bucket", s.cfg.Bucket))
	return nil
}

func (s *Influx) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
