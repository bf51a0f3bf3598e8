package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// Log writes every reading to the logger. It is the fallback when no
// storage backend is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("sink.log")}
}

func (l *Log) Store(_ context.Context, r *types.SensorReading) error {
	l.logger.Info("sensor reading",
		zap.Time("timestamp", r.Timestamp),
		zap.Float64("temperature_celsius", r.TemperatureCelsius),
		zap.Float64("humidity_percent", r.HumidityPercent),
		zap.Float64("air_quality", r.AirQuality),
		zap.Float64("light_percent", r.LightPercent),
		zap.Float64("lux", r.Lux),
		zap.Bool("motion_detected", r.MotionDetected),
	)
	return nil
}

func (l *Log) Close() error {
	return nil
}
