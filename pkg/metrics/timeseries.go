package metrics

import (
	"context"
	"sort"

	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// Metric names exported for every sensor reading
const (
	MetricTemperature = "smarthouse_temperature_celsius"
	MetricHumidity    = "smarthouse_humidity_percent"
	MetricAirQuality  = "smarthouse_air_quality_percent"
	MetricLight       = "smarthouse_light_percent"
	MetricIlluminance = "smarthouse_illuminance_lux"
	MetricMotion      = "smarthouse_motion_detected"
)

var sensorSeries = []struct {
	name  string
	value func(*types.SensorReading) float64
}{
	{MetricTemperature, func(r *types.SensorReading) float64 { return r.TemperatureCelsius }},
	{MetricHumidity, func(r *types.SensorReading) float64 { return r.HumidityPercent }},
	{MetricAirQuality, func(r *types.SensorReading) float64 { return r.AirQuality }},
	{MetricLight, func(r *types.SensorReading) float64 { return r.LightPercent }},
	{MetricIlluminance, func(r *types.SensorReading) float64 { return r.Lux }},
	{MetricMotion, (*types.SensorReading).MotionValue},
}

// BuildSensorTimeSeries returns a builder that emits one series per sensor
// value, each carrying the given static labels (typically the device name)
func BuildSensorTimeSeries(labels map[string]string) TimeSeriesBuilder {
	base := make([]prompb.Label, 0, len(labels))
	for k, v := range labels {
		base = append(base, prompb.Label{Name: k, Value: v})
	}

	return func(ctx context.Context, readings []*types.SensorReading) ([]prompb.TimeSeries, error) {
		_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildSensorTimeSeries")
		defer span.End()

		if len(readings) == 0 {
			span.SetStatus(codes.Ok, "no readings")
			return nil, nil
		}

		series := make([]prompb.TimeSeries, 0, len(sensorSeries))
		for _, s := range sensorSeries {
			samples := make([]prompb.Sample, 0, len(readings))
			for _, r := range readings {
				samples = append(samples, prompb.Sample{
					Value:     s.value(r),
					Timestamp: r.Timestamp.UnixMilli(),
				})
			}

			lbls := make([]prompb.Label, 0, len(base)+1)
			lbls = append(lbls, prompb.Label{Name: "__name__", Value: s.name})
			lbls = append(lbls, base...)
			sort.Slice(lbls, func(i, j int) bool { return lbls[i].Name < lbls[j].Name })

			series = append(series, prompb.TimeSeries{Labels: lbls, Samples: samples})
		}

		span.SetAttributes(attribute.Int("metrics.time_series", len(series)))
		span.SetStatus(codes.Ok, "sensor time series built")
		return series, nil
	}
}
