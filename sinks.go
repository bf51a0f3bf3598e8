package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/config"
	"github.com/mjasion/balena-home/smarthouse/pkg/buffer"
	"github.com/mjasion/balena-home/smarthouse/pkg/metrics"
	"github.com/mjasion/balena-home/smarthouse/pkg/types"
	"github.com/mjasion/balena-home/smarthouse/sink"
)

// buildSinks connects every enabled backend. The pusher is returned when
// remote_write is enabled so it can be scheduled and health checked.
func buildSinks(cfg *config.Config, logger *zap.Logger) (sink.Sink, *metrics.Pusher, error) {
	var (
		named  []sink.Named
		pusher *metrics.Pusher
	)
	sc := cfg.Sinks

	if sc.Influx.Enabled {
		named = append(named, sink.Named{Name: "influx", Sink: sink.NewInflux(sink.InfluxConfig{
			URL:         sc.Influx.URL,
			Token:       sc.Influx.Token,
			Org:         sc.Influx.Org,
			Bucket:      sc.Influx.Bucket,
			Measurement: sc.Influx.Measurement,
			Device:      cfg.DeviceName,
		}, logger)})
	}

	if sc.MQTT.Enabled {
		m, err := sink.NewMQTT(sink.MQTTConfig{
			Broker:         sc.MQTT.Broker,
			ClientID:       sc.MQTT.ClientID,
			Username:       sc.MQTT.Username,
			Password:       sc.MQTT.Password,
			Topic:          sc.MQTT.Topic,
			QoS:            byte(sc.MQTT.QoS),
			Retained:       sc.MQTT.Retained,
			Device:         cfg.DeviceName,
			ConnectTimeout: time.Duration(sc.MQTT.ConnectTimeoutSeconds) * time.Second,
		}, logger)
		if err != nil {
			closeSinks(sink.NewMulti(named...), logger)
			return nil, nil, fmt.Errorf("mqtt sink: %w", err)
		}
		named = append(named, sink.Named{Name: "mqtt", Sink: m})
	}

	if sc.Kafka.Enabled {
		named = append(named, sink.Named{Name: "kafka", Sink: sink.NewKafka(sink.KafkaConfig{
			Brokers:      sc.Kafka.Brokers,
			Topic:        sc.Kafka.Topic,
			Device:       cfg.DeviceName,
			RequiredAcks: sc.Kafka.RequiredAcks,
			WriteTimeout: time.Duration(sc.Kafka.WriteTimeoutSeconds) * time.Second,
		})})
	}

	if sc.RemoteWrite.Enabled {
		rw := sc.RemoteWrite
		timeout := time.Duration(rw.TimeoutSeconds) * time.Second
		buf := buffer.New[*types.SensorReading](rw.BufferSize, logger)
		pusher = metrics.New(metrics.Config{
			URL:          rw.URL,
			Username:     rw.Username,
			Password:     rw.Password,
			PushInterval: time.Duration(rw.PushIntervalSeconds) * time.Second,
			BatchSize:    rw.BatchSize,
			Timeout:      timeout,
			MaxAttempts:  rw.MaxAttempts,
			Builder:      metrics.BuildSensorTimeSeries(map[string]string{"device": cfg.DeviceName}),
		}, buf, logger)
		named = append(named, sink.Named{Name: "remote_write", Sink: sink.NewRemoteWrite(buf, pusher, timeout)})
	}

	if len(named) == 0 {
		logger.Warn("No sink enabled, readings are only logged")
		return sink.NewLog(logger), nil, nil
	}
	multi := sink.NewMulti(named...)
	logger.Info("Sinks ready", zap.Int("count", multi.Len()))
	return multi, pusher, nil
}

func closeSinks(s sink.Sink, logger *zap.Logger) {
	if err := s.Close(); err != nil {
		logger.Error("Error closing sinks", zap.Error(err))
	}
}
