package sink

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// MQTTConfig selects the broker and topic
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	Retained       bool
	Device         string
	ConnectTimeout time.Duration
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes every reading as a JSON Envelope
type MQTT struct {
	cfg    MQTTConfig
	client publisher
	logger *zap.Logger
}

// NewMQTT connects to the broker. Reconnects are handled by the client.
func NewMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	logger = logger.Named("sink.mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	logger.Info("mqtt connected", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))
	return &MQTT{cfg: cfg, client: client, logger: logger}, nil
}

func (s *MQTT) Store(ctx context.Context, r *types.SensorReading) error {
	payload, err := encodeReading(s.cfg.Device, r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, s.cfg.Retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", s.cfg.Topic, err)
	}
	return nil
}

func (s *MQTT) Close() error {
	s.client.Disconnect(250)
	return nil
}
