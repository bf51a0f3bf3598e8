package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/smarthouse/frame"
	pkgconfig "github.com/mjasion/balena-home/smarthouse/pkg/config"
)

// Config holds all configuration parameters for the SmartHouse bridge
type Config struct {
	// DeviceName labels every reading in the sinks
	DeviceName string `yaml:"deviceName" env:"DEVICE_NAME" env-default:"smarthouse"`

	Serial SerialConfig `yaml:"serial"`
	Frame  FrameConfig  `yaml:"frame"`
	Relay  RelayConfig  `yaml:"relay"`
	Sinks  SinksConfig  `yaml:"sinks"`

	// Health check configuration
	HealthCheckPort    int `yaml:"healthCheckPort" env:"HEALTH_CHECK_PORT" env-default:"8080"`
	HealthStaleSeconds int `yaml:"healthStaleSeconds" env:"HEALTH_STALE_SECONDS" env-default:"300"`

	Stats StatsConfig `yaml:"stats"`

	// Logging configuration
	Logging pkgconfig.LoggingConfig `yaml:"logging"`

	// OpenTelemetry configuration
	OpenTelemetry pkgconfig.OpenTelemetryConfig `yaml:"opentelemetry"`

	// Profiling configuration
	Profiling pkgconfig.ProfilingConfig `yaml:"profiling"`
}

type SerialConfig struct {
	Device            string `yaml:"device" env:"SERIAL_DEVICE" env-default:"/dev/ttyUSB0"`
	BaudRate          int    `yaml:"baudRate" env:"SERIAL_BAUD_RATE" env-default:"9600"`
	SettleDelayMillis int    `yaml:"settleDelayMillis" env:"SERIAL_SETTLE_DELAY_MILLIS" env-default:"2000"`
	MaxLineBytes      int    `yaml:"maxLineBytes" env:"SERIAL_MAX_LINE_BYTES" env-default:"4096"`
}

// FrameConfig picks the report schema. Empty markers fall back to the
// schema's own.
type FrameConfig struct {
	Schema           string `yaml:"schema" env:"FRAME_SCHEMA" env-default:"default"`
	StartPrefix      string `yaml:"startPrefix" env:"FRAME_START_PREFIX"`
	CompletionMarker string `yaml:"completionMarker" env:"FRAME_COMPLETION_MARKER"`
	MaxLines         int    `yaml:"maxLines" env:"FRAME_MAX_LINES" env-default:"64"`
}

type RelayConfig struct {
	Addr           string `yaml:"addr" env:"RELAY_ADDR" env-default:"127.0.0.1:5000"`
	ProbeToken     string `yaml:"probeToken" env:"RELAY_PROBE_TOKEN" env-default:"PING"`
	ReadBufferSize int    `yaml:"readBufferSize" env:"RELAY_READ_BUFFER_SIZE" env-default:"1024"`
}

// SinksConfig enables storage backends. With none enabled readings are
// only logged.
type SinksConfig struct {
	Influx      InfluxConfig      `yaml:"influx"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	RemoteWrite RemoteWriteConfig `yaml:"remoteWrite"`
}

type InfluxConfig struct {
	Enabled     bool   `yaml:"enabled" env:"INFLUX_ENABLED" env-default:"false"`
	URL         string `yaml:"url" env:"INFLUX_URL"`
	Token       string `yaml:"token" env:"INFLUX_TOKEN"`
	Org         string `yaml:"org" env:"INFLUX_ORG"`
	Bucket      string `yaml:"bucket" env:"INFLUX_BUCKET"`
	Measurement string `yaml:"measurement" env:"INFLUX_MEASUREMENT" env-default:"smarthouse"`
}

type MQTTConfig struct {
	Enabled               bool   `yaml:"enabled" env:"MQTT_ENABLED" env-default:"false"`
	Broker                string `yaml:"broker" env:"MQTT_BROKER"`
	ClientID              string `yaml:"clientId" env:"MQTT_CLIENT_ID" env-default:"smarthouse-bridge"`
	Username              string `yaml:"username" env:"MQTT_USERNAME"`
	Password              string `yaml:"password" env:"MQTT_PASSWORD"`
	Topic                 string `yaml:"topic" env:"MQTT_TOPIC" env-default:"smarthouse/readings"`
	QoS                   int    `yaml:"qos" env:"MQTT_QOS" env-default:"1"`
	Retained              bool   `yaml:"retained" env:"MQTT_RETAINED" env-default:"false"`
	ConnectTimeoutSeconds int    `yaml:"connectTimeoutSeconds" env:"MQTT_CONNECT_TIMEOUT_SECONDS" env-default:"10"`
}

type KafkaConfig struct {
	Enabled             bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers             []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic               string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"smarthouse.readings"`
	RequiredAcks        int      `yaml:"requiredAcks" env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	WriteTimeoutSeconds int      `yaml:"writeTimeoutSeconds" env:"KAFKA_WRITE_TIMEOUT_SECONDS" env-default:"10"`
}

type RemoteWriteConfig struct {
	Enabled             bool   `yaml:"enabled" env:"PROMETHEUS_ENABLED" env-default:"false"`
	URL                 string `yaml:"prometheusUrl" env:"PROMETHEUS_URL"`
	Username            string `yaml:"prometheusUsername" env:"PROMETHEUS_USERNAME"`
	Password            string `yaml:"prometheusPassword" env:"PROMETHEUS_PASSWORD"`
	PushIntervalSeconds int    `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"15"`
	BufferSize          int    `yaml:"bufferSize" env:"BUFFER_SIZE" env-default:"1000"`
	BatchSize           int    `yaml:"batchSize" env:"BATCH_SIZE" env-default:"500"`
	TimeoutSeconds      int    `yaml:"timeoutSeconds" env:"PUSH_TIMEOUT_SECONDS" env-default:"30"`
	MaxAttempts         int    `yaml:"maxAttempts" env:"PUSH_MAX_ATTEMPTS" env-default:"3"`
}

type StatsConfig struct {
	Schedule string `yaml:"schedule" env:"STATS_SCHEDULE" env-default:"@every 1m"`
}

// Load reads configuration from the specified file path and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all configuration parameters are valid
func (c *Config) Validate() error {
	c.DeviceName = strings.TrimSpace(c.DeviceName)
	if c.DeviceName == "" {
		return fmt.Errorf("deviceName cannot be empty")
	}

	if strings.TrimSpace(c.Serial.Device) == "" {
		return fmt.Errorf("serial.device cannot be empty")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baudRate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.SettleDelayMillis < 0 {
		return fmt.Errorf("serial.settleDelayMillis cannot be negative, got %d", c.Serial.SettleDelayMillis)
	}
	if c.Serial.MaxLineBytes < 64 {
		return fmt.Errorf("serial.maxLineBytes must be at least 64, got %d", c.Serial.MaxLineBytes)
	}

	if _, err := c.Schema(); err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	if c.Frame.MaxLines < 0 {
		return fmt.Errorf("frame.maxLines cannot be negative, got %d", c.Frame.MaxLines)
	}

	if _, _, err := net.SplitHostPort(c.Relay.Addr); err != nil {
		return fmt.Errorf("invalid relay.addr: %w", err)
	}
	// The relay compares against the trimmed command line
	c.Relay.ProbeToken = strings.TrimSpace(c.Relay.ProbeToken)
	if c.Relay.ProbeToken == "" {
		return fmt.Errorf("relay.probeToken cannot be empty")
	}
	if c.Relay.ReadBufferSize < 16 {
		return fmt.Errorf("relay.readBufferSize must be at least 16, got %d", c.Relay.ReadBufferSize)
	}

	if err := c.Sinks.validate(); err != nil {
		return err
	}

	// Validate health check port
	if c.HealthCheckPort <= 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("healthCheckPort must be between 1 and 65535, got %d", c.HealthCheckPort)
	}
	if c.HealthStaleSeconds < 0 {
		return fmt.Errorf("healthStaleSeconds cannot be negative, got %d", c.HealthStaleSeconds)
	}

	if _, err := cron.ParseStandard(c.Stats.Schedule); err != nil {
		return fmt.Errorf("invalid stats.schedule %q: %w", c.Stats.Schedule, err)
	}

	// Validate logging configuration
	if err := pkgconfig.ValidateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	// Validate OpenTelemetry configuration
	if err := pkgconfig.ValidateOpenTelemetry(&c.OpenTelemetry); err != nil {
		return fmt.Errorf("opentelemetry validation failed: %w", err)
	}

	// Validate Profiling configuration
	if err := pkgconfig.ValidateProfiling(&c.Profiling); err != nil {
		return fmt.Errorf("profiling validation failed: %w", err)
	}

	return nil
}

func (s *SinksConfig) validate() error {
	if s.Influx.Enabled {
		if _, err := url.ParseRequestURI(s.Influx.URL); err != nil {
			return fmt.Errorf("invalid sinks.influx.url: %w", err)
		}
		if s.Influx.Org == "" || s.Influx.Bucket == "" {
			return fmt.Errorf("sinks.influx.org and sinks.influx.bucket are required")
		}
		if s.Influx.Measurement == "" {
			return fmt.Errorf("sinks.influx.measurement cannot be empty")
		}
	}

	if s.MQTT.Enabled {
		if _, err := url.Parse(s.MQTT.Broker); err != nil || s.MQTT.Broker == "" {
			return fmt.Errorf("invalid sinks.mqtt.broker %q", s.MQTT.Broker)
		}
		if s.MQTT.Topic == "" {
			return fmt.Errorf("sinks.mqtt.topic cannot be empty")
		}
		if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
			return fmt.Errorf("sinks.mqtt.qos must be 0, 1 or 2, got %d", s.MQTT.QoS)
		}
		if s.MQTT.ConnectTimeoutSeconds <= 0 {
			return fmt.Errorf("sinks.mqtt.connectTimeoutSeconds must be positive, got %d", s.MQTT.ConnectTimeoutSeconds)
		}
	}

	if s.Kafka.Enabled {
		if len(s.Kafka.Brokers) == 0 {
			return fmt.Errorf("sinks.kafka.brokers cannot be empty")
		}
		for _, b := range s.Kafka.Brokers {
			if _, _, err := net.SplitHostPort(b); err != nil {
				return fmt.Errorf("invalid kafka broker %q: %w", b, err)
			}
		}
		if s.Kafka.Topic == "" {
			return fmt.Errorf("sinks.kafka.topic cannot be empty")
		}
		if s.Kafka.RequiredAcks < -1 || s.Kafka.RequiredAcks > 1 {
			return fmt.Errorf("sinks.kafka.requiredAcks must be -1, 0 or 1, got %d", s.Kafka.RequiredAcks)
		}
	}

	if s.RemoteWrite.Enabled {
		rw := s.RemoteWrite
		if _, err := url.ParseRequestURI(rw.URL); err != nil {
			return fmt.Errorf("invalid prometheusUrl: %w", err)
		}
		if rw.PushIntervalSeconds <= 0 {
			return fmt.Errorf("pushIntervalSeconds must be positive, got %d", rw.PushIntervalSeconds)
		}
		if rw.BufferSize <= 0 {
			return fmt.Errorf("bufferSize must be positive, got %d", rw.BufferSize)
		}
		if rw.BatchSize <= 0 {
			return fmt.Errorf("batchSize must be positive, got %d", rw.BatchSize)
		}
		if rw.TimeoutSeconds <= 0 || rw.MaxAttempts <= 0 {
			return fmt.Errorf("timeoutSeconds and maxAttempts must be positive")
		}
	}

	return nil
}

// Schema resolves the configured frame schema with marker overrides applied
func (c *Config) Schema() (frame.Schema, error) {
	schema, err := frame.SchemaByName(c.Frame.Schema)
	if err != nil {
		return frame.Schema{}, err
	}
	if c.Frame.StartPrefix != "" {
		schema.StartPrefix = c.Frame.StartPrefix
	}
	if c.Frame.CompletionMarker != "" {
		schema.CompletionMarker = c.Frame.CompletionMarker
	}
	return schema, schema.Validate()
}

// SettleDelay is how long to wait after opening the port
func (c *SerialConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMillis) * time.Millisecond
}

// AnySinkEnabled reports whether any storage backend is configured
func (s *SinksConfig) AnySinkEnabled() bool {
	return s.Influx.Enabled || s.MQTT.Enabled || s.Kafka.Enabled || s.RemoteWrite.Enabled
}

// Redacted returns a copy of the config with sensitive fields redacted for logging
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"deviceName": c.DeviceName,
		"serial": map[string]interface{}{
			"device":            c.Serial.Device,
			"baudRate":          c.Serial.BaudRate,
			"settleDelayMillis": c.Serial.SettleDelayMillis,
			"maxLineBytes":      c.Serial.MaxLineBytes,
		},
		"frame": map[string]interface{}{
			"schema":           c.Frame.Schema,
			"startPrefix":      c.Frame.StartPrefix,
			"completionMarker": c.Frame.CompletionMarker,
			"maxLines":         c.Frame.MaxLines,
		},
		"relay": map[string]interface{}{
			"addr":           c.Relay.Addr,
			"readBufferSize": c.Relay.ReadBufferSize,
		},
		"sinks": map[string]interface{}{
			"influx": map[string]interface{}{
				"enabled":     c.Sinks.Influx.Enabled,
				"url":         redactURL(c.Sinks.Influx.URL),
				"org":         c.Sinks.Influx.Org,
				"bucket":      c.Sinks.Influx.Bucket,
				"measurement": c.Sinks.Influx.Measurement,
				"tokenSet":    c.Sinks.Influx.Token != "",
			},
			"mqtt": map[string]interface{}{
				"enabled":     c.Sinks.MQTT.Enabled,
				"broker":      redactURL(c.Sinks.MQTT.Broker),
				"clientId":    c.Sinks.MQTT.ClientID,
				"username":    c.Sinks.MQTT.Username,
				"passwordSet": c.Sinks.MQTT.Password != "",
				"topic":       c.Sinks.MQTT.Topic,
				"qos":         c.Sinks.MQTT.QoS,
			},
			"kafka": map[string]interface{}{
				"enabled": c.Sinks.Kafka.Enabled,
				"brokers": c.Sinks.Kafka.Brokers,
				"topic":   c.Sinks.Kafka.Topic,
			},
			"remoteWrite": map[string]interface{}{
				"enabled":             c.Sinks.RemoteWrite.Enabled,
				"prometheusUrl":       redactURL(c.Sinks.RemoteWrite.URL),
				"prometheusUsername":  c.Sinks.RemoteWrite.Username,
				"prometheusPassword":  "***",
				"pushIntervalSeconds": c.Sinks.RemoteWrite.PushIntervalSeconds,
				"bufferSize":          c.Sinks.RemoteWrite.BufferSize,
			},
		},
		"healthCheckPort": c.HealthCheckPort,
		"stats": map[string]interface{}{
			"schedule": c.Stats.Schedule,
		},
		"logging": map[string]interface{}{
			"logFormat": c.Logging.Format,
			"logLevel":  c.Logging.Level,
		},
		"opentelemetry": map[string]interface{}{
			"enabled":     c.OpenTelemetry.Enabled,
			"serviceName": c.OpenTelemetry.ServiceName,
			"environment": c.OpenTelemetry.Environment,
			"traces": map[string]interface{}{
				"enabled":       c.OpenTelemetry.Traces.Enabled,
				"endpointSet":   c.OpenTelemetry.TracesEndpoint() != "",
				"samplingRatio": c.OpenTelemetry.Traces.SamplingRatio,
			},
			"metrics": map[string]interface{}{
				"enabled":        c.OpenTelemetry.Metrics.Enabled,
				"endpointSet":    c.OpenTelemetry.MetricsEndpoint() != "",
				"intervalMillis": c.OpenTelemetry.Metrics.IntervalMillis,
			},
		},
		"profiling": map[string]interface{}{
			"enabled":         c.Profiling.Enabled,
			"applicationName": c.Profiling.ApplicationName,
			"serverAddress":   redactURL(c.Profiling.ServerAddress),
		},
	}
}

// NewLogger creates a zap logger based on the configuration
func (c *Config) NewLogger() (*zap.Logger, error) {
	return pkgconfig.NewLogger(&c.Logging)
}

// PrintConfig prints the configuration (masking sensitive fields)
func (c *Config) PrintConfig(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("device_name", c.DeviceName),
		zap.String("serial_device", c.Serial.Device),
		zap.Int("serial_baud_rate", c.Serial.BaudRate),
		zap.String("frame_schema", c.Frame.Schema),
		zap.Int("frame_max_lines", c.Frame.MaxLines),
		zap.String("relay_addr", c.Relay.Addr),
		zap.Bool("influx_enabled", c.Sinks.Influx.Enabled),
		zap.Bool("influx_token_set", c.Sinks.Influx.Token != ""),
		zap.Bool("mqtt_enabled", c.Sinks.MQTT.Enabled),
		zap.Bool("mqtt_password_set", c.Sinks.MQTT.Password != ""),
		zap.Bool("kafka_enabled", c.Sinks.Kafka.Enabled),
		zap.Bool("remote_write_enabled", c.Sinks.RemoteWrite.Enabled),
		zap.String("prometheus_url", redactURL(c.Sinks.RemoteWrite.URL)),
		zap.Bool("prometheus_password_set", c.Sinks.RemoteWrite.Password != ""),
		zap.Int("health_check_port", c.HealthCheckPort),
		zap.String("stats_schedule", c.Stats.Schedule),
		zap.Bool("otel_enabled", c.OpenTelemetry.Enabled),
		zap.Bool("profiling_enabled", c.Profiling.Enabled),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	)
}

// redactURL removes credentials from URLs for logging
func redactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
