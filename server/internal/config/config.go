package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHost               = "0.0.0.0"
	DefaultHTTPPort           = 8080
	DefaultGRPCPort           = 50051
	DefaultStalenessThreshold = 15 * time.Second
	DefaultStreamInterval     = 5 * time.Second
	DefaultMQTTBroker         = "tcp://localhost:1883"
	DefaultMQTTClientID       = "iotcloud-server"
	DefaultMQTTTopic          = "devices/+/status"
)

// Environment variables that override values from the config file.
const (
	EnvHost               = "IOTCLOUD_HOST"
	EnvHTTPPort           = "IOTCLOUD_HTTP_PORT"
	EnvGRPCPort           = "IOTCLOUD_GRPC_PORT"
	EnvStalenessThreshold = "IOTCLOUD_STALENESS_THRESHOLD"
	EnvMQTTEnabled        = "IOTCLOUD_MQTT_ENABLED"
	EnvMQTTBroker         = "IOTCLOUD_MQTT_BROKER"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// Host is the bind address for both listeners (default 0.0.0.0).
	Host string `yaml:"host"`

	// HTTPPort is the port the HTTP gateway and WebSocket stream listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port the gRPC event receiver listens on (default 50051).
	// Zero disables the gRPC listener.
	GRPCPort int `yaml:"grpc_port"`

	// Liveness controls the online/offline policy.
	Liveness LivenessConfig `yaml:"liveness"`

	// Stream controls the WebSocket device stream.
	Stream StreamConfig `yaml:"stream"`

	// MQTT configures the optional MQTT ingest subscriber.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// LivenessConfig controls how device liveness is derived.
type LivenessConfig struct {
	// StalenessThreshold is how long after its last report a device is still
	// considered online. Default: 15s. Hot-reloadable.
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

// StreamConfig controls the WebSocket broadcast.
type StreamConfig struct {
	// Interval between device list broadcasts. Default: 5s.
	Interval time.Duration `yaml:"interval"`
}

// MQTTConfig configures the MQTT ingest subscriber.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`

	// Topic is the subscription filter. The segment matched by the first
	// "+" wildcard is used as the device id.
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`

	// UsernameEnv / PasswordEnv name the environment variables holding credentials.
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

// Username returns the broker username resolved from the environment.
func (m MQTTConfig) Username() string {
	if m.UsernameEnv == "" {
		return ""
	}
	return os.Getenv(m.UsernameEnv)
}

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// HTTPAddr returns host:port for the HTTP listener.
func (s ServerConfig) HTTPAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
}

// GRPCAddr returns host:port for the gRPC listener.
func (s ServerConfig) GRPCAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.GRPCPort))
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("server config: load env file %q: %w", path, err)
	}
	return nil
}

// Load reads and parses the config file at path, returning the server configuration.
// An empty path skips the file and uses defaults. Environment overrides are
// applied after the file and before validation.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     DefaultHost,
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			Liveness: LivenessConfig{
				StalenessThreshold: DefaultStalenessThreshold,
			},
			Stream: StreamConfig{
				Interval: DefaultStreamInterval,
			},
			MQTT: MQTTConfig{
				Broker:   DefaultMQTTBroker,
				ClientID: DefaultMQTTClientID,
				Topic:    DefaultMQTTTopic,
			},
		},
	}
}

// applyEnv overrides file values with any IOTCLOUD_* variables that are set.
func applyEnv(cfg *Config) error {
	s := &cfg.Server
	if v, ok := os.LookupEnv(EnvHost); ok {
		s.Host = v
	}
	if v, ok := os.LookupEnv(EnvHTTPPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		s.HTTPPort = n
	}
	if v, ok := os.LookupEnv(EnvGRPCPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGRPCPort, err)
		}
		s.GRPCPort = n
	}
	if v, ok := os.LookupEnv(EnvStalenessThreshold); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStalenessThreshold, err)
		}
		s.Liveness.StalenessThreshold = d
	}
	if v, ok := os.LookupEnv(EnvMQTTEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMQTTEnabled, err)
		}
		s.MQTT.Enabled = b
	}
	if v, ok := os.LookupEnv(EnvMQTTBroker); ok {
		s.MQTT.Broker = v
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", s.HTTPPort)
	}
	if s.Liveness.StalenessThreshold <= 0 {
		return fmt.Errorf("server.liveness.staleness_threshold must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	if s.MQTT.QoS > 2 {
		return fmt.Errorf("server.mqtt.qos %d unknown: want 0|1|2", s.MQTT.QoS)
	}
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" {
			return fmt.Errorf("server.mqtt.broker is required when mqtt is enabled")
		}
		if s.MQTT.Topic == "" {
			return fmt.Errorf("server.mqtt.topic is required when mqtt is enabled")
		}
	}
	return nil
}
