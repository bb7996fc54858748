package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultReportInterval = 5 * time.Second
	DefaultBufferSize     = 100
	DefaultStatus         = "on"
)

// Config holds the agent-side configuration. The `server:` key in the same
// file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of iotcloud-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ReportInterval controls how often every device reports its status.
	// Keep it well under the server's staleness threshold.
	ReportInterval time.Duration `yaml:"report_interval"`

	// BufferSize is the maximum number of events held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// Devices is the list of devices this agent reports for.
	Devices []Device `yaml:"devices"`
}

// Device is one reporting device and the status it announces.
type Device struct {
	ID     string `yaml:"id"`
	Status string `yaml:"status"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("agent config: parse yaml: %w", err)
	}
	for i := range cfg.Agent.Devices {
		if cfg.Agent.Devices[i].Status == "" {
			cfg.Agent.Devices[i].Status = DefaultStatus
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ReportInterval: DefaultReportInterval,
			BufferSize:     DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ReportInterval <= 0 {
		return fmt.Errorf("agent.report_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	seen := make(map[string]bool, len(a.Devices))
	for i, d := range a.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}
