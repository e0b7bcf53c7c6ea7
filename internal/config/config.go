package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Capture CaptureConfig `yaml:"capture"`
	Live    LiveConfig    `yaml:"live"`
	Device  DeviceConfig  `yaml:"device"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// AudioConfig contains audio format parameters
type AudioConfig struct {
	InputSampleRate  int `yaml:"input_sample_rate"`  // Hz, microphone side
	OutputSampleRate int `yaml:"output_sample_rate"` // Hz, playback side
	BlockSize        int `yaml:"block_size"`         // samples per capture callback
	Channels         int `yaml:"channels"`
}

// CaptureConfig contains capture pipeline parameters
type CaptureConfig struct {
	QueueSize int `yaml:"queue_size"` // outbound frame hand-off depth
}

// LiveConfig contains remote conversational endpoint configuration
type LiveConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Voice          string `yaml:"voice"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// DeviceConfig contains audio device backend commands
type DeviceConfig struct {
	InputCommand  []string `yaml:"input_command"`
	OutputCommand []string `yaml:"output_command"`
}

// HTTPConfig contains monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if config.Live.APIKey == "" {
		config.Live.APIKey = os.Getenv("LIVE_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio format configuration
func (a *AudioConfig) Validate() error {
	if a.InputSampleRate != 16000 {
		return fmt.Errorf("input_sample_rate must be 16000 Hz for the live protocol, got %d", a.InputSampleRate)
	}

	if a.OutputSampleRate != 24000 {
		return fmt.Errorf("output_sample_rate must be 24000 Hz for the live protocol, got %d", a.OutputSampleRate)
	}

	if a.BlockSize < 256 || a.BlockSize > 16384 {
		return fmt.Errorf("block_size must be between 256 and 16384 samples, got %d", a.BlockSize)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for the live protocol, got %d", a.Channels)
	}

	return nil
}

// Validate validates capture pipeline configuration
func (c *CaptureConfig) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize)
	}

	return nil
}

// Validate validates live endpoint configuration
func (l *LiveConfig) Validate() error {
	if l.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if l.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it in the config file or via LIVE_API_KEY)")
	}

	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", l.ConnectTimeout)
	}

	return nil
}

// Validate validates device backend configuration
func (d *DeviceConfig) Validate() error {
	if len(d.InputCommand) == 0 {
		return fmt.Errorf("input_command cannot be empty")
	}

	if len(d.OutputCommand) == 0 {
		return fmt.Errorf("output_command cannot be empty")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("level must be one of debug/info/warn/error, got %q", l.Level)
	}

	switch l.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("format must be json or text, got %q", l.Format)
	}

	switch l.Output {
	case "stdout", "stderr", "":
	default:
		return fmt.Errorf("output must be stdout or stderr, got %q", l.Output)
	}

	return nil
}

// GetConnectTimeout returns the live connect timeout as a time.Duration
func (l *LiveConfig) GetConnectTimeout() time.Duration {
	return time.Duration(l.ConnectTimeout) * time.Second
}
