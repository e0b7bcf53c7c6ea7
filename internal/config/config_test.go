package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Audio: AudioConfig{
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
			BlockSize:        4096,
			Channels:         1,
		},
		Capture: CaptureConfig{
			QueueSize: 32,
		},
		Live: LiveConfig{
			Endpoint:       "wss://live.example.com/v1/session",
			APIKey:         "test-key",
			Model:          "live-audio-preview",
			Voice:          "Zephyr",
			ConnectTimeout: 15,
		},
		Device: DeviceConfig{
			InputCommand:  []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"},
			OutputCommand: []string{"ffplay", "-autoexit", "-nodisp", "-f", "s16le", "-ar", "24000", "-i", "-"},
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    8080,
			Address: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "wrong input sample rate",
			mutate:      func(c *Config) { c.Audio.InputSampleRate = 8000 },
			expectError: true,
			errorMsg:    "input_sample_rate",
		},
		{
			name:        "wrong output sample rate",
			mutate:      func(c *Config) { c.Audio.OutputSampleRate = 44100 },
			expectError: true,
			errorMsg:    "output_sample_rate",
		},
		{
			name:        "stereo rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels",
		},
		{
			name:        "block size out of range",
			mutate:      func(c *Config) { c.Audio.BlockSize = 64 },
			expectError: true,
			errorMsg:    "block_size",
		},
		{
			name:        "missing live endpoint",
			mutate:      func(c *Config) { c.Live.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint",
		},
		{
			name:        "missing api key",
			mutate:      func(c *Config) { c.Live.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key",
		},
		{
			name:        "missing capture command",
			mutate:      func(c *Config) { c.Device.InputCommand = nil },
			expectError: true,
			errorMsg:    "input_command",
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error mentioning %q, got %v", tt.errorMsg, err)
				}
			} else if err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
audio:
  input_sample_rate: 16000
  output_sample_rate: 24000
  block_size: 4096
  channels: 1
capture:
  queue_size: 32
live:
  endpoint: "wss://live.example.com/v1/session"
  api_key: "file-key"
  model: "live-audio-preview"
  voice: "Zephyr"
  connect_timeout: 15
device:
  input_command: ["arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"]
  output_command: ["ffplay", "-autoexit", "-nodisp", "-f", "s16le", "-ar", "24000", "-i", "-"]
http:
  enabled: true
  port: 8080
  address: "127.0.0.1"
logging:
  level: "debug"
  format: "text"
  output: "stderr"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Live.APIKey != "file-key" {
		t.Errorf("expected api key from file, got %q", cfg.Live.APIKey)
	}
	if cfg.Live.GetConnectTimeout() != 15*time.Second {
		t.Errorf("expected 15s connect timeout, got %v", cfg.Live.GetConnectTimeout())
	}
	if cfg.Audio.BlockSize != 4096 {
		t.Errorf("expected block size 4096, got %d", cfg.Audio.BlockSize)
	}
}

func TestLoadAPIKeyFromEnvironment(t *testing.T) {
	content := `
audio:
  input_sample_rate: 16000
  output_sample_rate: 24000
  block_size: 4096
  channels: 1
capture:
  queue_size: 32
live:
  endpoint: "wss://live.example.com/v1/session"
  model: "live-audio-preview"
  connect_timeout: 15
device:
  input_command: ["arecord"]
  output_command: ["ffplay"]
logging:
  level: "info"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("LIVE_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Live.APIKey != "env-key" {
		t.Errorf("expected api key from environment, got %q", cfg.Live.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
