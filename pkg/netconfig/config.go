// Package netconfig loads the runtime's YAML configuration: listen
// address, frame/queue limits, rate-limit defaults, and logging settings.
// The core treats these values as immutable once the dispatcher and hub are
// constructed.
package netconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the TCP listen address and the ancillary UDP/QUIC
// listener address.
type ServerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`     // e.g. "0.0.0.0:9443"
	UDPListenAddr string `yaml:"udp_listen_addr"` // ancillary QUIC datagram listener
}

// LimitsConfig bounds per-connection resources.
type LimitsConfig struct {
	MaxClients         int `yaml:"max_clients"`
	MaxFrameSize       int `yaml:"max_frame_size"`
	IncomingQueueSize  int `yaml:"incoming_queue_size"`
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	HeartbeatIntervalS int `yaml:"heartbeat_interval_s"`
	HeartbeatTimeoutS  int `yaml:"heartbeat_timeout_s"`
}

// RateLimitConfig carries token-bucket settings. netcored reads only
// IdleEvictSeconds (as the limiter's idle threshold); BurstCapacity and
// RefillPerSecond are validated but not applied, and a descriptor without
// its own RateLimit policy is not rate limited.
type RateLimitConfig struct {
	BurstCapacity    int     `yaml:"burst_capacity"`
	RefillPerSecond  float64 `yaml:"refill_per_second"`
	IdleEvictSeconds int     `yaml:"idle_evict_seconds"`
}

// LoggingConfig selects minimum level and destination.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	OutputFile string `yaml:"output_file"` // empty = stdout
}

// DefaultConfig returns sensible defaults. MaxFrameSize and
// IncomingQueueSize equal the netframe channel's own defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:    "0.0.0.0:9443",
			UDPListenAddr: "0.0.0.0:9444",
		},
		Limits: LimitsConfig{
			MaxClients:         10000,
			MaxFrameSize:       1 << 20,
			IncomingQueueSize:  256,
			HandshakeTimeoutMs: 10000,
			HeartbeatIntervalS: 30,
			HeartbeatTimeoutS:  90,
		},
		RateLimit: RateLimitConfig{
			BurstCapacity:    50,
			RefillPerSecond:  10,
			IdleEvictSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:      "info",
			OutputFile: "",
		},
	}
}

// LoadConfig reads and parses path, layering it over DefaultConfig so that
// a sparse file only overrides what it sets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netconfig: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("netconfig: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("netconfig: invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrCreateConfig loads path if present, or writes DefaultConfig there
// and returns it.
func LoadOrCreateConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadConfig(path)
	}

	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("netconfig: create config directory: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("netconfig: save default config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("netconfig: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("netconfig: write config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the runtime cannot operate under.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Limits.MaxClients < 1 {
		return fmt.Errorf("limits.max_clients must be at least 1")
	}
	if c.Limits.MaxFrameSize < 64 {
		return fmt.Errorf("limits.max_frame_size must be at least 64 bytes")
	}
	if c.Limits.IncomingQueueSize < 1 {
		return fmt.Errorf("limits.incoming_queue_size must be at least 1")
	}
	if c.Limits.HeartbeatTimeoutS <= c.Limits.HeartbeatIntervalS {
		return fmt.Errorf("limits.heartbeat_timeout_s must exceed heartbeat_interval_s")
	}
	if c.RateLimit.BurstCapacity < 1 {
		return fmt.Errorf("rate_limit.burst_capacity must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
