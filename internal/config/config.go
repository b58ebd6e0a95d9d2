// Package config loads daemon configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Transport TransportConfig
	Pool      PoolConfig
	Debug     DebugConfig
	Bridge    BridgeConfig
	Policy    PolicyConfig
	Logging   LogConfig
}

// TransportConfig bounds the router's buffers.
type TransportConfig struct {
	// BufferSize is the per-process receive buffer. Sends block while the
	// destination buffer is full; a single payload larger than the buffer
	// fails with TransactionTooLarge.
	BufferSize int `envconfig:"TRANSIT_BUFFER_SIZE" default:"1048576"`
}

// PoolConfig shapes per-process dispatch pools.
type PoolConfig struct {
	MinWorkers int           `envconfig:"TRANSIT_POOL_MIN" default:"2"`
	MaxWorkers int           `envconfig:"TRANSIT_POOL_MAX" default:"16"`
	QueueDepth int           `envconfig:"TRANSIT_POOL_QUEUE" default:"32"`
	ShrinkIdle time.Duration `envconfig:"TRANSIT_POOL_SHRINK_IDLE" default:"30s"`
}

// DebugConfig holds the introspection HTTP surface configuration.
type DebugConfig struct {
	Enabled           bool   `envconfig:"TRANSIT_DEBUG_ENABLED" default:"true"`
	Host              string `envconfig:"TRANSIT_DEBUG_HOST" default:"0.0.0.0"`
	Port              string `envconfig:"TRANSIT_DEBUG_PORT" default:"7411"`
	RequestsPerSecond int    `envconfig:"TRANSIT_DEBUG_RPS" default:"100"`
	Burst             int    `envconfig:"TRANSIT_DEBUG_BURST" default:"200"`
}

// BridgeConfig holds the websocket bridge configuration.
type BridgeConfig struct {
	Enabled     bool   `envconfig:"TRANSIT_BRIDGE_ENABLED" default:"true"`
	Path        string `envconfig:"TRANSIT_BRIDGE_PATH" default:"/attach"`
	Compression bool   `envconfig:"TRANSIT_BRIDGE_COMPRESSION" default:"true"`
	// UID is the credential assigned to every attached remote peer.
	UID uint32 `envconfig:"TRANSIT_BRIDGE_UID" default:"9000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"TRANSIT_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"TRANSIT_LOG_DEV" default:"false"`
}

// PolicyConfig points at the optional TOML policy file.
type PolicyConfig struct {
	Path string `envconfig:"TRANSIT_POLICY_FILE" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{BufferSize: 1 << 20},
		Pool: PoolConfig{
			MinWorkers: 2,
			MaxWorkers: 16,
			QueueDepth: 32,
			ShrinkIdle: 30 * time.Second,
		},
		Debug: DebugConfig{
			Enabled:           true,
			Host:              "0.0.0.0",
			Port:              "7411",
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Bridge: BridgeConfig{
			Enabled:     true,
			Path:        "/attach",
			Compression: true,
			UID:         9000,
		},
		Logging: LogConfig{Level: "info"},
	}
}
