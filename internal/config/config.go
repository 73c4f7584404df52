package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/carlocorradini/sea-streamer/stream"
)

// Config represents the relay configuration
type Config struct {
	// Relay configuration
	Relay RelayConfig `env:"RELAY"`

	// Logging configuration
	Logging LoggingConfig `env:"LOGGING"`

	// Metrics configuration
	Metrics MetricsConfig `env:"METRICS"`
}

// RelayConfig holds the relay pipeline configuration
type RelayConfig struct {
	// Input connection string (stdio://, file://<path>, redis://<host>)
	Input string `env:"INPUT" envDefault:"stdio://"`

	// Output connection string
	Output string `env:"OUTPUT" envDefault:"stdio://"`

	// Stream keys to relay, comma separated
	Streams []string `env:"STREAMS" envSeparator:","`

	// Consumer mode: "real-time", "resumable", "replay"
	Mode string `env:"MODE" envDefault:"real-time"`

	// Consumer group name (required for resumable mode)
	Group string `env:"GROUP" envDefault:""`

	// Starting position when resumable mode has no committed offset:
	// "earliest" or "latest"
	AutoOffsetReset string `env:"AUTO_OFFSET_RESET" envDefault:"latest"`

	// Per-shard retained history bound on the byte-stream input (0 = unbounded)
	RetentionCapacity int `env:"RETENTION_CAPACITY" envDefault:"0"`

	// Group member liveness timeout on the byte-stream input (0 = disabled)
	LivenessTimeout time.Duration `env:"LIVENESS_TIMEOUT" envDefault:"0"`

	// Directory for persistent committed offsets (byte-stream input only)
	OffsetStoreDir string `env:"OFFSET_STORE_DIR" envDefault:""`

	// Outgoing send queue bound on the byte-stream output
	SendQueueSize int `env:"SEND_QUEUE_SIZE" envDefault:"1024"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json"`

	// Log file path (empty for stderr; stdout carries the message stream)
	Output string `env:"LOG_OUTPUT" envDefault:""`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// Metrics server address
	Addr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Metrics path
	Path string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load loads configuration from multiple sources:
// 1. Default values
// 2. Environment variables
// 3. Command line flags
func Load() (*Config, error) {
	cfg := &Config{}

	// Load from environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Parse command line flags
	var streams string
	flag.StringVar(&cfg.Relay.Input, "input", cfg.Relay.Input, "Input connection string")
	flag.StringVar(&cfg.Relay.Output, "output", cfg.Relay.Output, "Output connection string")
	flag.StringVar(&streams, "streams", strings.Join(cfg.Relay.Streams, ","), "Stream keys to relay, comma separated")
	flag.StringVar(&cfg.Relay.Mode, "mode", cfg.Relay.Mode, "Consumer mode (real-time, resumable, replay)")
	flag.StringVar(&cfg.Relay.Group, "group", cfg.Relay.Group, "Consumer group name")
	flag.StringVar(&cfg.Relay.OffsetStoreDir, "offset-store-dir", cfg.Relay.OffsetStoreDir, "Directory for persistent committed offsets")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format (json, text)")
	flag.Parse()

	if streams != "" {
		cfg.Relay.Streams = strings.Split(streams, ",")
	}
	for i, key := range cfg.Relay.Streams {
		cfg.Relay.Streams[i] = strings.TrimSpace(key)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Relay.Input == "" {
		return fmt.Errorf("input connection string cannot be empty")
	}

	if c.Relay.Output == "" {
		return fmt.Errorf("output connection string cannot be empty")
	}

	if len(c.Relay.Streams) == 0 {
		return fmt.Errorf("at least one stream key is required")
	}
	for _, key := range c.Relay.Streams {
		if err := stream.StreamKey(key).Validate(); err != nil {
			return err
		}
	}

	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := c.AutoOffsetReset(); err != nil {
		return err
	}

	if c.Relay.Mode == "resumable" && c.Relay.Group == "" {
		return fmt.Errorf("resumable mode requires a consumer group")
	}

	if c.Relay.RetentionCapacity < 0 {
		return fmt.Errorf("retention capacity cannot be negative")
	}

	if c.Relay.SendQueueSize <= 0 {
		return fmt.Errorf("send queue size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Mode resolves the configured consumer mode
func (c *Config) Mode() (stream.ConsumerMode, error) {
	switch strings.ToLower(c.Relay.Mode) {
	case "real-time", "realtime":
		return stream.ModeRealTime, nil
	case "resumable":
		return stream.ModeResumable, nil
	case "replay":
		return stream.ModeReplay, nil
	default:
		return 0, fmt.Errorf("invalid consumer mode: %s", c.Relay.Mode)
	}
}

// AutoOffsetReset resolves the configured reset policy
func (c *Config) AutoOffsetReset() (stream.AutoOffsetReset, error) {
	switch strings.ToLower(c.Relay.AutoOffsetReset) {
	case "earliest":
		return stream.ResetEarliest, nil
	case "latest":
		return stream.ResetLatest, nil
	default:
		return 0, fmt.Errorf("invalid auto offset reset: %s", c.Relay.AutoOffsetReset)
	}
}

// StreamKeys returns the configured stream keys as typed values
func (c *Config) StreamKeys() []stream.StreamKey {
	keys := make([]stream.StreamKey, 0, len(c.Relay.Streams))
	for _, key := range c.Relay.Streams {
		keys = append(keys, stream.StreamKey(key))
	}
	return keys
}

// ConnectOptions builds the connection options for both ends of the relay
func (c *Config) ConnectOptions() stream.ConnectOptions {
	return stream.NewConnectOptions(
		stream.WithRetentionCapacity(c.Relay.RetentionCapacity),
		stream.WithLivenessTimeout(c.Relay.LivenessTimeout),
		stream.WithOffsetStoreDir(c.Relay.OffsetStoreDir),
		stream.WithSendQueueSize(c.Relay.SendQueueSize),
	)
}
