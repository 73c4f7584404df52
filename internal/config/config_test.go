package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlocorradini/sea-streamer/stream"
)

func validConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Input:           "stdio://",
			Output:          "redis://localhost:6379",
			Streams:         []string{"orders"},
			Mode:            "real-time",
			AutoOffsetReset: "latest",
			SendQueueSize:   1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty input", func(c *Config) { c.Relay.Input = "" }},
		{"empty output", func(c *Config) { c.Relay.Output = "" }},
		{"no streams", func(c *Config) { c.Relay.Streams = nil }},
		{"invalid stream key", func(c *Config) { c.Relay.Streams = []string{"bad key"} }},
		{"invalid mode", func(c *Config) { c.Relay.Mode = "psychic" }},
		{"invalid reset", func(c *Config) { c.Relay.AutoOffsetReset = "middle" }},
		{"resumable without group", func(c *Config) { c.Relay.Mode = "resumable" }},
		{"negative retention", func(c *Config) { c.Relay.RetentionCapacity = -1 }},
		{"zero send queue", func(c *Config) { c.Relay.SendQueueSize = 0 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateResumableWithGroup(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.Mode = "resumable"
	cfg.Relay.Group = "workers"
	assert.NoError(t, cfg.Validate())
}

func TestModeResolution(t *testing.T) {
	cfg := validConfig()

	cfg.Relay.Mode = "Real-Time"
	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, stream.ModeRealTime, mode)

	cfg.Relay.Mode = "replay"
	mode, err = cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, stream.ModeReplay, mode)

	cfg.Relay.AutoOffsetReset = "earliest"
	reset, err := cfg.AutoOffsetReset()
	require.NoError(t, err)
	assert.Equal(t, stream.ResetEarliest, reset)
}

func TestStreamKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.Streams = []string{"orders", "invoices"}
	assert.Equal(t, []stream.StreamKey{"orders", "invoices"}, cfg.StreamKeys())
}

func TestConnectOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.RetentionCapacity = 500
	cfg.Relay.LivenessTimeout = 30 * time.Second
	cfg.Relay.OffsetStoreDir = "/tmp/offsets"
	cfg.Relay.SendQueueSize = 64

	o := cfg.ConnectOptions()
	assert.Equal(t, 500, o.RetentionCapacity)
	assert.Equal(t, 30*time.Second, o.LivenessTimeout)
	assert.Equal(t, "/tmp/offsets", o.OffsetStoreDir)
	assert.Equal(t, 64, o.SendQueueSize)
}
