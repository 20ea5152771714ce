package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Signal.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
signal:
  address: ":9999"
  ping_interval: 10s
  pong_timeout: 25s
logging:
  level: debug
redis:
  enabled: true
  address: "redis:6379"
  pool_size: 20
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Signal.Address)
	assert.Equal(t, 10*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.API.Address)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVECAST_SIGNAL_ADDRESS", ":7777")
	t.Setenv("LIVECAST_LOG_LEVEL", "warn")
	t.Setenv("LIVECAST_JWT_SECRET", "supersecret")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Signal.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "supersecret", cfg.Auth.JWTSecret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty signal address", func(c *Config) { c.Signal.Address = "" }},
		{"pong timeout below ping interval", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"zero max message bytes", func(c *Config) { c.Signal.MaxMessageBytes = 0 }},
		{"half open port range", func(c *Config) { c.WebRTC.PortRange.Min = 50000 }},
		{"inverted port range", func(c *Config) {
			c.WebRTC.PortRange.Min = 60000
			c.WebRTC.PortRange.Max = 50000
		}},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"tracing sample rate out of range", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 1.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
