package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflowd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9790, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "memory", cfg.State.Backend)
	assert.True(t, cfg.Engine.AutoStart)
	assert.False(t, cfg.Observability.Enabled)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8181
logging:
  level: debug
  format: console
state:
  backend: file
  dir: /var/lib/workflowd
engine:
  auto_start: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.Equal(t, "/var/lib/workflowd", cfg.State.Dir)
	assert.False(t, cfg.Engine.AutoStart)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 8181\n")

	t.Setenv("WORKFLOWD_SERVER_PORT", "9000")
	t.Setenv("WORKFLOWD_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_DurationParsing(t *testing.T) {
	path := writeConfigFile(t, "server:\n  shutdown_timeout: 30s\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"bad logging format", func(c *Config) { c.Logging.Format = "xml" }},
		{"unknown state backend", func(c *Config) { c.State.Backend = "redis" }},
		{"file backend without dir", func(c *Config) { c.State.Backend = "file"; c.State.Dir = "" }},
		{"observability without endpoint", func(c *Config) {
			c.Observability.Enabled = true
			c.Observability.OTLPEndpoint = ""
		}},
		{"bad otlp protocol", func(c *Config) {
			c.Observability.Enabled = true
			c.Observability.OTLPEndpoint = "localhost:4317"
			c.Observability.OTLPProtocol = "quic"
		}},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransform("WORKFLOWD_SERVER_PORT"))
	assert.Equal(t, "server.shutdown_timeout", envTransform("WORKFLOWD_SERVER_SHUTDOWN_TIMEOUT"))
	assert.Equal(t, "nats.url", envTransform("WORKFLOWD_NATS_URL"))
}
