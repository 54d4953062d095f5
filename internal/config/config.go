// Package config provides configuration loading for workflowd.
package config

import (
	"fmt"
)

// Config is the full workflowd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	NATS          NATSConfig          `koanf:"nats"`
	State         StateConfig         `koanf:"state"`
	Engine        EngineConfig        `koanf:"engine"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPProtocol string `koanf:"otlp_protocol"`
	Insecure     bool   `koanf:"insecure"`
}

// NATSConfig configures event publishing.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// StateConfig configures task persistence.
type StateConfig struct {
	// Backend is "memory" or "file".
	Backend string `koanf:"backend"`
	// Dir is the state directory for the file backend.
	Dir string `koanf:"dir"`
}

// EngineConfig configures orchestration behavior.
type EngineConfig struct {
	// AutoStart starts workflows immediately on submission.
	AutoStart bool `koanf:"auto_start"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9790,
			ShutdownTimeout: Duration(defaultShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName:  "workflowd",
			OTLPProtocol: "grpc",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		State: StateConfig{
			Backend: "memory",
		},
		Engine: EngineConfig{
			AutoStart: true,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q: must be json or console", c.Logging.Format)
	}
	switch c.State.Backend {
	case "memory":
	case "file":
		if c.State.Dir == "" {
			return fmt.Errorf("state.dir is required for the file backend")
		}
	default:
		return fmt.Errorf("state.backend %q: must be memory or file", c.State.Backend)
	}
	if c.Observability.Enabled {
		switch c.Observability.OTLPProtocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("observability.otlp_protocol %q: must be grpc or http", c.Observability.OTLPProtocol)
		}
		if c.Observability.OTLPEndpoint == "" {
			return fmt.Errorf("observability.otlp_endpoint is required when observability is enabled")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	return nil
}
