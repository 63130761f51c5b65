package config

import (
	"fmt"
	"time"
)

// ServerConfig defines the HTTP server configuration.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the listen port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// ReadTimeout bounds request reads (Go duration string).
	ReadTimeout string `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// WriteTimeout bounds response writes (Go duration string).
	WriteTimeout string `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// ShutdownGrace bounds graceful shutdown (Go duration string).
	ShutdownGrace string `yaml:"shutdown_grace,omitempty" json:"shutdown_grace,omitempty"`
}

// SetDefaults sets default values for ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "10s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "30s"
	}
	if c.ShutdownGrace == "" {
		c.ShutdownGrace = "15s"
	}
}

// Validate validates the ServerConfig.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for field, value := range map[string]string{
		"read_timeout":   c.ReadTimeout,
		"write_timeout":  c.WriteTimeout,
		"shutdown_grace": c.ShutdownGrace,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
	}
	return nil
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig defines the metrics endpoint configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled returns true if metrics are enabled.
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults sets default values for MetricsConfig.
func (c *MetricsConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
}

// LoggingConfig defines logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is the log format (simple or verbose).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// File is an optional log file path; empty logs to stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// SetDefaults sets default values for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate validates the LoggingConfig.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level %q", c.Level)
	}
	return nil
}
