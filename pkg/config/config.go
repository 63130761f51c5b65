package config

import (
	"fmt"
)

// Config is the root configuration for the gateway core.
type Config struct {
	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Metrics configures the OpenTelemetry/Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// RateLimit configures admission control.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	// Quota configures the built-in tier-based quota tracker.
	Quota QuotaConfig `yaml:"quota,omitempty" json:"quota,omitempty"`

	// Alerts configures incident notification.
	Alerts AlertsConfig `yaml:"alerts,omitempty" json:"alerts,omitempty"`
}

// SetDefaults sets default values for all sections.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Metrics.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Quota.SetDefaults()
	c.Alerts.SetDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}
	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	return nil
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}
