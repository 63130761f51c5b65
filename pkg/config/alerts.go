package config

import (
	"fmt"
	"time"
)

// AlertsConfig defines incident notification configuration.
type AlertsConfig struct {
	// Enabled controls whether alerting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// DedupWindow is the deduplication window (Go duration string).
	DedupWindow string `yaml:"dedup_window,omitempty" json:"dedup_window,omitempty"`

	// MaxAggregation is the occurrence count at which a dedup record is
	// force-flushed as an aggregated alert.
	MaxAggregation int `yaml:"max_aggregation,omitempty" json:"max_aggregation,omitempty"`

	// BurstThreshold is the per-fingerprint occurrence count within 60s
	// that triggers a single synthetic burst alert.
	BurstThreshold int `yaml:"burst_threshold,omitempty" json:"burst_threshold,omitempty"`

	// NeverDedup lists alert types that bypass deduplication entirely.
	NeverDedup []string `yaml:"never_dedup,omitempty" json:"never_dedup,omitempty"`

	// FingerprintFields overrides the identity fields used for
	// fingerprinting. Empty means the default set.
	FingerprintFields []string `yaml:"fingerprint_fields,omitempty" json:"fingerprint_fields,omitempty"`

	// ConsoleMinSeverity gates console output (CRITICAL..INFO).
	ConsoleMinSeverity string `yaml:"console_min_severity,omitempty" json:"console_min_severity,omitempty"`

	// StoreCapacity bounds the in-memory alert store.
	StoreCapacity int `yaml:"store_capacity,omitempty" json:"store_capacity,omitempty"`

	// Retention is how long stored alerts are kept (Go duration string).
	Retention string `yaml:"retention,omitempty" json:"retention,omitempty"`

	// SweepInterval is how often dedup records and expired alerts are purged.
	SweepInterval string `yaml:"sweep_interval,omitempty" json:"sweep_interval,omitempty"`

	// Channels configures delivery channels, keyed by channel name.
	Channels []ChannelConfig `yaml:"channels,omitempty" json:"channels,omitempty"`

	// Routes configures routing rules.
	Routes []RouteConfig `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// ChannelConfig configures a single delivery channel.
type ChannelConfig struct {
	// Name is the channel name routing rules refer to.
	Name string `yaml:"name" json:"name"`

	// Type is the transport: console, webhook, email, slack, pagerduty, audit.
	Type string `yaml:"type" json:"type"`

	// URL is the endpoint for webhook channels.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Headers are merged into outbound webhook requests.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Timeout bounds a single delivery attempt (Go duration string).
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RouteConfig matches alerts to a channel.
type RouteConfig struct {
	// Name identifies the rule in logs.
	Name string `yaml:"name" json:"name"`

	// Enabled controls whether the rule is evaluated.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Types restricts the rule to the listed alert types. Empty matches all.
	Types []string `yaml:"types,omitempty" json:"types,omitempty"`

	// MinSeverity is the minimum severity the rule matches (default INFO).
	MinSeverity string `yaml:"min_severity,omitempty" json:"min_severity,omitempty"`

	// TenantID restricts the rule to one tenant. Empty matches all.
	TenantID string `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`

	// Channel is the delivery channel name.
	Channel string `yaml:"channel" json:"channel"`
}

// IsEnabled returns true if alerting is enabled.
func (c *AlertsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// IsEnabled returns true if the route is enabled. Routes default to enabled.
func (r *RouteConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

var validChannelTypes = map[string]bool{
	"console":   true,
	"webhook":   true,
	"email":     true,
	"slack":     true,
	"pagerduty": true,
	"audit":     true,
}

var validSeverities = map[string]bool{
	"CRITICAL": true,
	"HIGH":     true,
	"MEDIUM":   true,
	"LOW":      true,
	"INFO":     true,
}

// SetDefaults sets default values for AlertsConfig.
func (c *AlertsConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.DedupWindow == "" {
		c.DedupWindow = "5m"
	}
	if c.MaxAggregation == 0 {
		c.MaxAggregation = 100
	}
	if c.BurstThreshold == 0 {
		c.BurstThreshold = 10
	}
	if len(c.NeverDedup) == 0 {
		c.NeverDedup = []string{"cross_tenant_access", "critical_risk_finding"}
	}
	if c.ConsoleMinSeverity == "" {
		c.ConsoleMinSeverity = "MEDIUM"
	}
	if c.StoreCapacity == 0 {
		c.StoreCapacity = 10000
	}
	if c.Retention == "" {
		c.Retention = "24h"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1m"
	}
	for i := range c.Channels {
		if c.Channels[i].Timeout == "" {
			c.Channels[i].Timeout = "5s"
		}
	}
}

// Validate validates the AlertsConfig.
func (c *AlertsConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}

	if _, err := time.ParseDuration(c.DedupWindow); err != nil {
		return fmt.Errorf("invalid dedup_window %q: %w", c.DedupWindow, err)
	}
	if _, err := time.ParseDuration(c.Retention); err != nil {
		return fmt.Errorf("invalid retention %q: %w", c.Retention, err)
	}
	if c.MaxAggregation < 2 {
		return fmt.Errorf("max_aggregation must be at least 2")
	}
	if c.BurstThreshold < 2 {
		return fmt.Errorf("burst_threshold must be at least 2")
	}
	if !validSeverities[c.ConsoleMinSeverity] {
		return fmt.Errorf("invalid console_min_severity %q", c.ConsoleMinSeverity)
	}
	if c.StoreCapacity <= 0 {
		return fmt.Errorf("store_capacity must be positive")
	}

	names := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d].name is required", i)
		}
		if names[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		names[ch.Name] = true
		if !validChannelTypes[ch.Type] {
			return fmt.Errorf("channels[%d]: invalid type %q", i, ch.Type)
		}
		if ch.Type == "webhook" && ch.URL == "" {
			return fmt.Errorf("channels[%d]: webhook channel requires url", i)
		}
		if _, err := time.ParseDuration(ch.Timeout); err != nil {
			return fmt.Errorf("channels[%d]: invalid timeout %q", i, ch.Timeout)
		}
	}

	for i, route := range c.Routes {
		if route.Channel == "" {
			return fmt.Errorf("routes[%d].channel is required", i)
		}
		if !names[route.Channel] {
			return fmt.Errorf("routes[%d]: unknown channel %q", i, route.Channel)
		}
		if route.MinSeverity != "" && !validSeverities[route.MinSeverity] {
			return fmt.Errorf("routes[%d]: invalid min_severity %q", i, route.MinSeverity)
		}
	}

	return nil
}

// DedupWindowDuration returns the parsed dedup window.
func (c *AlertsConfig) DedupWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.DedupWindow)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// RetentionDuration returns the parsed retention window.
func (c *AlertsConfig) RetentionDuration() time.Duration {
	d, err := time.ParseDuration(c.Retention)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// SweepIntervalDuration returns the parsed sweep interval.
func (c *AlertsConfig) SweepIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return time.Minute
	}
	return d
}
