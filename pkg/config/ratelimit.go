package config

import "fmt"

// RateLimitConfig defines admission control configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// GlobalMaxTokens is the capacity of the global token bucket.
	GlobalMaxTokens int64 `yaml:"global_max_tokens,omitempty" json:"global_max_tokens,omitempty"`

	// GlobalRefillRate is the global bucket refill rate in tokens per second.
	GlobalRefillRate float64 `yaml:"global_refill_rate,omitempty" json:"global_refill_rate,omitempty"`

	// UserPerMinute is the default per-user request budget over a trailing minute.
	UserPerMinute int `yaml:"user_per_minute,omitempty" json:"user_per_minute,omitempty"`

	// UserPerHour is the default per-user request budget over a trailing hour.
	UserPerHour int `yaml:"user_per_hour,omitempty" json:"user_per_hour,omitempty"`

	// UserPerDay is the default per-user request budget over a trailing day.
	UserPerDay int `yaml:"user_per_day,omitempty" json:"user_per_day,omitempty"`

	// ToolLimits defines per-tool rate limit rules. Exact patterns are
	// matched before glob patterns; first match wins.
	ToolLimits []ToolLimitRule `yaml:"tool_limits,omitempty" json:"tool_limits,omitempty"`

	// SweepInterval is how often idle buckets and empty user windows are
	// evicted (e.g. "1m"). Parsed as a Go duration string.
	SweepInterval string `yaml:"sweep_interval,omitempty" json:"sweep_interval,omitempty"`
}

// ToolLimitRule limits one tool (or a glob of tools) to a per-minute budget.
type ToolLimitRule struct {
	// Pattern is an exact tool name or a glob containing '*'.
	Pattern string `yaml:"pattern" json:"pattern"`

	// PerMinute is the request budget per minute for matching tools.
	PerMinute int `yaml:"per_minute" json:"per_minute"`

	// Reason documents why the rule exists; surfaced in denial responses.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// IsEnabled returns true if rate limiting is enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults sets default values for RateLimitConfig.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.GlobalMaxTokens == 0 {
		c.GlobalMaxTokens = 1000
	}
	if c.GlobalRefillRate == 0 {
		c.GlobalRefillRate = 100
	}
	if c.UserPerMinute == 0 {
		c.UserPerMinute = 60
	}
	if c.UserPerHour == 0 {
		c.UserPerHour = 1000
	}
	if c.UserPerDay == 0 {
		c.UserPerDay = 10000
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1m"
	}
}

// Validate validates the RateLimitConfig.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}

	if c.GlobalMaxTokens <= 0 {
		return fmt.Errorf("global_max_tokens must be positive")
	}
	if c.GlobalRefillRate <= 0 {
		return fmt.Errorf("global_refill_rate must be positive")
	}
	if c.UserPerMinute <= 0 || c.UserPerHour <= 0 || c.UserPerDay <= 0 {
		return fmt.Errorf("user window limits must be positive")
	}

	for i, rule := range c.ToolLimits {
		if rule.Pattern == "" {
			return fmt.Errorf("tool_limits[%d].pattern is required", i)
		}
		if rule.PerMinute <= 0 {
			return fmt.Errorf("tool_limits[%d].per_minute must be positive", i)
		}
	}

	return nil
}
