package config

import "fmt"

// QuotaConfig defines the built-in tier-based quota tracker.
type QuotaConfig struct {
	// Enabled controls whether quota tracking is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// DefaultTier is the tier assigned to users without an explicit tier.
	DefaultTier string `yaml:"default_tier,omitempty" json:"default_tier,omitempty"`

	// Tiers maps a tier name to its per-quota-type daily budgets.
	Tiers map[string]TierConfig `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// TierConfig holds daily budgets per quota type for one tier.
type TierConfig struct {
	// Daily maps a quota type (e.g. "tool_calls") to a per-day budget.
	Daily map[string]int64 `yaml:"daily,omitempty" json:"daily,omitempty"`
}

// IsEnabled returns true if quota tracking is enabled.
func (c *QuotaConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults sets default values for QuotaConfig.
func (c *QuotaConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.DefaultTier == "" {
		c.DefaultTier = "free"
	}
	if len(c.Tiers) == 0 {
		c.Tiers = map[string]TierConfig{
			"free":       {Daily: map[string]int64{"tool_calls": 1000}},
			"pro":        {Daily: map[string]int64{"tool_calls": 20000}},
			"enterprise": {Daily: map[string]int64{"tool_calls": 200000}},
		}
	}
}

// Validate validates the QuotaConfig.
func (c *QuotaConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}

	if _, ok := c.Tiers[c.DefaultTier]; !ok {
		return fmt.Errorf("default_tier %q is not defined in tiers", c.DefaultTier)
	}
	for name, tier := range c.Tiers {
		for quotaType, limit := range tier.Daily {
			if limit <= 0 {
				return fmt.Errorf("tiers[%s].daily[%s] must be positive", name, quotaType)
			}
		}
	}
	return nil
}
