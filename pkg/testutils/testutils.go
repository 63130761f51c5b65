// Package testutils provides shared fixtures for mcpgate tests.
package testutils

import (
	"time"

	"github.com/kadirpekel/mcpgate/pkg/config"
)

// TestConfig returns a minimal valid configuration for testing.
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	return cfg
}

// TestRateLimitConfig returns a small rate-limit configuration so tests
// can exhaust buckets and windows quickly.
func TestRateLimitConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		Enabled:          config.BoolPtr(true),
		GlobalMaxTokens:  10,
		GlobalRefillRate: 1,
		UserPerMinute:    5,
		UserPerHour:      100,
		UserPerDay:       1000,
		SweepInterval:    "1h",
	}
}

// TestAlertsConfig returns an alerts configuration with a short dedup
// window and tiny aggregation limit.
func TestAlertsConfig() *config.AlertsConfig {
	cfg := &config.AlertsConfig{
		Enabled:        config.BoolPtr(true),
		DedupWindow:    "5m",
		MaxAggregation: 3,
		BurstThreshold: 5,
		StoreCapacity:  100,
		Retention:      "24h",
		SweepInterval:  "1h",
	}
	cfg.SetDefaults()
	return cfg
}

// TestQuotaConfig returns a quota configuration with a single tracked
// quota type and a low free-tier limit.
func TestQuotaConfig() *config.QuotaConfig {
	return &config.QuotaConfig{
		Enabled:     config.BoolPtr(true),
		DefaultTier: "free",
		Tiers: map[string]config.TierConfig{
			"free": {Daily: map[string]int64{"tool_calls": 3}},
			"pro":  {Daily: map[string]int64{"tool_calls": 100}},
		},
	}
}

// FixedClock returns a clock function pinned to t, useful for
// deterministic bucket and window behavior in tests.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SteppingClock returns a clock that advances by step on every call.
func SteppingClock(start time.Time, step time.Duration) func() time.Time {
	cur := start
	return func() time.Time {
		now := cur
		cur = cur.Add(step)
		return now
	}
}
