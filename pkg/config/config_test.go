package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.True(t, cfg.RateLimit.IsEnabled())
	assert.Equal(t, int64(1000), cfg.RateLimit.GlobalMaxTokens)
	assert.Equal(t, 60, cfg.RateLimit.UserPerMinute)
	assert.True(t, cfg.Alerts.IsEnabled())
	assert.Equal(t, "5m", cfg.Alerts.DedupWindow)
	assert.Equal(t, 10000, cfg.Alerts.StoreCapacity)
	assert.Contains(t, cfg.Alerts.NeverDedup, "cross_tenant_access")
	assert.Equal(t, "free", cfg.Quota.DefaultTier)
}

func TestParseAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "9090")

	cfg, err := Parse([]byte(`
server:
  port: ${GATEWAY_PORT}
rate_limit:
  global_max_tokens: 50
alerts:
  burst_threshold: 20
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(50), cfg.RateLimit.GlobalMaxTokens)
	// Untouched fields fall back to defaults.
	assert.Equal(t, float64(100), cfg.RateLimit.GlobalRefillRate)
	assert.Equal(t, 20, cfg.Alerts.BurstThreshold)
	assert.Equal(t, 100, cfg.Alerts.MaxAggregation)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "server: ["},
		{"bad port", "server:\n  port: 99999"},
		{"bad log level", "logging:\n  level: loud"},
		{"bad dedup window", "alerts:\n  dedup_window: soon"},
		{"bad tool limit", "rate_limit:\n  tool_limits:\n    - pattern: db_*\n      per_minute: -1"},
		{"unknown default tier", "quota:\n  default_tier: platinum"},
		{"route without channel", "alerts:\n  routes:\n    - name: r\n      channel: nowhere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestAlertsConfigValidation(t *testing.T) {
	cfg := &AlertsConfig{Enabled: BoolPtr(true)}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	cfg.MaxAggregation = 1
	assert.Error(t, cfg.Validate())

	cfg.SetDefaults()
	cfg.MaxAggregation = 100
	cfg.Channels = []ChannelConfig{{Name: "hook", Type: "webhook", URL: "http://x", Timeout: "oops"}}
	assert.Error(t, cfg.Validate())
}

func TestAlertsDurationHelpers(t *testing.T) {
	cfg := &AlertsConfig{Enabled: BoolPtr(true)}
	cfg.SetDefaults()

	assert.Equal(t, "5m0s", cfg.DedupWindowDuration().String())
	assert.Equal(t, "24h0m0s", cfg.RetentionDuration().String())
	assert.Equal(t, "1m0s", cfg.SweepIntervalDuration().String())
}

func TestRouteConfigDefaultsToEnabled(t *testing.T) {
	r := &RouteConfig{Name: "r"}
	assert.True(t, r.IsEnabled())
	r.Enabled = BoolPtr(false)
	assert.False(t, r.IsEnabled())
}

func TestDisabledSectionsSkipValidation(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.Enabled = BoolPtr(false)
	cfg.RateLimit.GlobalMaxTokens = -5
	assert.NoError(t, cfg.Validate())
}
