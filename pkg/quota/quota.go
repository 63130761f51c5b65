// Package quota provides an in-memory tier-based implementation of the
// gateway's QuotaTracker interface. Each user belongs to a tier; each tier
// carries per-quota-type daily budgets. Usage lives in fixed 24h windows
// starting at first use and is not persisted across restarts.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/mcpgate/pkg/config"
	"github.com/kadirpekel/mcpgate/pkg/ratelimit"
)

type usageKey struct {
	UserID    string
	QuotaType string
}

type usageRecord struct {
	Count     int64
	WindowEnd time.Time
}

// Tracker is a thread-safe in-memory QuotaTracker.
type Tracker struct {
	cfg *config.QuotaConfig

	mu    sync.Mutex
	tiers map[string]string // userID -> tier name
	usage map[usageKey]*usageRecord

	now func() time.Time
}

// Compile-time interface check.
var _ ratelimit.QuotaTracker = (*Tracker)(nil)

// NewTracker creates a Tracker from configuration.
func NewTracker(cfg *config.QuotaConfig) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quota config: %w", err)
	}
	return &Tracker{
		cfg:   cfg,
		tiers: make(map[string]string),
		usage: make(map[usageKey]*usageRecord),
		now:   time.Now,
	}, nil
}

// limitFor returns the daily budget for a user's tier and quota type.
// A zero return means the quota type is untracked (unlimited).
func (t *Tracker) limitFor(userID, quotaType string) int64 {
	tierName, ok := t.tiers[userID]
	if !ok {
		tierName = t.cfg.DefaultTier
	}
	tier, ok := t.cfg.Tiers[tierName]
	if !ok {
		return 0
	}
	return tier.Daily[quotaType]
}

// CheckQuota verifies quota without recording usage.
func (t *Tracker) CheckQuota(ctx context.Context, userID, scope, quotaType string) (*ratelimit.QuotaDecision, error) {
	if !t.cfg.IsEnabled() {
		return &ratelimit.QuotaDecision{Allowed: true}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.limitFor(userID, quotaType)
	if limit <= 0 {
		return &ratelimit.QuotaDecision{Allowed: true}, nil
	}

	now := t.now()
	key := usageKey{UserID: userID, QuotaType: quotaType}
	record, ok := t.usage[key]
	if !ok || record.WindowEnd.Before(now) {
		return &ratelimit.QuotaDecision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   now.Add(24 * time.Hour),
		}, nil
	}

	remaining := limit - record.Count
	if remaining < 0 {
		remaining = 0
	}
	return &ratelimit.QuotaDecision{
		Allowed:   record.Count < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   record.WindowEnd,
	}, nil
}

// RecordUsage records one unit of usage for the quota type.
func (t *Tracker) RecordUsage(ctx context.Context, userID, scope, quotaType string) error {
	if !t.cfg.IsEnabled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limitFor(userID, quotaType) <= 0 {
		return nil
	}

	now := t.now()
	key := usageKey{UserID: userID, QuotaType: quotaType}
	record, ok := t.usage[key]
	if !ok || record.WindowEnd.Before(now) {
		t.usage[key] = &usageRecord{Count: 1, WindowEnd: now.Add(24 * time.Hour)}
		return nil
	}
	record.Count++
	return nil
}

// SetTier assigns a user to a tier.
func (t *Tracker) SetTier(userID, tier string) error {
	if _, ok := t.cfg.Tiers[tier]; !ok {
		return fmt.Errorf("unknown tier %q", tier)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tiers[userID] = tier
	return nil
}

// ResetQuotas drops all usage for a user across quota types.
func (t *Tracker) ResetQuotas(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.usage {
		if key.UserID == userID {
			delete(t.usage, key)
		}
	}
}
