package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// DenyReason identifies which subsystem rejected a combined check.
type DenyReason string

const (
	ReasonRateLimit     DenyReason = "rate_limit"
	ReasonQuotaExceeded DenyReason = "quota_exceeded"
)

// QuotaDecision is the external quota tracker's verdict.
type QuotaDecision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// QuotaTracker is the external quota subsystem consumed by Manager.
type QuotaTracker interface {
	// CheckQuota verifies quota without recording usage.
	CheckQuota(ctx context.Context, userID, scope, quotaType string) (*QuotaDecision, error)

	// RecordUsage records one unit of usage after all checks pass.
	RecordUsage(ctx context.Context, userID, scope, quotaType string) error
}

// CombinedResult is an HTTP-ready decision merging rate limit and quota.
type CombinedResult struct {
	Allowed   bool              `json:"allowed"`
	Reason    DenyReason        `json:"reason,omitempty"`
	RateLimit *CheckResult      `json:"rate_limit,omitempty"`
	Quota     *QuotaDecision    `json:"quota,omitempty"`
	Headers   map[string]string `json:"-"`
}

// Manager composes the local RateLimiter with the external QuotaTracker.
//
// Ordering is load-bearing: the limiter is peeked first (cheap, local), the
// quota service is asked second, and only after both pass is anything
// consumed — limiter state first, quota usage last. Quota usage is never
// recorded for a request the limiter rejected, and limiter state is never
// consumed for a request quota rejected.
//
// Quota-service failure is fail-open: the request proceeds on limiter
// verdict alone and the failure is logged. The local limiter still bounds
// abuse while the quota service is down.
type Manager struct {
	limiter *RateLimiter
	quota   QuotaTracker
	scope   string
	log     *slog.Logger
}

// NewManager creates a Manager. quota may be nil, in which case combined
// checks degrade to plain rate limiting.
func NewManager(limiter *RateLimiter, quota QuotaTracker, scope string) *Manager {
	return &Manager{
		limiter: limiter,
		quota:   quota,
		scope:   scope,
		log:     slog.Default(),
	}
}

// Limiter exposes the underlying RateLimiter for admin operations.
func (m *Manager) Limiter() *RateLimiter {
	return m.limiter
}

// CheckLimits produces one combined admission decision.
func (m *Manager) CheckLimits(ctx context.Context, userID, toolName, quotaType string) *CombinedResult {
	// Rate limiter first, without consuming.
	pre := m.limiter.Peek(userID, toolName)
	if !pre.Allowed {
		return &CombinedResult{
			Allowed:   false,
			Reason:    ReasonRateLimit,
			RateLimit: pre,
			Headers:   pre.Headers,
		}
	}

	// Quota second.
	var decision *QuotaDecision
	if m.quota != nil {
		var err error
		decision, err = m.quota.CheckQuota(ctx, userID, m.scope, quotaType)
		if err != nil {
			// Fail open: admission availability wins, limiter still applies.
			m.log.Warn("Quota check failed, failing open", "user_id", userID, "quota_type", quotaType, "error", err)
			decision = nil
		} else if !decision.Allowed {
			return &CombinedResult{
				Allowed: false,
				Reason:  ReasonQuotaExceeded,
				Quota:   decision,
				Headers: quotaHeaders(decision),
			}
		}
	}

	// Consumption strictly last. Re-check on consume: a concurrent request
	// may have drained the last token since the peek.
	final := m.limiter.CheckLimit(userID, toolName)
	if !final.Allowed {
		return &CombinedResult{
			Allowed:   false,
			Reason:    ReasonRateLimit,
			RateLimit: final,
			Headers:   final.Headers,
		}
	}

	if m.quota != nil && decision != nil {
		if err := m.quota.RecordUsage(ctx, userID, m.scope, quotaType); err != nil {
			m.log.Warn("Quota usage recording failed", "user_id", userID, "quota_type", quotaType, "error", err)
		}
	}

	headers := make(map[string]string, len(final.Headers)+1)
	for k, v := range final.Headers {
		headers[k] = v
	}
	if decision != nil && decision.Limit > 0 {
		// Remaining reflects this admitted request.
		remaining := decision.Remaining - 1
		if remaining < 0 {
			remaining = 0
		}
		headers["X-Quota-Remaining"] = strconv.FormatInt(remaining, 10)
	}

	return &CombinedResult{
		Allowed:   true,
		RateLimit: final,
		Quota:     decision,
		Headers:   headers,
	}
}

func quotaHeaders(d *QuotaDecision) map[string]string {
	return map[string]string{
		"X-Quota-Limit":     strconv.FormatInt(d.Limit, 10),
		"X-Quota-Remaining": strconv.FormatInt(d.Remaining, 10),
		"X-Quota-Reset":     strconv.FormatInt(d.ResetAt.Unix(), 10),
	}
}
