package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/mcpgate/pkg/config"
)

const toolBucketIdle = time.Hour

// RateLimiter layers a global token bucket, per-tool token buckets, and
// per-user sliding windows into a single admission decision. Checks run in
// priority order (global, tool, user) and short-circuit on first denial;
// consumption happens only after every layer passes.
//
// Consumption is at-least-once: once a request is admitted there is no
// rollback, even if the downstream tool call later fails.
type RateLimiter struct {
	enabled    bool
	globalMax  int64
	globalRate float64

	globalMu sync.Mutex
	global   *tokenBucket

	toolBuckets *BucketStore
	rulesMu     sync.RWMutex
	rules       []*toolRule

	windows *WindowTracker

	now           func() time.Time
	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
	log           *slog.Logger
}

// Option customizes a RateLimiter.
type Option func(*RateLimiter)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(l *RateLimiter) {
		l.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *RateLimiter) {
		l.log = log
	}
}

// New creates a RateLimiter from configuration and starts its background
// sweep. Callers must Close it at shutdown. A disabled config yields a
// pass-through limiter that admits every request without consuming anything.
func New(cfg *config.RateLimitConfig, opts ...Option) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	l := &RateLimiter{
		enabled:     cfg.IsEnabled(),
		globalMax:   cfg.GlobalMaxTokens,
		globalRate:  cfg.GlobalRefillRate,
		toolBuckets: NewBucketStore(),
		windows:     NewWindowTracker(UserLimits{PerMinute: cfg.UserPerMinute, PerHour: cfg.UserPerHour, PerDay: cfg.UserPerDay}),
		now:         time.Now,
		done:        make(chan struct{}),
		log:         slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.global = &tokenBucket{
		tokens:     float64(cfg.GlobalMaxTokens),
		lastRefill: l.now(),
		maxTokens:  cfg.GlobalMaxTokens,
		refillRate: cfg.GlobalRefillRate,
	}

	if !l.enabled {
		return l, nil
	}

	sweepInterval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep_interval: %w", err)
	}
	l.sweepInterval = sweepInterval

	for _, rule := range cfg.ToolLimits {
		if err := l.AddToolLimit(rule.Pattern, rule.PerMinute, rule.Reason); err != nil {
			return nil, err
		}
	}

	if l.sweepInterval > 0 {
		go l.sweepLoop()
	}

	return l, nil
}

// Close stops the background sweep.
func (l *RateLimiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// CheckLimit decides admission for one request and consumes capacity on
// success: one global token, one matched tool token, and one timestamp in
// each user window.
func (l *RateLimiter) CheckLimit(userID, toolName string) *CheckResult {
	return l.check(userID, toolName, true)
}

// Peek evaluates all layers without consuming anything. Used by Manager to
// avoid consuming rate-limit state for requests later rejected by quota.
func (l *RateLimiter) Peek(userID, toolName string) *CheckResult {
	return l.check(userID, toolName, false)
}

func (l *RateLimiter) check(userID, toolName string, consume bool) *CheckResult {
	if !l.enabled {
		return &CheckResult{Allowed: true}
	}

	now := l.now()

	// Layer 1: global bucket.
	gs := l.globalPeek(now)
	if gs.Tokens < 1 {
		return l.denied(LimitGlobal, l.globalMax, gs.ResetMs, "global rate limit exceeded", now)
	}

	// Layer 2: tool bucket, if a rule matches.
	rule := l.matchRule(toolName)
	if rule != nil {
		ts := l.toolPeek(rule, now)
		if ts.Tokens < 1 {
			reason := rule.reason
			if reason == "" {
				reason = fmt.Sprintf("tool %s rate limit exceeded", toolName)
			}
			return l.denied(LimitTool, int64(rule.perMinute), ts.ResetMs, reason, now)
		}
	}

	// Layer 3: per-user sliding windows, shortest period first.
	if denial := l.windows.Check(userID, now); denial != nil {
		reason := fmt.Sprintf("user rate limit exceeded for %s window", denial.Window)
		return l.denied(LimitUser, int64(denial.Limit), denial.ResetMs, reason, now)
	}

	if !consume {
		return l.allowed(gs, now)
	}

	// All layers passed: consume. A concurrent request may have taken the
	// last token between peek and consume; treat that as a denial.
	gs, ok := l.globalConsume(now)
	if !ok {
		return l.denied(LimitGlobal, l.globalMax, gs.ResetMs, "global rate limit exceeded", now)
	}
	if rule != nil {
		if _, ok := l.toolConsume(rule, now); !ok {
			reason := rule.reason
			if reason == "" {
				reason = fmt.Sprintf("tool %s rate limit exceeded", toolName)
			}
			return l.denied(LimitTool, int64(rule.perMinute), l.toolPeek(rule, now).ResetMs, reason, now)
		}
	}
	l.windows.Record(userID, now)

	return l.allowed(gs, now)
}

func (l *RateLimiter) allowed(gs BucketState, now time.Time) *CheckResult {
	remaining := int64(gs.Tokens)
	return &CheckResult{
		Allowed:   true,
		Limit:     l.globalMax,
		Remaining: remaining,
		ResetMs:   gs.ResetMs,
		Headers:   rateLimitHeaders(l.globalMax, remaining, gs.ResetMs, 0, now),
	}
}

func (l *RateLimiter) denied(limitType LimitType, limit int64, resetMs int64, reason string, now time.Time) *CheckResult {
	retryAfter := (resetMs + 999) / 1000
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &CheckResult{
		Allowed:           false,
		Limit:             limit,
		Remaining:         0,
		ResetMs:           resetMs,
		RetryAfterSeconds: retryAfter,
		LimitType:         limitType,
		Reason:            reason,
		Headers:           rateLimitHeaders(limit, 0, resetMs, retryAfter, now),
	}
}

func (l *RateLimiter) globalPeek(now time.Time) BucketState {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()
	l.global.refill(now)
	return BucketState{Tokens: l.global.tokens, MaxTokens: l.globalMax, ResetMs: l.global.resetMs()}
}

func (l *RateLimiter) globalConsume(now time.Time) (BucketState, bool) {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()
	l.global.refill(now)
	if l.global.tokens < 1 {
		return BucketState{Tokens: l.global.tokens, MaxTokens: l.globalMax, ResetMs: l.global.resetMs()}, false
	}
	l.global.tokens--
	return BucketState{Tokens: l.global.tokens, MaxTokens: l.globalMax, ResetMs: l.global.resetMs()}, true
}

func (l *RateLimiter) matchRule(toolName string) *toolRule {
	l.rulesMu.RLock()
	defer l.rulesMu.RUnlock()
	return matchToolRule(l.rules, toolName)
}

func (l *RateLimiter) toolPeek(rule *toolRule, now time.Time) BucketState {
	return l.toolBuckets.Peek(rule.pattern, int64(rule.perMinute), float64(rule.perMinute)/60.0, now)
}

func (l *RateLimiter) toolConsume(rule *toolRule, now time.Time) (BucketState, bool) {
	return l.toolBuckets.Consume(rule.pattern, int64(rule.perMinute), float64(rule.perMinute)/60.0, now)
}

// AddToolLimit registers a per-tool rule, replacing any existing rule for
// the same pattern. The replaced rule's bucket is dropped so the new limit
// takes effect immediately.
func (l *RateLimiter) AddToolLimit(pattern string, perMinute int, reason string) error {
	rule, err := compileToolRule(pattern, perMinute, reason)
	if err != nil {
		return err
	}

	l.rulesMu.Lock()
	defer l.rulesMu.Unlock()
	for i, existing := range l.rules {
		if existing.pattern == pattern {
			l.rules[i] = rule
			l.toolBuckets.Remove(pattern)
			return nil
		}
	}
	l.rules = append(l.rules, rule)
	return nil
}

// ReplaceToolLimits swaps the full rule set, dropping buckets of removed
// rules. Used by config hot reload.
func (l *RateLimiter) ReplaceToolLimits(rules []config.ToolLimitRule) error {
	compiled := make([]*toolRule, 0, len(rules))
	for _, r := range rules {
		rule, err := compileToolRule(r.Pattern, r.PerMinute, r.Reason)
		if err != nil {
			return err
		}
		compiled = append(compiled, rule)
	}

	l.rulesMu.Lock()
	defer l.rulesMu.Unlock()
	keep := make(map[string]bool, len(compiled))
	for _, rule := range compiled {
		keep[rule.pattern] = true
	}
	for _, old := range l.rules {
		if !keep[old.pattern] {
			l.toolBuckets.Remove(old.pattern)
		}
	}
	l.rules = compiled
	return nil
}

// GetUserStats reports a user's current window consumption.
func (l *RateLimiter) GetUserStats(userID string) *UserStats {
	return &UserStats{
		UserID:  userID,
		Windows: l.windows.Stats(userID, l.now()),
	}
}

// ResetUser drops all window state for a user.
func (l *RateLimiter) ResetUser(userID string) {
	l.windows.Reset(userID)
}

// UpdateUserLimits overrides the window budgets for one user.
func (l *RateLimiter) UpdateUserLimits(userID string, limits UserLimits) error {
	if limits.PerMinute <= 0 || limits.PerHour <= 0 || limits.PerDay <= 0 {
		return fmt.Errorf("user limits must be positive")
	}
	l.windows.SetLimits(userID, limits)
	return nil
}

// sweepLoop evicts empty user windows and idle tool buckets on a fixed
// interval. It takes the same sharded locks as the request path.
func (l *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := l.now()
			users := l.windows.SweepEmpty(now)
			buckets := l.toolBuckets.SweepIdle(toolBucketIdle, now)
			if users > 0 || buckets > 0 {
				l.log.Debug("Rate limiter sweep", "evicted_users", users, "evicted_buckets", buckets)
			}
		}
	}
}
