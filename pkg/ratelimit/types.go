package ratelimit

import (
	"strconv"
	"time"
)

// LimitType identifies which layer blocked a request.
type LimitType string

const (
	LimitGlobal LimitType = "global"
	LimitTool   LimitType = "tool"
	LimitUser   LimitType = "user"
	LimitTenant LimitType = "tenant"
)

// Window identifies a per-user sliding window period.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the trailing span of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// CheckResult is an admission decision. Denial is a value, never an error.
type CheckResult struct {
	Allowed           bool              `json:"allowed"`
	Limit             int64             `json:"limit"`
	Remaining         int64             `json:"remaining"`
	ResetMs           int64             `json:"reset_ms"`
	RetryAfterSeconds int64             `json:"retry_after_seconds,omitempty"`
	LimitType         LimitType         `json:"limit_type,omitempty"`
	Reason            string            `json:"reason,omitempty"`
	Headers           map[string]string `json:"-"`
}

// UserLimits holds per-user sliding window budgets.
type UserLimits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

// WindowStats describes one window of a user's current usage.
type WindowStats struct {
	Window    Window `json:"window"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetMs   int64  `json:"reset_ms"`
}

// UserStats is the admin view of a user's consumption.
type UserStats struct {
	UserID  string        `json:"user_id"`
	Windows []WindowStats `json:"windows"`
}

// rateLimitHeaders builds the standard response header set for a decision.
func rateLimitHeaders(limit, remaining int64, resetMs int64, retryAfterSeconds int64, now time.Time) map[string]string {
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(now.Add(time.Duration(resetMs)*time.Millisecond).Unix(), 10),
	}
	if retryAfterSeconds > 0 {
		headers["Retry-After"] = strconv.FormatInt(retryAfterSeconds, 10)
	}
	return headers
}
