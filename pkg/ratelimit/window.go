package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const windowShardCount = 16

// windowPeriods are checked in order; the shortest period denies first.
var windowPeriods = []Window{WindowMinute, WindowHour, WindowDay}

// userWindows holds the raw request timestamps per period for one user.
// Timestamps are appended in arrival order, so index 0 is always oldest.
type userWindows struct {
	stamps map[Window][]time.Time
}

func newUserWindows() *userWindows {
	return &userWindows{stamps: map[Window][]time.Time{
		WindowMinute: nil,
		WindowHour:   nil,
		WindowDay:    nil,
	}}
}

// prune drops timestamps that have exited the trailing span.
// After prune, all remaining timestamps satisfy now-ts < window duration.
func (u *userWindows) prune(w Window, now time.Time) {
	span := w.Duration()
	stamps := u.stamps[w]
	cut := 0
	for cut < len(stamps) && now.Sub(stamps[cut]) >= span {
		cut++
	}
	if cut > 0 {
		u.stamps[w] = stamps[cut:]
	}
}

func (u *userWindows) empty() bool {
	for _, stamps := range u.stamps {
		if len(stamps) > 0 {
			return false
		}
	}
	return true
}

type windowShard struct {
	mu    sync.Mutex
	users map[string]*userWindows
}

// WindowDenial reports which period blocked a request.
type WindowDenial struct {
	Window  Window
	Limit   int
	ResetMs int64
}

// WindowTracker enforces per-user multi-period sliding windows. Denial is
// the enforcement mechanism: timestamps are never truncated to fit.
type WindowTracker struct {
	shards   [windowShardCount]*windowShard
	defaults UserLimits

	overridesMu sync.RWMutex
	overrides   map[string]UserLimits
}

// NewWindowTracker creates a tracker with the given default limits.
func NewWindowTracker(defaults UserLimits) *WindowTracker {
	t := &WindowTracker{
		defaults:  defaults,
		overrides: make(map[string]UserLimits),
	}
	for i := range t.shards {
		t.shards[i] = &windowShard{users: make(map[string]*userWindows)}
	}
	return t
}

func (t *WindowTracker) shard(userID string) *windowShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return t.shards[h.Sum32()%windowShardCount]
}

// LimitsFor returns the effective limits for a user.
func (t *WindowTracker) LimitsFor(userID string) UserLimits {
	t.overridesMu.RLock()
	defer t.overridesMu.RUnlock()
	if limits, ok := t.overrides[userID]; ok {
		return limits
	}
	return t.defaults
}

func (limits UserLimits) forWindow(w Window) int {
	switch w {
	case WindowMinute:
		return limits.PerMinute
	case WindowHour:
		return limits.PerHour
	case WindowDay:
		return limits.PerDay
	default:
		return limits.PerMinute
	}
}

// Check prunes each period and returns the first one over budget, or nil.
// Nothing is consumed.
func (t *WindowTracker) Check(userID string, now time.Time) *WindowDenial {
	limits := t.LimitsFor(userID)

	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	u, ok := sh.users[userID]
	if !ok {
		return nil
	}

	for _, w := range windowPeriods {
		u.prune(w, now)
		limit := limits.forWindow(w)
		stamps := u.stamps[w]
		if len(stamps) >= limit {
			resetMs := stamps[0].Add(w.Duration()).Sub(now).Milliseconds()
			if resetMs < 0 {
				resetMs = 0
			}
			return &WindowDenial{Window: w, Limit: limit, ResetMs: resetMs}
		}
	}
	return nil
}

// Record appends one timestamp to every period window for the user.
func (t *WindowTracker) Record(userID string, now time.Time) {
	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	u, ok := sh.users[userID]
	if !ok {
		u = newUserWindows()
		sh.users[userID] = u
	}
	for _, w := range windowPeriods {
		u.stamps[w] = append(u.stamps[w], now)
	}
}

// Stats reports current usage across all periods for a user.
func (t *WindowTracker) Stats(userID string, now time.Time) []WindowStats {
	limits := t.LimitsFor(userID)

	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stats := make([]WindowStats, 0, len(windowPeriods))
	u := sh.users[userID]
	for _, w := range windowPeriods {
		limit := limits.forWindow(w)
		used := 0
		var resetMs int64
		if u != nil {
			u.prune(w, now)
			stamps := u.stamps[w]
			used = len(stamps)
			if used > 0 {
				resetMs = stamps[0].Add(w.Duration()).Sub(now).Milliseconds()
				if resetMs < 0 {
					resetMs = 0
				}
			}
		}
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		stats = append(stats, WindowStats{
			Window:    w,
			Used:      used,
			Limit:     limit,
			Remaining: remaining,
			ResetMs:   resetMs,
		})
	}
	return stats
}

// Reset drops all windows for a user.
func (t *WindowTracker) Reset(userID string) {
	sh := t.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.users, userID)
}

// SetLimits overrides the limits for one user.
func (t *WindowTracker) SetLimits(userID string, limits UserLimits) {
	t.overridesMu.Lock()
	defer t.overridesMu.Unlock()
	t.overrides[userID] = limits
}

// SweepEmpty evicts users whose windows are all empty. Returns the count.
func (t *WindowTracker) SweepEmpty(now time.Time) int {
	evicted := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		for userID, u := range sh.users {
			for _, w := range windowPeriods {
				u.prune(w, now)
			}
			if u.empty() {
				delete(sh.users, userID)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

// Users returns the number of tracked users.
func (t *WindowTracker) Users() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		n += len(sh.users)
		sh.mu.Unlock()
	}
	return n
}
