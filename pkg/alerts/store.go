package alerts

import (
	"errors"
	"sync"
	"time"
)

// ErrAlertNotFound is returned when an alert id is unknown to the store.
var ErrAlertNotFound = errors.New("alert not found")

type storeShard struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// Store is a capacity-bounded in-memory alert store. When full, the
// globally-oldest alert is evicted; a retention purge removes alerts older
// than the retention window. Nothing survives a process restart.
//
// Alerts are lock-sharded by id; only the insertion-order bookkeeping takes
// a store-wide lock. Lock order is always orderMu before a shard lock.
type Store struct {
	shards [shardCount]*storeShard

	orderMu   sync.Mutex
	order     []string // insertion order, oldest first; compacted lazily
	count     int      // live alerts across all shards
	capacity  int
	retention time.Duration
}

// NewStore creates a Store with the given capacity and retention window.
func NewStore(capacity int, retention time.Duration) *Store {
	s := &Store{
		capacity:  capacity,
		retention: retention,
	}
	for i := range s.shards {
		s.shards[i] = &storeShard{alerts: make(map[string]*Alert)}
	}
	return s
}

func (s *Store) shard(id string) *storeShard {
	return s.shards[shardIndex(id)]
}

// Add stores an alert, evicting the oldest when at capacity.
func (s *Store) Add(a *Alert) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	for s.count >= s.capacity {
		s.evictOldestLocked()
	}
	s.order = append(s.order, a.ID)
	s.count++

	sh := s.shard(a.ID)
	sh.mu.Lock()
	sh.alerts[a.ID] = a
	sh.mu.Unlock()
}

// evictOldestLocked removes the oldest live alert, skipping ids already
// purged by retention. Caller holds orderMu.
func (s *Store) evictOldestLocked() {
	for len(s.order) > 0 {
		id := s.order[0]
		s.order = s.order[1:]

		sh := s.shard(id)
		sh.mu.Lock()
		_, live := sh.alerts[id]
		delete(sh.alerts, id)
		sh.mu.Unlock()

		if live {
			s.count--
			return
		}
	}
}

// Get returns a copy of the alert with the given id.
func (s *Store) Get(id string) (*Alert, bool) {
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	a, ok := sh.alerts[id]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// snapshotOrder copies the insertion order so queries can walk it without
// holding orderMu across shard lookups.
func (s *Store) snapshotOrder() []string {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	return append([]string(nil), s.order...)
}

// Recent returns up to n most recently stored alerts, newest first.
func (s *Store) Recent(n int) []*Alert {
	order := s.snapshotOrder()

	out := make([]*Alert, 0, n)
	for i := len(order) - 1; i >= 0 && len(out) < n; i-- {
		if a, ok := s.Get(order[i]); ok {
			out = append(out, a)
		}
	}
	return out
}

// Find returns copies of all alerts matching the filter, newest first.
func (s *Store) Find(f Filter) []*Alert {
	order := s.snapshotOrder()

	var out []*Alert
	for i := len(order) - 1; i >= 0; i-- {
		a, ok := s.Get(order[i])
		if !ok {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Stats computes aggregate counts via a full scan of the bounded store.
func (s *Store) Stats(now time.Time) *Stats {
	stats := &Stats{
		BySeverity: make(map[Severity]int),
		ByType:     make(map[string]int),
	}
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	for _, sh := range s.shards {
		sh.mu.RLock()
		stats.Total += len(sh.alerts)
		for _, a := range sh.alerts {
			stats.BySeverity[a.Severity]++
			stats.ByType[a.Type]++
			if a.Timestamp.After(hourAgo) {
				stats.LastHour++
			}
			if a.Timestamp.After(dayAgo) {
				stats.Last24Hours++
			}
			if !a.Acknowledged {
				stats.Unacknowledged++
			}
			if !a.Resolved {
				stats.Unresolved++
			}
		}
		sh.mu.RUnlock()
	}
	return stats
}

// Acknowledge marks an alert acknowledged. The transition is irreversible.
func (s *Store) Acknowledge(id string) error {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	a, ok := sh.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.Acknowledged = true
	return nil
}

// Resolve marks an alert resolved with optional notes. Irreversible.
func (s *Store) Resolve(id, notes string) error {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	a, ok := sh.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.Resolved = true
	a.ResolutionNotes = notes
	return nil
}

// Purge removes alerts older than the retention window. Returns the count.
func (s *Store) Purge(now time.Time) int {
	cutoff := now.Add(-s.retention)
	purged := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, a := range sh.alerts {
			if a.Timestamp.Before(cutoff) {
				delete(sh.alerts, id)
				purged++
			}
		}
		sh.mu.Unlock()
	}

	if purged > 0 {
		s.orderMu.Lock()
		s.count -= purged
		s.compactLocked()
		s.orderMu.Unlock()
	}
	return purged
}

// compactLocked drops order entries whose alerts are gone. Caller holds
// orderMu.
func (s *Store) compactLocked() {
	live := s.order[:0]
	for _, id := range s.order {
		sh := s.shard(id)
		sh.mu.RLock()
		_, ok := sh.alerts[id]
		sh.mu.RUnlock()
		if ok {
			live = append(live, id)
		}
	}
	s.order = live
}

// Len returns the number of stored alerts.
func (s *Store) Len() int {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	return s.count
}
