package alerts

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedAlert(id string, ts time.Time) *Alert {
	a := testAlert()
	a.ID = id
	a.Timestamp = ts
	return a
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(3, 24*time.Hour)

	for i := 0; i < 3; i++ {
		store.Add(storedAlert(fmt.Sprintf("a-%d", i), now.Add(time.Duration(i)*time.Second)))
	}
	require.Equal(t, 3, store.Len())

	store.Add(storedAlert("a-3", now.Add(3*time.Second)))
	assert.Equal(t, 3, store.Len())

	_, ok := store.Get("a-0")
	assert.False(t, ok)
	_, ok = store.Get("a-3")
	assert.True(t, ok)
}

func TestStoreRecentNewestFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(100, 24*time.Hour)

	for i := 0; i < 5; i++ {
		store.Add(storedAlert(fmt.Sprintf("a-%d", i), now.Add(time.Duration(i)*time.Second)))
	}

	recent := store.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "a-4", recent[0].ID)
	assert.Equal(t, "a-3", recent[1].ID)
	assert.Equal(t, "a-2", recent[2].ID)
}

func TestStoreFind(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(100, 24*time.Hour)

	a := storedAlert("a-1", now)
	a.Type = "injection_attempt"
	a.UserID = "alice"
	store.Add(a)

	b := storedAlert("b-1", now.Add(time.Minute))
	b.Type = "auth_failure"
	b.Severity = SeverityMedium
	b.UserID = "bob"
	store.Add(b)

	found := store.Find(Filter{UserID: "alice"})
	require.Len(t, found, 1)
	assert.Equal(t, "a-1", found[0].ID)

	found = store.Find(Filter{Type: "auth_failure", Severity: SeverityMedium})
	require.Len(t, found, 1)
	assert.Equal(t, "b-1", found[0].ID)

	found = store.Find(Filter{Since: now.Add(30 * time.Second)})
	require.Len(t, found, 1)
	assert.Equal(t, "b-1", found[0].ID)

	assert.Len(t, store.Find(Filter{}), 2)
}

func TestStoreGetReturnsCopy(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(100, 24*time.Hour)

	a := storedAlert("a-1", now)
	a.Evidence = map[string]interface{}{"k": "v"}
	store.Add(a)

	got, ok := store.Get("a-1")
	require.True(t, ok)
	got.Evidence["k"] = "mutated"
	got.Acknowledged = true

	fresh, ok := store.Get("a-1")
	require.True(t, ok)
	assert.Equal(t, "v", fresh.Evidence["k"])
	assert.False(t, fresh.Acknowledged)
}

func TestStoreAcknowledgeAndResolve(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(100, 24*time.Hour)
	store.Add(storedAlert("a-1", now))

	require.NoError(t, store.Acknowledge("a-1"))
	require.NoError(t, store.Resolve("a-1", "false positive"))

	a, ok := store.Get("a-1")
	require.True(t, ok)
	assert.True(t, a.Acknowledged)
	assert.True(t, a.Resolved)
	assert.Equal(t, "false positive", a.ResolutionNotes)

	assert.ErrorIs(t, store.Acknowledge("missing"), ErrAlertNotFound)
	assert.ErrorIs(t, store.Resolve("missing", ""), ErrAlertNotFound)
}

func TestStoreStats(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(100, 24*time.Hour)

	recent := storedAlert("a-1", now.Add(-30*time.Minute))
	recent.Severity = SeverityCritical
	store.Add(recent)

	old := storedAlert("a-2", now.Add(-20*time.Hour))
	old.Type = "auth_failure"
	store.Add(old)
	require.NoError(t, store.Acknowledge("a-2"))

	stats := store.Stats(now)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.LastHour)
	assert.Equal(t, 2, stats.Last24Hours)
	assert.Equal(t, 1, stats.BySeverity[SeverityCritical])
	assert.Equal(t, 1, stats.ByType["auth_failure"])
	assert.Equal(t, 1, stats.Unacknowledged)
	assert.Equal(t, 2, stats.Unresolved)
}

func TestStoreConcurrentAddAndQuery(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(1000, 24*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Add(storedAlert(fmt.Sprintf("a-%d-%d", i, j), now))
				store.Get(fmt.Sprintf("a-%d-%d", i, j))
				store.Recent(5)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, store.Len())
	assert.Equal(t, 400, store.Stats(now).Total)
	assert.Len(t, store.Recent(500), 400)
}

func TestStorePurge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(100, 24*time.Hour)

	store.Add(storedAlert("old", now.Add(-25*time.Hour)))
	store.Add(storedAlert("fresh", now.Add(-time.Hour)))

	purged := store.Purge(now)
	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Get("old")
	assert.False(t, ok)

	// Recent stays consistent after compaction.
	recent := store.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].ID)
}
