package alerts

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstDetectorCrossesOncePerWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewBurstDetector(3)

	_, crossed := d.Observe("fp", now)
	assert.False(t, crossed)
	_, crossed = d.Observe("fp", now.Add(time.Second))
	assert.False(t, crossed)

	count, crossed := d.Observe("fp", now.Add(2*time.Second))
	require.True(t, crossed)
	assert.Equal(t, 3, count)

	// Further occurrences in the same window stay silent.
	for i := 0; i < 10; i++ {
		_, crossed = d.Observe("fp", now.Add(10*time.Second))
		assert.False(t, crossed)
	}
}

func TestBurstDetectorWindowRollsOver(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewBurstDetector(2)

	_, crossed := d.Observe("fp", now)
	require.False(t, crossed)
	_, crossed = d.Observe("fp", now)
	require.True(t, crossed)

	// 60s later the window restarts and the threshold can fire again.
	later := now.Add(burstWindow)
	_, crossed = d.Observe("fp", later)
	assert.False(t, crossed)
	count, crossed := d.Observe("fp", later)
	assert.True(t, crossed)
	assert.Equal(t, 2, count)
}

func TestBurstDetectorFingerprintsIndependent(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewBurstDetector(2)

	_, crossed := d.Observe("fp-a", now)
	require.False(t, crossed)
	_, crossed = d.Observe("fp-b", now)
	assert.False(t, crossed)

	_, crossed = d.Observe("fp-a", now)
	assert.True(t, crossed)
}

func TestBurstDetectorConcurrentObserve(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewBurstDetector(5)

	// Many goroutines on distinct fingerprints: each fingerprint must cross
	// exactly once, and counts must not bleed between them.
	var wg sync.WaitGroup
	crossings := make([]int, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d", i)
			for j := 0; j < 10; j++ {
				if _, crossed := d.Observe(fp, now.Add(time.Duration(j)*time.Second)); crossed {
					crossings[i]++
				}
			}
		}(i)
	}
	wg.Wait()

	for i, n := range crossings {
		assert.Equal(t, 1, n, "fingerprint %d", i)
	}
}

func TestBurstDetectorSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewBurstDetector(5)

	d.Observe("old", now)
	d.Observe("fresh", now.Add(30*time.Second))

	evicted := d.Sweep(now.Add(61 * time.Second))
	assert.Equal(t, 1, evicted)
}
