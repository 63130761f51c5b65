package alerts

import (
	"sync"
	"time"
)

// burstWindow is the fixed rolling window for burst detection, independent
// of the deduplication window.
const burstWindow = 60 * time.Second

type burstRecord struct {
	windowStart time.Time
	count       int
	reported    bool
}

type burstShard struct {
	mu      sync.Mutex
	records map[string]*burstRecord
}

// BurstDetector counts per-fingerprint occurrences over a strict 60-second
// rolling window and reports the threshold crossing exactly once per window.
// Records are lock-sharded by fingerprint so unrelated alerts never contend
// on the emit path.
type BurstDetector struct {
	shards    [shardCount]*burstShard
	threshold int
}

// NewBurstDetector creates a detector with the given threshold.
func NewBurstDetector(threshold int) *BurstDetector {
	d := &BurstDetector{threshold: threshold}
	for i := range d.shards {
		d.shards[i] = &burstShard{records: make(map[string]*burstRecord)}
	}
	return d
}

// Observe counts one occurrence for the fingerprint. It returns the current
// window count and true exactly when the count first reaches the threshold
// within the window; the window is then marked reported, suppressing
// further signals until it rolls over.
func (d *BurstDetector) Observe(fingerprint string, now time.Time) (int, bool) {
	sh := d.shards[shardIndex(fingerprint)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	record, ok := sh.records[fingerprint]
	if !ok || now.Sub(record.windowStart) >= burstWindow {
		record = &burstRecord{windowStart: now}
		sh.records[fingerprint] = record
	}

	record.count++
	if record.count >= d.threshold && !record.reported {
		record.reported = true
		return record.count, true
	}
	return record.count, false
}

// Sweep drops records whose window has expired. Returns the eviction count.
func (d *BurstDetector) Sweep(now time.Time) int {
	evicted := 0
	for _, sh := range d.shards {
		sh.mu.Lock()
		for fingerprint, record := range sh.records {
			if now.Sub(record.windowStart) >= burstWindow {
				delete(sh.records, fingerprint)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}
