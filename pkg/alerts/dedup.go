package alerts

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// shardCount is the lock-shard fan-out for the package's per-key maps:
// dedup records, burst records, and stored alerts.
const shardCount = 16

// shardIndex picks the lock shard for a key.
func shardIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// sampleIDLimit bounds the alert ids carried by a dedup record and surfaced
// in aggregated evidence.
const sampleIDLimit = 10

// TypeBurstDetected is the synthetic alert type emitted on burst.
const TypeBurstDetected = "BURST_DETECTED"

// DedupReason explains a deduplication verdict.
type DedupReason string

const (
	ReasonNew          DedupReason = "new"
	ReasonDeduplicated DedupReason = "deduplicated"
	ReasonAggregated   DedupReason = "aggregated"
	ReasonBurst        DedupReason = "burst"
)

// DedupResult is the deduplicator's verdict. Suppression is a value, not an
// error: ShouldAlert=false is an ordinary outcome on the hot path.
type DedupResult struct {
	ShouldAlert bool
	Reason      DedupReason
	// Alert is the alert to deliver when ShouldAlert: the original for
	// ReasonNew, a synthetic one for ReasonAggregated and ReasonBurst.
	Alert *Alert
	Count int
}

// alertRecord tracks one fingerprint within a dedup window. It lives only
// for the window's duration; superseded or deleted on flush.
type alertRecord struct {
	fingerprint string
	firstSeen   time.Time
	lastSeen    time.Time
	count       int
	mostSevere  *Alert
	alertIDs    []string
}

func (r *alertRecord) observe(a *Alert, now time.Time) {
	r.count++
	r.lastSeen = now
	if a.Severity.Rank() > r.mostSevere.Severity.Rank() {
		r.mostSevere = a
	}
	if len(r.alertIDs) < sampleIDLimit {
		r.alertIDs = append(r.alertIDs, a.ID)
	}
}

func newAlertRecord(fingerprint string, a *Alert, now time.Time) *alertRecord {
	return &alertRecord{
		fingerprint: fingerprint,
		firstSeen:   now,
		lastSeen:    now,
		count:       1,
		mostSevere:  a,
		alertIDs:    []string{a.ID},
	}
}

type dedupShard struct {
	mu      sync.Mutex
	records map[string]*alertRecord
}

// Deduplicator suppresses and aggregates repeated alerts within a time
// window, composing the Fingerprinter and BurstDetector.
type Deduplicator struct {
	shards         [shardCount]*dedupShard
	fingerprinter  *Fingerprinter
	burst          *BurstDetector
	window         time.Duration
	maxAggregation int
	neverDedup     map[string]struct{}
}

// NewDeduplicator creates a Deduplicator. Alert types in neverDedup bypass
// deduplication entirely; safety-critical classes must always surface.
func NewDeduplicator(fingerprinter *Fingerprinter, burst *BurstDetector, window time.Duration, maxAggregation int, neverDedup []string) *Deduplicator {
	d := &Deduplicator{
		fingerprinter:  fingerprinter,
		burst:          burst,
		window:         window,
		maxAggregation: maxAggregation,
		neverDedup:     make(map[string]struct{}, len(neverDedup)),
	}
	for i := range d.shards {
		d.shards[i] = &dedupShard{records: make(map[string]*alertRecord)}
	}
	for _, t := range neverDedup {
		d.neverDedup[t] = struct{}{}
	}
	return d
}

func (d *Deduplicator) shard(fingerprint string) *dedupShard {
	return d.shards[shardIndex(fingerprint)]
}

// Check decides whether the alert should be delivered, suppressed, or
// replaced by a synthetic aggregate or burst alert.
func (d *Deduplicator) Check(a *Alert, now time.Time) *DedupResult {
	// Safety-critical classes bypass dedup entirely.
	if _, ok := d.neverDedup[a.Type]; ok {
		return &DedupResult{ShouldAlert: true, Reason: ReasonNew, Alert: a, Count: 1}
	}

	fingerprint := d.fingerprinter.Fingerprint(a)

	// Burst check takes priority over normal dedup.
	if count, crossed := d.burst.Observe(fingerprint, now); crossed {
		return &DedupResult{
			ShouldAlert: true,
			Reason:      ReasonBurst,
			Alert:       d.burstAlert(a, fingerprint, count, now),
			Count:       count,
		}
	}

	sh := d.shard(fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	record, ok := sh.records[fingerprint]
	if !ok {
		sh.records[fingerprint] = newAlertRecord(fingerprint, a, now)
		return &DedupResult{ShouldAlert: true, Reason: ReasonNew, Alert: a, Count: 1}
	}

	if now.Sub(record.firstSeen) < d.window {
		record.observe(a, now)
		if record.count >= d.maxAggregation {
			agg := d.aggregate(record, now)
			delete(sh.records, fingerprint)
			return &DedupResult{ShouldAlert: true, Reason: ReasonAggregated, Alert: agg, Count: record.count}
		}
		return &DedupResult{ShouldAlert: false, Reason: ReasonDeduplicated, Count: record.count}
	}

	// Window expired: flush the old record as an aggregate and seed a new
	// window with the current alert. The current alert is folded into the
	// next window, not dropped and not delivered individually.
	agg := d.aggregate(record, now)
	sh.records[fingerprint] = newAlertRecord(fingerprint, a, now)
	return &DedupResult{ShouldAlert: true, Reason: ReasonAggregated, Alert: agg, Count: record.count}
}

// aggregate synthesizes a summary alert for a finished window. The most
// severe alert seen provides the template; the original is never mutated.
func (d *Deduplicator) aggregate(record *alertRecord, now time.Time) *Alert {
	agg := record.mostSevere.clone()
	agg.ID = uuid.New().String()
	agg.Timestamp = now
	agg.Message = fmt.Sprintf("[%dx] %s", record.count, record.mostSevere.Message)
	if agg.Evidence == nil {
		agg.Evidence = make(map[string]interface{}, 4)
	}
	agg.Evidence["aggregated_count"] = record.count
	agg.Evidence["first_seen"] = record.firstSeen
	agg.Evidence["last_seen"] = record.lastSeen
	agg.Evidence["sample_alert_ids"] = append([]string(nil), record.alertIDs...)
	return agg
}

// burstAlert synthesizes the one-per-window burst signal.
func (d *Deduplicator) burstAlert(a *Alert, fingerprint string, count int, now time.Time) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		Type:      TypeBurstDetected,
		Severity:  SeverityHigh,
		Message:   fmt.Sprintf("Burst detected: %d occurrences of %s within 60s", count, a.Type),
		Source:    a.Source,
		Timestamp: now,
		UserID:    a.UserID,
		TenantID:  a.TenantID,
		ToolName:  a.ToolName,
		Evidence: map[string]interface{}{
			"original_type": a.Type,
			"fingerprint":   fingerprint,
			"count":         count,
		},
		Tags: []string{"burst"},
	}
}

// Sweep removes records inactive beyond the dedup window and expired burst
// records. Returns the number of dedup records removed.
func (d *Deduplicator) Sweep(now time.Time) int {
	evicted := 0
	for _, sh := range d.shards {
		sh.mu.Lock()
		for fingerprint, record := range sh.records {
			if now.Sub(record.lastSeen) >= d.window {
				delete(sh.records, fingerprint)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	d.burst.Sweep(now)
	return evicted
}
