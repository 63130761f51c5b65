package ratelimit

import (
	"hash/fnv"
	"math"
	"sync"
	"time"
)

const bucketShardCount = 16

// tokenBucket is a lazily refilled token bucket. Refill happens at check
// time; there is no background ticker. Invariant: 0 <= tokens <= maxTokens.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	maxTokens  int64
	refillRate float64 // tokens per second
	lastUsed   time.Time
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(float64(b.maxTokens), b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// resetMs estimates how long until one full token is available.
func (b *tokenBucket) resetMs() int64 {
	if b.tokens >= 1 {
		return 0
	}
	return int64(math.Ceil((1 - b.tokens) / b.refillRate * 1000))
}

// BucketState is a read-only snapshot returned to callers.
type BucketState struct {
	Tokens    float64
	MaxTokens int64
	ResetMs   int64
}

type bucketShard struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// BucketStore holds keyed token buckets behind sharded locks so concurrent
// checks for unrelated keys do not contend.
type BucketStore struct {
	shards [bucketShardCount]*bucketShard
}

// NewBucketStore creates an empty bucket store.
func NewBucketStore() *BucketStore {
	s := &BucketStore{}
	for i := range s.shards {
		s.shards[i] = &bucketShard{buckets: make(map[string]*tokenBucket)}
	}
	return s
}

func (s *BucketStore) shard(key string) *bucketShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%bucketShardCount]
}

// get returns the bucket for key, creating it full if absent.
// Caller must hold the shard lock.
func (sh *bucketShard) get(key string, maxTokens int64, rate float64, now time.Time) *tokenBucket {
	b, ok := sh.buckets[key]
	if !ok {
		b = &tokenBucket{
			tokens:     float64(maxTokens),
			lastRefill: now,
			maxTokens:  maxTokens,
			refillRate: rate,
			lastUsed:   now,
		}
		sh.buckets[key] = b
	}
	return b
}

// Peek refills the bucket and reports its state without consuming a token.
// The bucket is created full on first sight of the key.
func (s *BucketStore) Peek(key string, maxTokens int64, rate float64, now time.Time) BucketState {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b := sh.get(key, maxTokens, rate, now)
	b.refill(now)
	b.lastUsed = now
	return BucketState{Tokens: b.tokens, MaxTokens: b.maxTokens, ResetMs: b.resetMs()}
}

// Consume refills the bucket then takes one token if available.
func (s *BucketStore) Consume(key string, maxTokens int64, rate float64, now time.Time) (BucketState, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b := sh.get(key, maxTokens, rate, now)
	b.refill(now)
	b.lastUsed = now

	if b.tokens < 1 {
		return BucketState{Tokens: b.tokens, MaxTokens: b.maxTokens, ResetMs: b.resetMs()}, false
	}
	b.tokens--
	return BucketState{Tokens: b.tokens, MaxTokens: b.maxTokens, ResetMs: b.resetMs()}, true
}

// Remove deletes the bucket for key, if present.
func (s *BucketStore) Remove(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.buckets, key)
}

// SweepIdle evicts buckets not used within idleFor. Returns the eviction count.
func (s *BucketStore) SweepIdle(idleFor time.Duration, now time.Time) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, b := range sh.buckets {
			if now.Sub(b.lastUsed) > idleFor {
				delete(sh.buckets, key)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

// Len returns the number of live buckets.
func (s *BucketStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}
