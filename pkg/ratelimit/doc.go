// Package ratelimit implements the admission-control core of the gateway.
//
// Three layers guard every request, checked in priority order with
// short-circuiting: a global token bucket, per-tool token buckets matched by
// exact-then-glob patterns, and per-user sliding windows over trailing
// minute, hour, and day spans. Capacity is consumed only after every layer
// passes, and never rolled back afterwards.
//
// Manager composes the local limiter with an external QuotaTracker into a
// single HTTP-ready decision: limiter peeked first, quota second, and
// consumption (limiter state, then quota usage) strictly last.
//
// Denial is a value on the hot path: CheckResult.Allowed and
// CombinedResult.Allowed are ordinary return values, never errors. State is
// held in memory behind sharded per-key locks and bounded by a background
// sweep; nothing survives a process restart.
package ratelimit
