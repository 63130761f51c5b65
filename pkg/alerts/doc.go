// Package alerts turns raw security and operational events into a bounded,
// de-duplicated, routed stream of alerts.
//
// Manager.Emit is the single entry point: an alert is fingerprinted over
// its identity fields, checked for bursts over a strict 60-second window,
// suppressed or aggregated within the deduplication window, and — when it
// survives — dispatched to every matching channel concurrently and stored
// in a capacity-bounded in-memory store.
//
// Suppression is a value: a suppressed alert is still returned to the
// caller, flagged Delivered=false. Alert types in the never-deduplicate set
// bypass suppression entirely. Channel failures are logged and isolated;
// delivery is never guaranteed.
package alerts
