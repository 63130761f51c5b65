package alerts

import (
	"time"
)

// Severity orders alerts from CRITICAL down to INFO.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank returns a comparable weight; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Alert is a security or operational alert. Created once by Manager.Emit;
// mutated only by Acknowledge/Resolve. The deduplicator never mutates an
// alert, it creates new aggregated ones instead.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	UserID    string `json:"user_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Evidence map[string]interface{} `json:"evidence,omitempty"`
	Tags     []string               `json:"tags,omitempty"`

	Acknowledged    bool   `json:"acknowledged"`
	Resolved        bool   `json:"resolved"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`

	// Delivered reports whether this alert value was actually routed and
	// stored. Suppressed (deduplicated) alerts come back with
	// Delivered=false so callers cannot mistake them for sent ones.
	Delivered bool `json:"delivered"`
}

// addTag appends a tag once, preserving set semantics over the slice.
func (a *Alert) addTag(tag string) {
	for _, existing := range a.Tags {
		if existing == tag {
			return
		}
	}
	a.Tags = append(a.Tags, tag)
}

// clone returns a shallow copy with its own evidence map and tag slice.
func (a *Alert) clone() *Alert {
	dup := *a
	if a.Evidence != nil {
		dup.Evidence = make(map[string]interface{}, len(a.Evidence))
		for k, v := range a.Evidence {
			dup.Evidence[k] = v
		}
	}
	dup.Tags = append([]string(nil), a.Tags...)
	return &dup
}

// Input is the caller-facing shape for Manager.Emit.
type Input struct {
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	UserID    string                 `json:"user_id,omitempty"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	ToolName  string                 `json:"tool_name,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Evidence  map[string]interface{} `json:"evidence,omitempty"`
}

// SecurityEvent is the convenience shape for gateway detectors. Severity is
// optional; when empty it is inferred from Type.
type SecurityEvent struct {
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity,omitempty"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	UserID    string                 `json:"user_id,omitempty"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	ToolName  string                 `json:"tool_name,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Evidence  map[string]interface{} `json:"evidence,omitempty"`
}

// Filter selects stored alerts. Zero fields match everything.
type Filter struct {
	Type     string    `json:"type,omitempty"`
	Severity Severity  `json:"severity,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	TenantID string    `json:"tenant_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
}

// Stats aggregates the bounded store's contents.
type Stats struct {
	Total          int              `json:"total"`
	BySeverity     map[Severity]int `json:"by_severity"`
	ByType         map[string]int   `json:"by_type"`
	LastHour       int              `json:"last_hour"`
	Last24Hours    int              `json:"last_24_hours"`
	Unacknowledged int              `json:"unacknowledged"`
	Unresolved     int              `json:"unresolved"`
}
