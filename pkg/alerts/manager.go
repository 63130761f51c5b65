package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/mcpgate/pkg/config"
)

// severityByType infers severity for detectors that do not assign one.
// Unrecognized types default to HIGH: fail safe toward over-alerting.
var severityByType = map[string]Severity{
	"prompt_injection":      SeverityCritical,
	"tool_poisoning":        SeverityCritical,
	"cross_tenant_access":   SeverityCritical,
	"critical_risk_finding": SeverityCritical,
	"credential_leak":       SeverityCritical,
	"injection_attempt":     SeverityHigh,
	"suspicious_tool_use":   SeverityHigh,
	"policy_violation":      SeverityMedium,
	"auth_failure":          SeverityMedium,
	"rate_limit_exceeded":   SeverityLow,
	"quota_exceeded":        SeverityLow,
	"config_change":         SeverityInfo,
}

// severityFor returns the inferred severity for an alert type.
func severityFor(alertType string) Severity {
	if s, ok := severityByType[alertType]; ok {
		return s
	}
	return SeverityHigh
}

// tagRules derive enrichment tags from substring matches on the type.
var tagRules = []struct {
	substr string
	tag    string
}{
	{"injection", "injection"},
	{"poisoning", "injection"},
	{"tenant", "tenant-security"},
	{"credential", "credentials"},
	{"rate_limit", "limits"},
	{"quota", "limits"},
	{"burst", "burst"},
}

// Manager is the public entry point of the alerting subsystem, tying
// deduplication, routing, and storage together.
type Manager struct {
	cfg    *config.AlertsConfig
	dedup  *Deduplicator
	router *Router
	store  *Store

	log          *slog.Logger
	now          func() time.Time
	syncDispatch bool
	emitHook     func(severity Severity, reason DedupReason)

	done      chan struct{}
	closeOnce sync.Once
	dispatch  sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerClock overrides the time source (used by tests).
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithManagerLogger overrides the logger.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithSyncDispatch makes dispatch block until all channels finish.
// Production dispatch is asynchronous; tests use this for determinism.
func WithSyncDispatch() ManagerOption {
	return func(m *Manager) {
		m.syncDispatch = true
	}
}

// WithEmitHook installs a callback invoked per emitted alert (metrics).
func WithEmitHook(fn func(severity Severity, reason DedupReason)) ManagerOption {
	return func(m *Manager) {
		m.emitHook = fn
	}
}

// NewManager builds the alerting pipeline from configuration and starts its
// background sweep. Callers must Close it at shutdown.
func NewManager(cfg *config.AlertsConfig, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alerts config: %w", err)
	}

	m := &Manager{
		cfg:  cfg,
		log:  slog.Default(),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	router, err := buildRouter(cfg, m.log)
	if err != nil {
		return nil, err
	}

	m.router = router
	m.dedup = NewDeduplicator(
		NewFingerprinter(cfg.FingerprintFields),
		NewBurstDetector(cfg.BurstThreshold),
		cfg.DedupWindowDuration(),
		cfg.MaxAggregation,
		cfg.NeverDedup,
	)
	m.store = NewStore(cfg.StoreCapacity, cfg.RetentionDuration())

	go m.sweepLoop(cfg.SweepIntervalDuration())

	return m, nil
}

// Router exposes the router for delivery-failure instrumentation.
func (m *Manager) Router() *Router {
	return m.router
}

// Close stops the background sweep and waits for in-flight dispatches.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.dispatch.Wait()
}

// Emit creates an alert from the input and runs it through deduplication,
// routing, and storage. The returned alert always carries a Delivered flag:
// suppressed alerts come back with Delivered=false and are neither stored
// nor routed.
func (m *Manager) Emit(in Input) *Alert {
	now := m.now()

	severity := in.Severity
	if severity.Rank() == 0 {
		severity = severityFor(in.Type)
	}

	alert := &Alert{
		ID:        uuid.New().String(),
		Type:      in.Type,
		Severity:  severity,
		Message:   in.Message,
		Source:    in.Source,
		Timestamp: now,
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		ToolName:  in.ToolName,
		RequestID: in.RequestID,
		Evidence:  in.Evidence,
	}
	m.enrich(alert)

	if !m.cfg.IsEnabled() {
		return alert
	}

	result := m.dedup.Check(alert, now)
	if m.emitHook != nil {
		m.emitHook(alert.Severity, result.Reason)
	}
	if !result.ShouldAlert {
		return alert
	}

	delivered := result.Alert
	delivered.Delivered = true
	// The store and the dispatch goroutine each own a copy: acknowledge and
	// resolve never touch the caller's value, and a caller mutating the
	// returned alert cannot race channel serialization.
	m.store.Add(delivered.clone())
	m.deliver(delivered.clone())

	// For aggregated and burst results the routed alert is a synthetic
	// one; the caller's alert itself was folded, not sent.
	return alert
}

// deliver dispatches asynchronously so a slow channel cannot stall the
// caller; channels carry their own bounded timeouts.
func (m *Manager) deliver(a *Alert) {
	if m.syncDispatch {
		m.router.Dispatch(context.Background(), a)
		return
	}
	m.dispatch.Add(1)
	go func() {
		defer m.dispatch.Done()
		m.router.Dispatch(context.Background(), a)
	}()
}

// enrich derives tags from the alert type plus a severity tag.
func (m *Manager) enrich(a *Alert) {
	for _, rule := range tagRules {
		if strings.Contains(strings.ToLower(a.Type), rule.substr) {
			a.addTag(rule.tag)
		}
	}
	a.addTag("severity:" + strings.ToLower(string(a.Severity)))
}

// HandleSecurityEvent converts a raw security event into an alert. The
// event's severity is honored when supplied; otherwise it is inferred from
// the event type. Returns nil for events without a type.
func (m *Manager) HandleSecurityEvent(ev SecurityEvent) *Alert {
	if ev.Type == "" {
		return nil
	}
	severity := ev.Severity
	if severity.Rank() == 0 {
		severity = severityFor(ev.Type)
	}
	return m.Emit(Input{
		Type:      ev.Type,
		Severity:  severity,
		Message:   ev.Message,
		Source:    ev.Source,
		UserID:    ev.UserID,
		TenantID:  ev.TenantID,
		ToolName:  ev.ToolName,
		RequestID: ev.RequestID,
		Evidence:  ev.Evidence,
	})
}

// Acknowledge marks a stored alert acknowledged.
func (m *Manager) Acknowledge(id string) error {
	return m.store.Acknowledge(id)
}

// Resolve marks a stored alert resolved with optional notes.
func (m *Manager) Resolve(id, notes string) error {
	return m.store.Resolve(id, notes)
}

// Alert returns a stored alert by id.
func (m *Manager) Alert(id string) (*Alert, bool) {
	return m.store.Get(id)
}

// Recent returns the n most recent stored alerts.
func (m *Manager) Recent(n int) []*Alert {
	return m.store.Recent(n)
}

// Find returns stored alerts matching the filter.
func (m *Manager) Find(f Filter) []*Alert {
	return m.store.Find(f)
}

// Stats aggregates the store's contents.
func (m *Manager) Stats() *Stats {
	return m.store.Stats(m.now())
}

// sweepLoop purges expired dedup records and retained alerts on a fixed
// interval. It takes the same sharded locks as the emit path.
func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := m.now()
			records := m.dedup.Sweep(now)
			purged := m.store.Purge(now)
			if records > 0 || purged > 0 {
				m.log.Debug("Alert sweep", "dedup_records", records, "purged_alerts", purged)
			}
		}
	}
}
