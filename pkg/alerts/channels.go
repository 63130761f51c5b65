package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kadirpekel/mcpgate/internal/httpclient"
)

// Channel delivers one alert over one transport. Implementations are
// registered with the Router; adding a transport never touches dispatch.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, a *Alert) error
}

// ConsoleChannel writes alerts to a writer, gated by a minimum severity.
type ConsoleChannel struct {
	name        string
	out         io.Writer
	minSeverity Severity
}

// NewConsoleChannel creates a console channel.
func NewConsoleChannel(name string, out io.Writer, minSeverity Severity) *ConsoleChannel {
	return &ConsoleChannel{name: name, out: out, minSeverity: minSeverity}
}

func (c *ConsoleChannel) Name() string { return c.name }

func (c *ConsoleChannel) Deliver(ctx context.Context, a *Alert) error {
	if !a.Severity.AtLeast(c.minSeverity) {
		return nil
	}
	_, err := fmt.Fprintf(c.out, "[%s] %s %s: %s (source=%s id=%s)\n",
		a.Timestamp.Format(time.RFC3339), a.Severity, a.Type, a.Message, a.Source, a.ID)
	return err
}

// WebhookChannel POSTs the full alert as JSON to a configured endpoint.
// Delivery carries its own bounded timeout so a slow endpoint cannot stall
// emission for unrelated alerts.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	timeout time.Duration
	client  *httpclient.Client
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(name, url string, headers map[string]string, timeout time.Duration, client *httpclient.Client) *WebhookChannel {
	if client == nil {
		client = httpclient.New()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{name: name, url: url, headers: headers, timeout: timeout, client: client}
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) Deliver(ctx context.Context, a *Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.PostJSON(ctx, c.url, c.headers, body); err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	return nil
}

// AuditChannel records alerts to the structured log as an audit trail.
type AuditChannel struct {
	name string
	log  *slog.Logger
}

// NewAuditChannel creates an audit log channel.
func NewAuditChannel(name string, log *slog.Logger) *AuditChannel {
	if log == nil {
		log = slog.Default()
	}
	return &AuditChannel{name: name, log: log}
}

func (c *AuditChannel) Name() string { return c.name }

func (c *AuditChannel) Deliver(ctx context.Context, a *Alert) error {
	c.log.Info("Security alert",
		"alert_id", a.ID,
		"type", a.Type,
		"severity", string(a.Severity),
		"message", a.Message,
		"source", a.Source,
		"user_id", a.UserID,
		"tenant_id", a.TenantID,
		"tool_name", a.ToolName,
	)
	return nil
}

// StubChannel stands in for transports not yet wired to a real provider
// (email, slack, pagerduty). It logs what would have been sent.
type StubChannel struct {
	name string
	kind string
	log  *slog.Logger
}

// NewStubChannel creates a stub channel of the given kind.
func NewStubChannel(name, kind string, log *slog.Logger) *StubChannel {
	if log == nil {
		log = slog.Default()
	}
	return &StubChannel{name: name, kind: kind, log: log}
}

func (c *StubChannel) Name() string { return c.name }

func (c *StubChannel) Deliver(ctx context.Context, a *Alert) error {
	c.log.Info("Alert delivery (stub)",
		"channel", c.name,
		"transport", c.kind,
		"alert_id", a.ID,
		"type", a.Type,
		"severity", string(a.Severity),
	)
	return nil
}
