package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/mcpgate/internal/httpclient"
	"github.com/kadirpekel/mcpgate/pkg/config"
)

// Route matches alerts to a registered channel.
type Route struct {
	Name        string
	Types       map[string]struct{} // empty matches all types
	MinSeverity Severity
	TenantID    string // empty matches all tenants
	Channel     string
}

func (r *Route) matches(a *Alert) bool {
	if len(r.Types) > 0 {
		if _, ok := r.Types[a.Type]; !ok {
			return false
		}
	}
	if !a.Severity.AtLeast(r.MinSeverity) {
		return false
	}
	if r.TenantID != "" && r.TenantID != a.TenantID {
		return false
	}
	return true
}

// Router dispatches alerts to channels through routing rules. Channel
// deliveries for one alert fan out concurrently; one channel's failure is
// logged but never blocks or fails the others.
type Router struct {
	mu       sync.RWMutex
	channels map[string]Channel
	routes   []Route

	console *ConsoleChannel // built-in severity-gated console output
	log     *slog.Logger

	onFailure func(channel string) // metrics hook, may be nil
}

// NewRouter creates a Router with the built-in console output gated at
// consoleMin.
func NewRouter(consoleMin Severity, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		channels: make(map[string]Channel),
		console:  NewConsoleChannel("console", os.Stdout, consoleMin),
		log:      log,
	}
}

// OnDeliveryFailure installs a callback invoked per failed delivery.
func (r *Router) OnDeliveryFailure(fn func(channel string)) {
	r.onFailure = fn
}

// Register adds a channel to the lookup table.
func (r *Router) Register(c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.Name()] = c
}

// AddRoute registers a routing rule. The rule's channel must exist.
func (r *Router) AddRoute(route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[route.Channel]; !ok {
		return fmt.Errorf("unknown channel %q in route %q", route.Channel, route.Name)
	}
	r.routes = append(r.routes, route)
	return nil
}

// Dispatch delivers one alert: console first, then every matched channel
// concurrently. Failures are collected, logged, and discarded.
func (r *Router) Dispatch(ctx context.Context, a *Alert) {
	if err := r.console.Deliver(ctx, a); err != nil {
		r.log.Warn("Console delivery failed", "alert_id", a.ID, "error", err)
	}

	r.mu.RLock()
	matched := make(map[string]Channel)
	for _, route := range r.routes {
		if route.matches(a) {
			if ch, ok := r.channels[route.Channel]; ok {
				matched[route.Channel] = ch
			}
		}
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range matched {
		ch := ch
		g.Go(func() error {
			if err := ch.Deliver(gctx, a); err != nil {
				r.log.Warn("Alert delivery failed",
					"channel", ch.Name(), "alert_id", a.ID, "type", a.Type, "error", err)
				if r.onFailure != nil {
					r.onFailure(ch.Name())
				}
			}
			// Failures never propagate: per-channel isolation.
			return nil
		})
	}
	_ = g.Wait()
}

// buildRouter constructs a Router, its channels, and its routes from
// configuration.
func buildRouter(cfg *config.AlertsConfig, log *slog.Logger) (*Router, error) {
	router := NewRouter(Severity(cfg.ConsoleMinSeverity), log)

	for _, ch := range cfg.Channels {
		timeout, err := time.ParseDuration(ch.Timeout)
		if err != nil {
			return nil, fmt.Errorf("channel %q: invalid timeout: %w", ch.Name, err)
		}
		switch ch.Type {
		case "console":
			router.Register(NewConsoleChannel(ch.Name, os.Stdout, Severity(cfg.ConsoleMinSeverity)))
		case "webhook":
			router.Register(NewWebhookChannel(ch.Name, ch.URL, ch.Headers, timeout, httpclient.New()))
		case "audit":
			router.Register(NewAuditChannel(ch.Name, log))
		case "email", "slack", "pagerduty":
			router.Register(NewStubChannel(ch.Name, ch.Type, log))
		default:
			return nil, fmt.Errorf("channel %q: unknown type %q", ch.Name, ch.Type)
		}
	}

	for _, rc := range cfg.Routes {
		if !rc.IsEnabled() {
			continue
		}
		minSeverity := Severity(rc.MinSeverity)
		if rc.MinSeverity == "" {
			minSeverity = SeverityInfo
		}
		types := make(map[string]struct{}, len(rc.Types))
		for _, t := range rc.Types {
			types[t] = struct{}{}
		}
		route := Route{
			Name:        rc.Name,
			Types:       types,
			MinSeverity: minSeverity,
			TenantID:    rc.TenantID,
			Channel:     rc.Channel,
		}
		if err := router.AddRoute(route); err != nil {
			return nil, err
		}
	}

	return router, nil
}
