// Package observability exposes gateway metrics through an OpenTelemetry
// meter backed by the Prometheus exporter.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kadirpekel/mcpgate/pkg/config"
)

// Metrics records admission and alerting metrics. The zero value (disabled
// config) is a no-op: every recorder nil-checks its instrument.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	admissionDecisions metric.Int64Counter
	admissionDuration  metric.Float64Histogram
	alertsEmitted      metric.Int64Counter
	deliveryFailures   metric.Int64Counter
}

// InitMetrics creates the meter provider and instruments.
func InitMetrics(cfg config.MetricsConfig) (*Metrics, error) {
	if !cfg.IsEnabled() {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("mcpgate")

	admissionDecisions, err := meter.Int64Counter(
		"mcpgate_admission_decisions_total",
		metric.WithDescription("Total admission decisions by layer and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission counter: %w", err)
	}

	admissionDuration, err := meter.Float64Histogram(
		"mcpgate_admission_check_duration_seconds",
		metric.WithDescription("Admission check duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission histogram: %w", err)
	}

	alertsEmitted, err := meter.Int64Counter(
		"mcpgate_alerts_emitted_total",
		metric.WithDescription("Total alerts emitted by severity and dedup verdict"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alerts counter: %w", err)
	}

	deliveryFailures, err := meter.Int64Counter(
		"mcpgate_alert_delivery_failures_total",
		metric.WithDescription("Total alert channel delivery failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery failures counter: %w", err)
	}

	return &Metrics{
		provider:           provider,
		admissionDecisions: admissionDecisions,
		admissionDuration:  admissionDuration,
		alertsEmitted:      alertsEmitted,
		deliveryFailures:   deliveryFailures,
	}, nil
}

// RecordAdmission counts one admission decision.
func (m *Metrics) RecordAdmission(ctx context.Context, layer string, allowed bool, elapsed time.Duration) {
	if m.admissionDecisions == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("layer", layer),
		attribute.Bool("allowed", allowed),
	)
	m.admissionDecisions.Add(ctx, 1, attrs)
	m.admissionDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordAlert counts one emitted alert.
func (m *Metrics) RecordAlert(ctx context.Context, severity, verdict string) {
	if m.alertsEmitted == nil {
		return
	}
	m.alertsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
		attribute.String("verdict", verdict),
	))
}

// RecordDeliveryFailure counts one failed channel delivery.
func (m *Metrics) RecordDeliveryFailure(ctx context.Context, channel string) {
	if m.deliveryFailures == nil {
		return
	}
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
	))
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
