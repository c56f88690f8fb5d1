// Package telemetry exposes refresh and webhook metrics through an
// OpenTelemetry meter backed by a Prometheus registry.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope of all ambrose instruments.
const MeterName = "github.com/nhle/ambrose"

// Provider owns the meter provider and the registry it exports to.
type Provider struct {
	registry *prometheus.Registry
	provider metric.MeterProvider
	shutdown func(context.Context) error
}

// NewProvider creates a Prometheus-backed meter provider. When enabled is
// false a no-op provider is returned and Handler serves 404.
func NewProvider(enabled bool) (*Provider, error) {
	if !enabled {
		return &Provider{
			provider: noop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &Provider{registry: reg, provider: mp, shutdown: mp.Shutdown}, nil
}

// MeterProvider returns the underlying provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.provider
}

// Handler serves the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// Metrics holds the instruments recorded by the refresh engine, the
// scheduler and the webhook handlers. A nil *Metrics records nothing.
type Metrics struct {
	refreshDuration metric.Float64Histogram
	taskChanges     metric.Int64Counter
	providerErrors  metric.Int64Counter
	webhooks        metric.Int64Counter
}

// NewMetrics creates the instruments. If provider is nil, it returns nil.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(MeterName)

	refreshDuration, err := meter.Float64Histogram(
		"ambrose_refresh_duration_seconds",
		metric.WithDescription("Duration of account refreshes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}
	taskChanges, err := meter.Int64Counter(
		"ambrose_task_changes_total",
		metric.WithDescription("Number of observed task value changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}
	providerErrors, err := meter.Int64Counter(
		"ambrose_provider_errors_total",
		metric.WithDescription("Number of failed provider calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	webhooks, err := meter.Int64Counter(
		"ambrose_webhooks_total",
		metric.WithDescription("Number of received webhook deliveries"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		refreshDuration: refreshDuration,
		taskChanges:     taskChanges,
		providerErrors:  providerErrors,
		webhooks:        webhooks,
	}, nil
}

// RecordRefresh records the duration and outcome of one account refresh.
func (m *Metrics) RecordRefresh(ctx context.Context, provider string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.refreshDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
}

// AddTaskChanges counts task values that changed.
func (m *Metrics) AddTaskChanges(ctx context.Context, provider string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.taskChanges.Add(ctx, int64(n), metric.WithAttributes(attribute.String("provider", provider)))
}

// AddProviderError counts a failed provider call.
func (m *Metrics) AddProviderError(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// AddWebhook counts a webhook delivery by provider and outcome.
func (m *Metrics) AddWebhook(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
