package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	meterName = "github.com/wolfeidau/bulkadmin"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Operation metrics
	OperationsSubmittedTotal metric.Int64Counter
	OperationsCompletedTotal metric.Int64Counter
	OperationsFailedTotal    metric.Int64Counter
	RowsRejectedTotal        metric.Int64Counter

	// Item metrics
	ItemsProcessedTotal   metric.Int64Counter
	LocalFailuresTotal    metric.Int64Counter
	ExternalFailuresTotal metric.Int64Counter
	ItemDuration          metric.Float64Histogram

	// Subscription metrics
	ActiveSubscriptions metric.Int64UpDownCounter
	EventsDroppedTotal  metric.Int64Counter

	// Provider metrics
	ProviderRequestsTotal metric.Int64Counter
	ProviderRetriesTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// InitMetrics installs a Prometheus exporter as the global meter provider.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Operation metrics
	m.OperationsSubmittedTotal, _ = meter.Int64Counter(
		"bulkadmin.operations.submitted.total",
		metric.WithDescription("Total number of bulk operations accepted"),
		metric.WithUnit("{operation}"),
	)

	m.OperationsCompletedTotal, _ = meter.Int64Counter(
		"bulkadmin.operations.completed.total",
		metric.WithDescription("Total number of bulk operations that ran to completion"),
		metric.WithUnit("{operation}"),
	)

	m.OperationsFailedTotal, _ = meter.Int64Counter(
		"bulkadmin.operations.failed.total",
		metric.WithDescription("Total number of bulk operations aborted by a fatal error"),
		metric.WithUnit("{operation}"),
	)

	m.RowsRejectedTotal, _ = meter.Int64Counter(
		"bulkadmin.rows.rejected.total",
		metric.WithDescription("Total number of submitted rows rejected by validation"),
		metric.WithUnit("{row}"),
	)

	// Item metrics
	m.ItemsProcessedTotal, _ = meter.Int64Counter(
		"bulkadmin.items.processed.total",
		metric.WithDescription("Total number of items processed"),
		metric.WithUnit("{item}"),
	)

	m.LocalFailuresTotal, _ = meter.Int64Counter(
		"bulkadmin.items.local_failures.total",
		metric.WithDescription("Total number of failed local mutations"),
		metric.WithUnit("{item}"),
	)

	m.ExternalFailuresTotal, _ = meter.Int64Counter(
		"bulkadmin.items.external_failures.total",
		metric.WithDescription("Total number of failed external sync mutations"),
		metric.WithUnit("{item}"),
	)

	m.ItemDuration, _ = meter.Float64Histogram(
		"bulkadmin.items.duration",
		metric.WithDescription("Duration of item processing including external sync"),
		metric.WithUnit("ms"),
	)

	// Subscription metrics
	m.ActiveSubscriptions, _ = meter.Int64UpDownCounter(
		"bulkadmin.subscriptions.active",
		metric.WithDescription("Number of active progress subscriptions"),
		metric.WithUnit("{subscription}"),
	)

	m.EventsDroppedTotal, _ = meter.Int64Counter(
		"bulkadmin.events.dropped.total",
		metric.WithDescription("Total number of progress events dropped for slow observers"),
		metric.WithUnit("{event}"),
	)

	// Provider metrics
	m.ProviderRequestsTotal, _ = meter.Int64Counter(
		"bulkadmin.provider.requests.total",
		metric.WithDescription("Total number of external provider requests"),
		metric.WithUnit("{request}"),
	)

	m.ProviderRetriesTotal, _ = meter.Int64Counter(
		"bulkadmin.provider.retries.total",
		metric.WithDescription("Total number of provider requests retried after a timeout"),
		metric.WithUnit("{retry}"),
	)

	return m
}
