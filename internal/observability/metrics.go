// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// PendingCounter reports how many publish jobs are waiting.
type PendingCounter interface {
	CountPendingJobs(ctx context.Context) (int64, error)
}

// RegisterPendingJobsGauge registers an observable gauge that queries the store only when scraped.
func RegisterPendingJobsGauge(meterName string, counter PendingCounter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(meterName)
	_, err := meter.Int64ObservableGauge("contentplane.jobs.pending",
		otelmetric.WithDescription("Publish jobs waiting for their target time"),
		otelmetric.WithInt64Callback(func(ctx context.Context, obs otelmetric.Int64Observer) error {
			count, err := counter.CountPendingJobs(ctx)
			if err != nil {
				// A failed count must not break the scrape.
				logger.Warn("failed to count pending jobs", "error", err)
				return nil
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register pending jobs gauge: %w", err)
	}
	return nil
}
