// Package observability provides the Prometheus registry and the metrics HTTP endpoint.
// Error telemetry is handled by the errors package Sentry reporter.
package observability

import (
	"fmt"
	stdlog "log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/killclip/internal/logger"
	"github.com/tphakala/killclip/internal/observability/metrics"
)

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Handoff    *metrics.HandoffMetrics
	Processing *metrics.ProcessingMetrics
	Delivery   *metrics.DeliveryMetrics
	Capture    *metrics.CaptureMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry, including
// the Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	handoffMetrics, err := metrics.NewHandoffMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create handoff metrics: %w", err)
	}
	processingMetrics, err := metrics.NewProcessingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing metrics: %w", err)
	}
	deliveryMetrics, err := metrics.NewDeliveryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery metrics: %w", err)
	}
	captureMetrics, err := metrics.NewCaptureMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Handoff:    handoffMetrics,
		Processing: processingMetrics,
		Delivery:   deliveryMetrics,
		Capture:    captureMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      stdlog.New(os.Stderr, "metrics handler: ", stdlog.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
