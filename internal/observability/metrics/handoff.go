// Package metrics provides the Prometheus collectors for each killclip component.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// HandoffMetrics tracks the consumer poll loop.
type HandoffMetrics struct {
	Polls     *prometheus.CounterVec
	Watermark prometheus.Gauge
}

// NewHandoffMetrics creates and registers the handoff collectors.
func NewHandoffMetrics(registry prometheus.Registerer) (*HandoffMetrics, error) {
	m := &HandoffMetrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_handoff_polls_total",
			Help: "Handoff polls by decision",
		}, []string{"decision"}),
		Watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "killclip_handoff_watermark_seconds",
			Help: "Publication timestamp of the last claimed session",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register handoff metrics: %w", err)
	}
	return m, nil
}

// RecordPoll counts one poll outcome.
func (m *HandoffMetrics) RecordPoll(decision string) {
	m.Polls.WithLabelValues(decision).Inc()
}

// SetWatermark records the last claimed publication.
func (m *HandoffMetrics) SetWatermark(publishedAt float64) {
	m.Watermark.Set(publishedAt)
}

// Describe implements the prometheus.Collector interface.
func (m *HandoffMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Polls.Describe(ch)
	ch <- m.Watermark.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *HandoffMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Polls.Collect(ch)
	ch <- m.Watermark
}
