package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProcessingMetrics tracks clip exports and processed sessions.
type ProcessingMetrics struct {
	ClipsExported   *prometheus.CounterVec
	ExportDuration  prometheus.Histogram
	Sessions        *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	GroupsPlanned   prometheus.Counter
}

// NewProcessingMetrics creates and registers the processing collectors.
func NewProcessingMetrics(registry prometheus.Registerer) (*ProcessingMetrics, error) {
	m := &ProcessingMetrics{
		ClipsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_clips_exported_total",
			Help: "Clip exports by result",
		}, []string{"result"}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "killclip_clip_export_duration_seconds",
			Help:    "Time spent exporting one clip",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_sessions_processed_total",
			Help: "Processed sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "killclip_session_processing_duration_seconds",
			Help:    "Time spent processing one session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		GroupsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killclip_groups_planned_total",
			Help: "Kill groups planned for export",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register processing metrics: %w", err)
	}
	return m, nil
}

// ClipExported records one export attempt.
func (m *ProcessingMetrics) ClipExported(elapsed time.Duration, err error) {
	m.ClipsExported.WithLabelValues(resultLabel(err)).Inc()
	m.ExportDuration.Observe(elapsed.Seconds())
}

// SessionProcessed records one finished session.
func (m *ProcessingMetrics) SessionProcessed(outcome string, groups int, elapsed time.Duration) {
	m.Sessions.WithLabelValues(outcome).Inc()
	m.GroupsPlanned.Add(float64(groups))
	m.SessionDuration.Observe(elapsed.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *ProcessingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ClipsExported.Describe(ch)
	ch <- m.ExportDuration.Desc()
	m.Sessions.Describe(ch)
	ch <- m.SessionDuration.Desc()
	ch <- m.GroupsPlanned.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ProcessingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ClipsExported.Collect(ch)
	ch <- m.ExportDuration
	m.Sessions.Collect(ch)
	ch <- m.SessionDuration
	ch <- m.GroupsPlanned
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
