package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics tracks the producer side: frames, detections and published sessions.
type CaptureMetrics struct {
	Frames            *prometheus.CounterVec
	Kills             *prometheus.CounterVec
	Suppressed        prometheus.Counter
	SessionsPublished prometheus.Counter
}

// NewCaptureMetrics creates and registers the capture collectors.
func NewCaptureMetrics(registry prometheus.Registerer) (*CaptureMetrics, error) {
	m := &CaptureMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_frames_total",
			Help: "Frames seen by the sampler, split by whether they were recognized",
		}, []string{"sampled"}),
		Kills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_kills_recorded_total",
			Help: "Kill events appended to the session log by event type",
		}, []string{"type"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killclip_detections_suppressed_total",
			Help: "Matches dropped by the cooldown gate",
		}),
		SessionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killclip_sessions_published_total",
			Help: "Sessions handed off to the consumer",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

// FrameProcessed counts one frame.
func (m *CaptureMetrics) FrameProcessed(sampled bool) {
	if sampled {
		m.Frames.WithLabelValues("true").Inc()
		return
	}
	m.Frames.WithLabelValues("false").Inc()
}

// KillRecorded counts one accepted event.
func (m *CaptureMetrics) KillRecorded(eventType string) {
	m.Kills.WithLabelValues(eventType).Inc()
}

// DetectionSuppressed counts one match inside the cooldown window.
func (m *CaptureMetrics) DetectionSuppressed() {
	m.Suppressed.Inc()
}

// SessionPublished counts one handoff publication.
func (m *CaptureMetrics) SessionPublished() {
	m.SessionsPublished.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Frames.Describe(ch)
	m.Kills.Describe(ch)
	ch <- m.Suppressed.Desc()
	ch <- m.SessionsPublished.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Frames.Collect(ch)
	m.Kills.Collect(ch)
	ch <- m.Suppressed
	ch <- m.SessionsPublished
}
