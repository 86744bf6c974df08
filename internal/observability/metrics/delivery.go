package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/killclip/internal/jobqueue"
)

// DeliveryMetrics tracks everything that leaves the process: uploads, MQTT and notifications.
type DeliveryMetrics struct {
	UploadJobs         *prometheus.CounterVec
	UploadAttempts     prometheus.Histogram
	UploadDuration     prometheus.Histogram
	MQTTConnected      prometheus.Gauge
	MQTTLastConnect    prometheus.Gauge
	MQTTMessages       *prometheus.CounterVec
	MQTTMessageSize    prometheus.Histogram
	MQTTPublishLatency prometheus.Histogram
	Notifications      *prometheus.CounterVec
}

// NewDeliveryMetrics creates and registers the delivery collectors.
func NewDeliveryMetrics(registry prometheus.Registerer) (*DeliveryMetrics, error) {
	m := &DeliveryMetrics{
		UploadJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_upload_jobs_total",
			Help: "Finished upload jobs by final status",
		}, []string{"status"}),
		UploadAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "killclip_upload_attempts",
			Help:    "Attempts needed per finished upload job",
			Buckets: prometheus.LinearBuckets(1, 1, 6),
		}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "killclip_upload_duration_seconds",
			Help:    "Time from first attempt to final status of an upload job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "killclip_mqtt_connection_status",
			Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
		}),
		MQTTLastConnect: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "killclip_mqtt_last_connect_time_seconds",
			Help: "Timestamp of the last successful MQTT connection",
		}),
		MQTTMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_mqtt_messages_total",
			Help: "MQTT publishes by result",
		}, []string{"result"}),
		MQTTMessageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "killclip_mqtt_message_size_bytes",
			Help:    "Size of MQTT messages in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}),
		MQTTPublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "killclip_mqtt_publish_latency_seconds",
			Help:    "Latency of MQTT publish operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killclip_notifications_total",
			Help: "Notification deliveries by provider and result",
		}, []string{"provider", "result"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register delivery metrics: %w", err)
	}
	return m, nil
}

// JobFinished implements jobqueue.Observer.
func (m *DeliveryMetrics) JobFinished(_ string, status jobqueue.JobStatus, attempts int, elapsed time.Duration) {
	m.UploadJobs.WithLabelValues(status.String()).Inc()
	m.UploadAttempts.Observe(float64(attempts))
	m.UploadDuration.Observe(elapsed.Seconds())
}

// SetMQTTConnected updates the connection gauge.
func (m *DeliveryMetrics) SetMQTTConnected(connected bool) {
	if connected {
		m.MQTTConnected.Set(1)
		m.MQTTLastConnect.SetToCurrentTime()
		return
	}
	m.MQTTConnected.Set(0)
}

// ObserveMQTTPublish records one publish.
func (m *DeliveryMetrics) ObserveMQTTPublish(size int, elapsed time.Duration, err error) {
	m.MQTTMessages.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return
	}
	m.MQTTMessageSize.Observe(float64(size))
	m.MQTTPublishLatency.Observe(elapsed.Seconds())
}

// NotificationSent records one delivery.
func (m *DeliveryMetrics) NotificationSent(provider string, err error) {
	m.Notifications.WithLabelValues(provider, resultLabel(err)).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *DeliveryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.UploadJobs.Describe(ch)
	ch <- m.UploadAttempts.Desc()
	ch <- m.UploadDuration.Desc()
	ch <- m.MQTTConnected.Desc()
	ch <- m.MQTTLastConnect.Desc()
	m.MQTTMessages.Describe(ch)
	ch <- m.MQTTMessageSize.Desc()
	ch <- m.MQTTPublishLatency.Desc()
	m.Notifications.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DeliveryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.UploadJobs.Collect(ch)
	ch <- m.UploadAttempts
	ch <- m.UploadDuration
	ch <- m.MQTTConnected
	ch <- m.MQTTLastConnect
	m.MQTTMessages.Collect(ch)
	ch <- m.MQTTMessageSize
	ch <- m.MQTTPublishLatency
	m.Notifications.Collect(ch)
}
