package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/capture"
	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/jobqueue"
	"github.com/tphakala/killclip/internal/mqtt"
	"github.com/tphakala/killclip/internal/notification"
	"github.com/tphakala/killclip/internal/observability/metrics"
	"github.com/tphakala/killclip/internal/processor"
)

// Compile-time checks that the collectors satisfy the component hooks.
var (
	_ handoff.PollMetrics  = (*metrics.HandoffMetrics)(nil)
	_ jobqueue.Observer    = (*metrics.DeliveryMetrics)(nil)
	_ mqtt.Metrics         = (*metrics.DeliveryMetrics)(nil)
	_ notification.Metrics = (*metrics.DeliveryMetrics)(nil)
	_ capture.Metrics      = (*metrics.CaptureMetrics)(nil)
	_ processor.Metrics    = (*metrics.ProcessingMetrics)(nil)
)

func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20
	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Handoff)
			assert.NotNil(t, m.Processing)
			assert.NotNil(t, m.Delivery)
			assert.NotNil(t, m.Capture)
		})
	}
	wg.Wait()
}

func TestHandoffMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Handoff.RecordPoll(handoff.DecisionIdle.String())
	m.Handoff.RecordPoll(handoff.DecisionIdle.String())
	m.Handoff.RecordPoll(handoff.DecisionNewPublication.String())
	m.Handoff.SetWatermark(1710439331.5)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Handoff.Polls.WithLabelValues("idle")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Handoff.Polls.WithLabelValues("new_publication")), 0)
	assert.InDelta(t, 1710439331.5, testutil.ToFloat64(m.Handoff.Watermark), 0)
}

func TestProcessingMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Processing.ClipExported(2*time.Second, nil)
	m.Processing.ClipExported(time.Second, errors.NewStd("ffmpeg failed"))
	m.Processing.SessionProcessed("partial", 2, 5*time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Processing.ClipsExported.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Processing.ClipsExported.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Processing.Sessions.WithLabelValues("partial")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Processing.GroupsPlanned), 0)
}

func TestDeliveryMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Delivery.JobFinished("upload clip to local", jobqueue.JobStatusCompleted, 1, time.Second)
	m.Delivery.JobFinished("upload clip to ftp", jobqueue.JobStatusFailed, 4, time.Minute)
	m.Delivery.SetMQTTConnected(true)
	m.Delivery.ObserveMQTTPublish(120, 5*time.Millisecond, nil)
	m.Delivery.ObserveMQTTPublish(120, 0, errors.NewStd("not connected"))
	m.Delivery.NotificationSent("shoutrrr", nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Delivery.UploadJobs.WithLabelValues(jobqueue.JobStatusCompleted.String())), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Delivery.UploadJobs.WithLabelValues(jobqueue.JobStatusFailed.String())), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Delivery.MQTTConnected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Delivery.MQTTMessages.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Delivery.MQTTMessages.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Delivery.Notifications.WithLabelValues("shoutrrr", "success")), 0)

	m.Delivery.SetMQTTConnected(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Delivery.MQTTConnected), 0)
}

func TestCaptureMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Capture.FrameProcessed(true)
	m.Capture.FrameProcessed(false)
	m.Capture.FrameProcessed(false)
	m.Capture.KillRecorded("ELIMINATED")
	m.Capture.DetectionSuppressed()
	m.Capture.SessionPublished()

	assert.InDelta(t, 1, testutil.ToFloat64(m.Capture.Frames.WithLabelValues("true")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Capture.Frames.WithLabelValues("false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Capture.Kills.WithLabelValues("ELIMINATED")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Capture.Suppressed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Capture.SessionsPublished), 0)
}

func TestNewEndpoint(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(conf.TelemetrySettings{Enabled: false, Listen: ":9090"}, m)
	require.Error(t, err)
	_, err = NewEndpoint(conf.TelemetrySettings{Enabled: true}, m)
	require.Error(t, err)

	e, err := NewEndpoint(conf.TelemetrySettings{Enabled: true, Listen: "127.0.0.1:0"}, m)
	require.NoError(t, err)
	assert.Same(t, m, e.GetMetrics())
}

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Handoff.RecordPoll("busy")

	e, err := NewEndpoint(conf.TelemetrySettings{Enabled: true, Listen: "127.0.0.1:0"}, m)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `killclip_handoff_polls_total{decision="busy"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("endpoint did not shut down")
	}
}
