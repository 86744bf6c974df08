package processor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/highlight"
	"github.com/tphakala/killclip/internal/jobqueue"
	"github.com/tphakala/killclip/internal/mqtt"
	"github.com/tphakala/killclip/internal/notification"
	"github.com/tphakala/killclip/internal/session"
	"github.com/tphakala/killclip/internal/upload"
)

type exportCall struct {
	src        string
	start, end time.Duration
	dst        string
}

// fakeExporter writes an empty clip for every export unless failOn names the output.
type fakeExporter struct {
	mu          sync.Mutex
	duration    time.Duration
	durationErr error
	failOn      map[string]error
	calls       []exportCall
}

func (f *fakeExporter) Duration(_ context.Context, _ string) (time.Duration, error) {
	return f.duration, f.durationErr
}

func (f *fakeExporter) Export(_ context.Context, src string, start, end time.Duration, dst string) error {
	f.mu.Lock()
	f.calls = append(f.calls, exportCall{src: src, start: start, end: end, dst: dst})
	f.mu.Unlock()
	if err, ok := f.failOn[filepath.Base(dst)]; ok {
		return err
	}
	return os.WriteFile(dst, nil, 0o600)
}

type fakeMetrics struct {
	mu       sync.Mutex
	exported int
	failed   int
	outcome  string
	groups   int
}

func (m *fakeMetrics) ClipExported(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
		return
	}
	m.exported++
}

func (m *fakeMetrics) SessionProcessed(outcome string, groups int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = outcome
	m.groups = groups
}

type fakePublisher struct {
	mu       sync.Mutex
	clips    []mqtt.ClipEvent
	sessions []mqtt.SessionEvent
}

func (p *fakePublisher) PublishClip(_ context.Context, ev mqtt.ClipEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips = append(p.clips, ev)
	return nil
}

func (p *fakePublisher) PublishSession(_ context.Context, ev mqtt.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, ev)
	return errors.NewStd("broker unavailable")
}

type fakeNotifier struct {
	sent []*notification.Notification
}

func (n *fakeNotifier) Notify(notif *notification.Notification) bool {
	n.sent = append(n.sent, notif)
	return true
}

type fakeQueue struct {
	data []any
}

func (q *fakeQueue) Enqueue(_ jobqueue.Action, data any, _ jobqueue.RetryConfig) (*jobqueue.Job, error) {
	q.data = append(q.data, data)
	return &jobqueue.Job{}, nil
}

var sessionStart = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func kill(offset time.Duration) session.KillEvent {
	return session.KillEvent{
		WallClock:     sessionStart.Add(offset),
		CaptureOffset: offset,
		Type:          "ELIMINATED",
	}
}

// twoGroupRecord holds a double kill at 10s/14s and a single kill at 60s.
func twoGroupRecord(src string) handoff.Record {
	events := []session.KillEvent{kill(10 * time.Second), kill(14 * time.Second), kill(60 * time.Second)}
	return handoff.NewRecord(src, sessionStart, events, sessionStart.Add(2*time.Minute))
}

func testConfig(dir string) Config {
	return Config{
		Node:        "test",
		OutputDir:   dir,
		GroupingGap: 5 * time.Second,
		PreRoll:     5 * time.Second,
		PostRoll:    3 * time.Second,
		Location:    time.UTC,
	}
}

func TestProcessCreatesClipPerGroup(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	src := filepath.Join(t.TempDir(), "session.mp4")
	exp := &fakeExporter{duration: 62 * time.Second}
	m := &fakeMetrics{}
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	store := NewReportStore(time.Hour)

	p := New(exp, testConfig(out),
		WithMetrics(m), WithPublisher(pub), WithNotifier(notifier), WithReportStore(store))

	report, err := p.Process(t.Context(), twoGroupRecord(src))
	require.NoError(t, err)

	require.Len(t, exp.calls, 2)
	assert.Equal(t, exportCall{
		src:   src,
		start: 5 * time.Second,
		end:   17 * time.Second,
		dst:   filepath.Join(out, "killGroup_1_2025-03-14_18-00-10_multi_2.mp4"),
	}, exp.calls[0])
	// post-roll is clamped to the session length
	assert.Equal(t, exportCall{
		src:   src,
		start: 55 * time.Second,
		end:   62 * time.Second,
		dst:   filepath.Join(out, "killGroup_2_2025-03-14_18-01-00.mp4"),
	}, exp.calls[1])

	assert.Equal(t, 2, report.Created())
	assert.Equal(t, 2, report.Total())
	assert.Equal(t, "2 of 2 clips created", report.Summary())
	assert.Equal(t, OutcomeComplete, report.Outcome())
	assert.Equal(t, "Double Kill", report.Groups[0].Label)
	assert.Equal(t, "Kill", report.Groups[1].Label)
	assert.FileExists(t, report.Groups[0].File)

	assert.Equal(t, 2, m.exported)
	assert.Equal(t, OutcomeComplete, m.outcome)
	assert.Equal(t, 2, m.groups)

	require.Len(t, pub.clips, 2)
	assert.Equal(t, "killGroup_1_2025-03-14_18-00-10_multi_2.mp4", pub.clips[0].File)
	assert.Equal(t, 2, pub.clips[0].Kills)
	assert.InDelta(t, 5.0, pub.clips[0].StartSeconds, 0)
	require.Len(t, pub.sessions, 1, "session event failures are not fatal")
	assert.Equal(t, "2 of 2 clips created", pub.sessions[0].Summary)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notification.TypeInfo, notifier.sent[0].Type)

	last, ok := store.Last()
	require.True(t, ok)
	assert.Same(t, report, last)
}

func TestProcessPartialFailure(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	exp := &fakeExporter{
		duration: 2 * time.Minute,
		failOn: map[string]error{
			"killGroup_1_2025-03-14_18-00-10_multi_2.mp4": errors.Newf("ffmpeg exited with status 1").
				Component("export").Category(errors.CategoryExport).Build(),
		},
	}
	notifier := &fakeNotifier{}
	p := New(exp, testConfig(out), WithNotifier(notifier))

	report, err := p.Process(t.Context(), twoGroupRecord("/videos/session.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 clips created")

	require.Len(t, exp.calls, 2, "a failed group must not abort its siblings")
	assert.False(t, report.Groups[0].OK())
	assert.Equal(t, string(errors.CategoryExport), report.Groups[0].ErrorClass)
	assert.True(t, report.Groups[1].OK())
	assert.Equal(t, OutcomePartial, report.Outcome())

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notification.TypeWarning, notifier.sent[0].Type)
}

func TestProcessDurationUnknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		err      error
	}{
		{"probe error", 0, errors.New(errors.NewStd("no duration")).Category(errors.CategoryDurationUnknown).Build()},
		{"zero duration", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exp := &fakeExporter{duration: tt.duration, durationErr: tt.err}
			p := New(exp, testConfig(t.TempDir()))

			report, err := p.Process(t.Context(), twoGroupRecord("/videos/session.mp4"))
			require.Error(t, err)
			assert.Empty(t, exp.calls)
			assert.Equal(t, OutcomeFailed, report.Outcome())
			for _, g := range report.Groups {
				assert.Equal(t, string(errors.CategoryDurationUnknown), g.ErrorClass)
			}
		})
	}
}

func TestProcessRemoteSessionIsMissingSource(t *testing.T) {
	t.Parallel()

	exp := &fakeExporter{duration: time.Minute}
	p := New(exp, testConfig(t.TempDir()))

	report, err := p.Process(t.Context(), twoGroupRecord("https://cdn.example.com/session.mp4"))
	require.Error(t, err)
	assert.Empty(t, exp.calls)
	require.Len(t, report.Groups, 2)
	for _, g := range report.Groups {
		assert.Equal(t, string(errors.CategoryMissingSource), g.ErrorClass)
	}
}

func TestProcessEmptySession(t *testing.T) {
	t.Parallel()

	exp := &fakeExporter{duration: time.Minute}
	m := &fakeMetrics{}
	notifier := &fakeNotifier{}
	p := New(exp, testConfig(t.TempDir()), WithMetrics(m), WithNotifier(notifier))

	rec := handoff.NewRecord("/videos/quiet.mp4", sessionStart, nil, sessionStart.Add(time.Minute))
	report, err := p.Process(t.Context(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, report.Outcome())
	assert.Equal(t, "0 of 0 clips created", report.Summary())
	assert.Equal(t, OutcomeEmpty, m.outcome)
	assert.Empty(t, notifier.sent)
}

func TestProcessQueuesUploads(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	exp := &fakeExporter{duration: 2 * time.Minute}
	queue := &fakeQueue{}
	target, err := upload.NewLocalTarget(t.TempDir())
	require.NoError(t, err)
	p := New(exp, testConfig(out),
		WithUploads(queue, target, jobqueue.GetDefaultRetryConfig(false)))

	report, err := p.Process(t.Context(), twoGroupRecord("/videos/session.mp4"))
	require.NoError(t, err)
	assert.Equal(t, []any{report.Groups[0].File, report.Groups[1].File}, queue.data)
	assert.True(t, report.Groups[0].Uploaded)
}

func TestHandleWithPoller(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	videos := t.TempDir()
	src := filepath.Join(videos, "session.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o600))

	store := handoff.NewMemoryStore()
	producer := handoff.NewChannel(store)
	consumer := handoff.NewChannel(store, handoff.WithRemover(handoff.FileRemover{}))

	p := New(&fakeExporter{duration: 2 * time.Minute}, testConfig(t.TempDir()))
	poller := handoff.NewPoller(consumer, p.Handle)

	_, err := producer.Publish(ctx, twoGroupRecord(src))
	require.NoError(t, err)

	decision, err := poller.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, handoff.DecisionNewPublication, decision)
	poller.Wait()

	assert.NoFileExists(t, src, "the recording is removed after every clip was created")
	status, err := consumer.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.Pending)
}

func TestErrorClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"duration", highlight.ErrDurationUnknown, "duration-unknown"},
		{"timeout", errors.New(errors.NewStd("x")).Category(errors.CategoryTimeout).Build(), "timeout"},
		{"plain", errors.NewStd("boom"), "generic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errorClass(tt.err))
		})
	}
}
