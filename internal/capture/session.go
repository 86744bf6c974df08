// Package capture runs the producer side of a recording session: frames pass the
// sampler, the detector and the cooldown gate, accepted kills go to the session
// event log, and the log is published for the consumer when the session ends.
package capture

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/detection"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/logger"
	"github.com/tphakala/killclip/internal/session"
)

// expectedKills sizes the event log of a new session.
const expectedKills = 32

// Metrics receives capture telemetry.
type Metrics interface {
	FrameProcessed(sampled bool)
	KillRecorded(eventType string)
	DetectionSuppressed()
	SessionPublished()
}

// Publisher stores the finished session for the consumer. *handoff.Channel implements it.
type Publisher interface {
	Publish(ctx context.Context, rec handoff.Record) (handoff.Record, error)
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the clock used for the publish timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one recording session. It is owned by the capture goroutine and is
// not safe for concurrent use.
type Session struct {
	url       string
	startedAt time.Time
	sampler   *detection.Sampler
	detector  *detection.Detector
	gate      *detection.CooldownGate
	log       *session.EventLog
	metrics   Metrics
	now       func() time.Time
	ended     bool
}

// NewSession starts a session recording to url with one validated detection config.
func NewSession(url string, startedAt time.Time, dc conf.DetectionConfig, opts ...Option) (*Session, error) {
	if url == "" {
		return nil, errors.Newf("session reference is empty").
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		url:       url,
		startedAt: startedAt,
		sampler:   detection.NewSampler(dc.FrameSkipInterval),
		detector:  detection.NewDetector(dc.Clone()),
		gate:      detection.NewCooldownGate(dc.Cooldown()),
		log:       session.NewEventLog(expectedKills),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetLogger returns the capture package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}

// URL returns the session reference.
func (s *Session) URL() string { return s.url }

// Events returns a copy of the kills recorded so far.
func (s *Session) Events() []session.KillEvent { return s.log.Snapshot() }

// ProcessFrame runs one frame through the pipeline and reports the kill it produced, if any.
func (s *Session) ProcessFrame(f Frame) (session.KillEvent, bool) {
	sampled := s.sampler.Next()
	if s.metrics != nil {
		s.metrics.FrameProcessed(sampled)
	}
	if !sampled {
		return session.KillEvent{}, false
	}

	m := s.detector.Detect(f.Samples)
	if !m.OK {
		return session.KillEvent{}, false
	}
	if !s.gate.Accept(m.CaptureOffset) {
		if s.metrics != nil {
			s.metrics.DetectionSuppressed()
		}
		return session.KillEvent{}, false
	}

	ev := session.KillEvent{
		WallClock:     f.WallClock,
		CaptureOffset: m.CaptureOffset,
		Type:          m.Type,
	}
	s.log.Append(ev)
	if s.metrics != nil {
		s.metrics.KillRecorded(ev.Type)
	}
	GetLogger().Debug("kill recorded",
		logger.String("type", ev.Type),
		logger.Duration("offset", ev.CaptureOffset),
		logger.Float64("confidence", m.Confidence))
	return ev, true
}

// Run consumes src until it is exhausted or ctx is done.
func (s *Session) Run(ctx context.Context, src FrameSource) error {
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		s.ProcessFrame(f)
	}
}

// End publishes the session and its kills. A session can be ended once.
func (s *Session) End(ctx context.Context, pub Publisher) (handoff.Record, error) {
	if s.ended {
		return handoff.Record{}, errors.Newf("session %s already ended", s.url).
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}

	rec, err := pub.Publish(ctx, handoff.NewRecord(s.url, s.startedAt, s.log.Snapshot(), s.now()))
	if err != nil {
		return handoff.Record{}, err
	}
	s.ended = true
	if s.metrics != nil {
		s.metrics.SessionPublished()
	}
	GetLogger().Info("capture session ended",
		logger.String("session", s.url),
		logger.Int("kills", rec.Len()),
		logger.Duration("length", s.now().Sub(s.startedAt)))
	return rec, nil
}
