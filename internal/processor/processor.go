// Package processor turns one claimed handoff record into highlight clips.
//
// Groups of a session are exported strictly one after another. A failed group
// never aborts its siblings; the session outcome is the aggregate of all groups.
package processor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/export"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/highlight"
	"github.com/tphakala/killclip/internal/jobqueue"
	"github.com/tphakala/killclip/internal/logger"
	"github.com/tphakala/killclip/internal/mqtt"
	"github.com/tphakala/killclip/internal/notification"
	"github.com/tphakala/killclip/internal/upload"
)

// Metrics receives processing telemetry.
type Metrics interface {
	ClipExported(elapsed time.Duration, err error)
	SessionProcessed(outcome string, groups int, elapsed time.Duration)
}

// EventPublisher announces clips and sessions, for example over MQTT.
type EventPublisher interface {
	PublishClip(ctx context.Context, ev mqtt.ClipEvent) error
	PublishSession(ctx context.Context, ev mqtt.SessionEvent) error
}

// Notifier queues a user notification.
type Notifier interface {
	Notify(n *notification.Notification) bool
}

// UploadQueue accepts upload jobs.
type UploadQueue interface {
	Enqueue(action jobqueue.Action, data any, config jobqueue.RetryConfig) (*jobqueue.Job, error)
}

// Config holds the processing parameters.
type Config struct {
	Node        string
	OutputDir   string
	GroupingGap time.Duration
	PreRoll     time.Duration
	PostRoll    time.Duration
	Location    *time.Location
}

// ConfigFromSettings derives a Config from settings and the active detection config.
func ConfigFromSettings(settings *conf.Settings, dc conf.DetectionConfig) (Config, error) {
	loc, err := settings.Location()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Node:        settings.Main.Name,
		OutputDir:   settings.Processing.OutputDir,
		GroupingGap: settings.GroupingGap(dc),
		PreRoll:     dc.PreRoll(),
		PostRoll:    dc.PostRoll(),
		Location:    loc,
	}, nil
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithPublisher announces clips and session summaries.
func WithPublisher(pub EventPublisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// WithNotifier sends a session summary notification.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithUploads queues every created clip for upload to target.
func WithUploads(queue UploadQueue, target upload.Target, retry jobqueue.RetryConfig) Option {
	return func(p *Processor) {
		p.uploads = queue
		p.uploadAction = &upload.UploadAction{Target: target, OnSuccess: p.uploaded}
		p.retry = retry
	}
}

// WithReportStore keeps finished reports for the status API.
func WithReportStore(store *ReportStore) Option {
	return func(p *Processor) { p.reports = store }
}

// Processor exports the clips of one session.
type Processor struct {
	exporter     export.Exporter
	planner      *highlight.Planner
	config       Config
	metrics      Metrics
	publisher    EventPublisher
	notifier     Notifier
	uploads      UploadQueue
	uploadAction *upload.UploadAction
	retry        jobqueue.RetryConfig
	reports      *ReportStore
}

// New returns a processor using exporter for duration probing and clip export.
func New(exporter export.Exporter, config Config, opts ...Option) *Processor {
	if config.Location == nil {
		config.Location = time.Local
	}
	p := &Processor{
		exporter: exporter,
		planner:  highlight.NewPlanner(config.PreRoll, config.PostRoll, config.Location),
		config:   config,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetLogger returns the processor package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("processor")
}

// Handle implements handoff.ProcessFunc. It returns nil only when every group
// produced a clip.
func (p *Processor) Handle(ctx context.Context, rec handoff.Record) error {
	_, err := p.Process(ctx, rec)
	return err
}

// Process groups, plans and exports the kills of rec and returns the session report.
// The error is non-nil when at least one group failed; the report is always complete.
func (p *Processor) Process(ctx context.Context, rec handoff.Record) (*Report, error) {
	log := GetLogger().With(logger.String("session", rec.SessionURL))
	report := &Report{
		ID:           uuid.NewString(),
		SessionURL:   rec.SessionURL,
		PublishedAt:  rec.UpdatedAt,
		SessionStart: rec.SessionStart(),
		StartedAt:    time.Now(),
		Kills:        rec.Len(),
	}

	groups := highlight.GroupEvents(rec.Events(), p.config.GroupingGap)
	if len(groups) == 0 {
		log.Info("session has no kills")
		p.finish(ctx, report)
		return report, nil
	}

	src, srcErr := handoff.LocalPath(rec.SessionURL)
	if srcErr != nil {
		srcErr = errors.New(srcErr).
			Component("processor").
			Category(errors.CategoryMissingSource).
			Context("session", rec.SessionURL).
			Build()
	}

	var durErr error
	if srcErr == nil {
		report.Duration, durErr = p.exporter.Duration(ctx, src)
		if durErr == nil && report.Duration <= 0 {
			durErr = highlight.ErrDurationUnknown
		}
		if durErr != nil {
			log.Warn("session duration unknown, no clip can be planned", logger.Error(durErr))
		}
	}

	for i, g := range groups {
		result := p.processGroup(ctx, rec, src, i+1, g, report.Duration, errors.Join(srcErr, durErr))
		report.Groups = append(report.Groups, result)
	}

	p.finish(ctx, report)
	if report.Failed() > 0 {
		return report, errors.Newf("%d of %d groups failed: %s", report.Failed(), report.Total(), report.Summary()).
			Component("processor").
			Category(errors.CategoryExport).
			Context("session", rec.SessionURL).
			Build()
	}
	return report, nil
}

// processGroup plans and exports one group. sessionErr, when set, fails the group
// before planning.
func (p *Processor) processGroup(ctx context.Context, rec handoff.Record, src string, index int, g highlight.Group, duration time.Duration, sessionErr error) GroupResult {
	result := GroupResult{
		Index:     index,
		Label:     g.Label(),
		Kills:     g.Size(),
		FirstKill: g.First().WallClock,
	}
	log := GetLogger().With(
		logger.String("session", rec.SessionURL),
		logger.Int("group", index),
		logger.String("label", result.Label))

	fail := func(err error) GroupResult {
		result.Error = err.Error()
		result.ErrorClass = errorClass(err)
		log.Warn("clip not created", logger.String("class", result.ErrorClass), logger.Error(err))
		return result
	}

	if sessionErr != nil {
		return fail(sessionErr)
	}

	plan, err := p.planner.Plan(index, g, duration)
	if err != nil {
		return fail(err)
	}
	result.Start, result.End = plan.Start, plan.End

	dst := filepath.Join(p.config.OutputDir, plan.OutputName)
	start := time.Now()
	err = p.exporter.Export(ctx, src, plan.Start, plan.End, dst)
	if p.metrics != nil {
		p.metrics.ClipExported(time.Since(start), err)
	}
	if err != nil {
		return fail(err)
	}
	result.File = dst
	log.Info("clip created",
		logger.String("file", plan.OutputName),
		logger.Duration("start", plan.Start),
		logger.Duration("end", plan.End))

	if p.uploads != nil {
		if _, err := p.uploads.Enqueue(p.uploadAction, dst, p.retry); err != nil {
			log.Warn("failed to queue clip upload", logger.Error(err))
		} else {
			result.Uploaded = true
		}
	}

	if p.publisher != nil {
		ev := mqtt.ClipEvent{
			Node:         p.config.Node,
			SessionURL:   rec.SessionURL,
			Index:        index,
			Label:        result.Label,
			Kills:        result.Kills,
			StartSeconds: plan.Start.Seconds(),
			EndSeconds:   plan.End.Seconds(),
			File:         plan.OutputName,
			FirstKillAt:  plan.FirstKill,
			CreatedAt:    time.Now(),
		}
		if err := p.publisher.PublishClip(ctx, ev); err != nil {
			log.Debug("clip event not published", logger.Error(err))
		}
	}
	return result
}

func (p *Processor) finish(ctx context.Context, report *Report) {
	report.FinishedAt = time.Now()
	outcome := report.Outcome()

	GetLogger().Info(report.Summary(),
		logger.String("session", report.SessionURL),
		logger.String("outcome", outcome),
		logger.Int("kills", report.Kills),
		logger.Duration("elapsed", report.Elapsed()))

	if p.metrics != nil {
		p.metrics.SessionProcessed(outcome, report.Total(), report.Elapsed())
	}
	if p.reports != nil {
		p.reports.Add(report)
	}
	if p.publisher != nil {
		ev := mqtt.SessionEvent{
			Node:        p.config.Node,
			SessionURL:  report.SessionURL,
			PublishedAt: report.PublishedAt,
			Kills:       report.Kills,
			Groups:      report.Total(),
			Created:     report.Created(),
			Failed:      report.Failed(),
			Summary:     report.Summary(),
			FinishedAt:  report.FinishedAt,
		}
		if err := p.publisher.PublishSession(ctx, ev); err != nil {
			GetLogger().Debug("session event not published", logger.Error(err))
		}
	}
	if p.notifier != nil && outcome != OutcomeEmpty {
		p.notifier.Notify(sessionNotification(report))
	}
}

func (p *Processor) uploaded(res upload.Result) {
	GetLogger().Debug("clip upload finished",
		logger.String("file", filepath.Base(res.LocalPath)),
		logger.String("remote", res.Remote))
}

func sessionNotification(r *Report) *notification.Notification {
	notifType := notification.TypeInfo
	switch r.Outcome() {
	case OutcomePartial:
		notifType = notification.TypeWarning
	case OutcomeFailed:
		notifType = notification.TypeError
	}
	return notification.NewNotification(notifType, "Highlights ready", r.Summary()).
		WithMetadata("session", r.SessionURL).
		WithMetadata("created", r.Created()).
		WithMetadata("total", r.Total())
}

// errorClass maps an error to the failure classes reported per group.
func errorClass(err error) string {
	for _, cat := range []errors.ErrorCategory{
		errors.CategoryMissingSource,
		errors.CategoryDurationUnknown,
		errors.CategoryTimeout,
		errors.CategoryExport,
		errors.CategoryValidation,
	} {
		if errors.IsCategory(err, cat) {
			return string(cat)
		}
	}
	return string(errors.CategoryGeneric)
}
