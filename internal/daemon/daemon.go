// Package daemon runs the consumer: it polls the handoff, exports clips, queues
// uploads and serves the status API, and enforces a single running instance.
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/killclip/internal/api"
	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/export"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/jobqueue"
	"github.com/tphakala/killclip/internal/logger"
	"github.com/tphakala/killclip/internal/mqtt"
	"github.com/tphakala/killclip/internal/notification"
	"github.com/tphakala/killclip/internal/observability"
	"github.com/tphakala/killclip/internal/processor"
	"github.com/tphakala/killclip/internal/upload"
)

// Shutdown budgets for the background services.
const (
	queueStopTimeout  = 30 * time.Second
	notifyStopTimeout = 10 * time.Second
)

// Option configures a Daemon.
type Option func(*Daemon)

// WithExporter replaces the FFmpeg exporter.
func WithExporter(e export.Exporter) Option {
	return func(d *Daemon) { d.exporter = e }
}

// WithStore replaces the handoff store selected in settings.
func WithStore(s handoff.Store) Option {
	return func(d *Daemon) { d.store = s }
}

// Daemon coordinates the consumer services.
type Daemon struct {
	settings *conf.Settings
	lock     *flock.Flock
	running  atomic.Bool

	exporter  export.Exporter
	store     handoff.Store
	channel   *handoff.Channel
	poller    *handoff.Poller
	processor *processor.Processor
	reports   *processor.ReportStore
	queue     *jobqueue.JobQueue
	notifier  *notification.Service
	mqtt      mqtt.Client
	metrics   *observability.Metrics
	endpoint  *observability.Endpoint
	api       *api.Server
}

// GetLogger returns the daemon package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("daemon")
}

// New wires every consumer component from settings. Nothing runs until Run.
func New(settings *conf.Settings, opts ...Option) (*Daemon, error) {
	d := &Daemon{settings: settings}
	for _, opt := range opts {
		opt(d)
	}

	dc, err := settings.DetectionConfig()
	if err != nil {
		return nil, err
	}
	pcfg, err := processor.ConfigFromSettings(settings, dc)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(pcfg.OutputDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("daemon").
			Category(errors.CategoryFileIO).
			FileContext(pcfg.OutputDir).
			Build()
	}

	if d.exporter == nil {
		ecfg, err := export.ValidateConfig(export.Config{
			FFmpegPath:  settings.Processing.FFmpegPath,
			FFprobePath: settings.Processing.FFprobePath,
			Timeout:     settings.Processing.ExportTimeout,
		})
		if err != nil {
			return nil, err
		}
		if d.exporter, err = export.NewFFmpegExporter(ecfg); err != nil {
			return nil, err
		}
	}

	if d.metrics, err = observability.NewMetrics(); err != nil {
		return nil, err
	}
	if settings.Telemetry.Enabled {
		if d.endpoint, err = observability.NewEndpoint(settings.Telemetry, d.metrics); err != nil {
			return nil, err
		}
	}

	lockPath := settings.Processing.LockFile
	if lockPath == "" {
		lockPath = filepath.Join(pcfg.OutputDir, ".killclip.lock")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, errors.New(err).
			Component("daemon").
			Category(errors.CategoryFileIO).
			FileContext(lockPath).
			Build()
	}
	d.lock = flock.New(lockPath)

	popts := []processor.Option{processor.WithMetrics(d.metrics.Processing)}

	d.reports = processor.NewReportStore(settings.Processing.ReportRetention)
	popts = append(popts, processor.WithReportStore(d.reports))

	if settings.Upload.Enabled {
		target, err := upload.NewTarget(settings.Upload)
		if err != nil {
			return nil, err
		}
		d.queue = jobqueue.NewJobQueue(jobqueue.WithObserver(d.metrics.Delivery))
		popts = append(popts, processor.WithUploads(d.queue, target, uploadRetry(settings.Upload)))
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings.MQTT, settings.Main.Name)
		if d.mqtt, err = mqtt.NewClient(cfg, d.metrics.Delivery); err != nil {
			return nil, err
		}
		popts = append(popts, processor.WithPublisher(mqtt.NewPublisher(d.mqtt, cfg.Topic)))
	}

	if settings.Notification.Enabled {
		provider, err := notification.NewShoutrrrProvider("shoutrrr", settings.Notification.URLs, settings.Notification.Timeout)
		if err != nil {
			return nil, err
		}
		d.notifier = notification.NewService(notification.DefaultConfig(), d.metrics.Delivery, provider)
		popts = append(popts, processor.WithNotifier(d.notifier))
	}

	d.processor = processor.New(d.exporter, pcfg, popts...)

	if d.store == nil {
		if d.store, err = handoff.OpenStore(settings.Handoff, settings.Debug); err != nil {
			return nil, err
		}
	}
	var remover handoff.VideoRemover = handoff.KeepRemover{}
	if settings.Processing.DeleteSource {
		remover = handoff.FileRemover{}
	}
	d.channel = handoff.NewChannel(d.store, handoff.WithRemover(remover))
	d.poller = handoff.NewPoller(d.channel, d.processor.Handle,
		handoff.WithInterval(settings.Handoff.PollInterval),
		handoff.WithMetrics(d.metrics.Handoff))

	if settings.API.Enabled {
		aopts := []api.ServerOption{
			api.WithHandoff(d.channel),
			api.WithPoller(d.poller),
			api.WithReports(d.reports),
			api.WithDetection(settings.Detection.Preset, dc),
			api.WithOutputDir(pcfg.OutputDir),
		}
		if d.queue != nil {
			aopts = append(aopts, api.WithQueue(d.queue))
		}
		if d.api, err = api.New(settings, aopts...); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func uploadRetry(s conf.UploadSettings) jobqueue.RetryConfig {
	retry := jobqueue.GetDefaultRetryConfig(s.MaxRetries > 0)
	if !retry.Enabled {
		return retry
	}
	retry.MaxRetries = s.MaxRetries
	if s.InitialDelay > 0 {
		retry.InitialDelay = s.InitialDelay
	}
	if s.MaxDelay > 0 {
		retry.MaxDelay = s.MaxDelay
	}
	return retry
}

// Channel returns the consumer side of the handoff.
func (d *Daemon) Channel() *handoff.Channel { return d.channel }

// Reports returns the recent session reports.
func (d *Daemon) Reports() *processor.ReportStore { return d.reports }

// Metrics returns the metrics registry.
func (d *Daemon) Metrics() *observability.Metrics { return d.metrics }

// Run acquires the instance lock and runs every service until ctx is done. An
// in-flight session is allowed to finish before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.Newf("daemon already running").
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return errors.New(err).
			Component("daemon").
			Category(errors.CategoryFileIO).
			FileContext(d.lock.Path()).
			Context("operation", "acquire-lock").
			Build()
	}
	if !ok {
		return errors.Newf("another killclip consumer is already running (lock %s)", d.lock.Path()).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			GetLogger().Warn("failed to release lock", logger.Error(err))
		}
	}()

	log := GetLogger()
	log.Info("consumer starting",
		logger.String("node", d.settings.Main.Name),
		logger.String("backend", d.store.Name()),
		logger.String("output", d.settings.Processing.OutputDir))

	if d.queue != nil {
		d.queue.Start(ctx)
	}
	if d.notifier != nil {
		d.notifier.Start(ctx)
	}
	if d.mqtt != nil {
		if err := d.mqtt.Connect(ctx); err != nil {
			// paho keeps reconnecting in the background
			log.Warn("mqtt connect failed", logger.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.poller.Run(gctx) })
	if d.api != nil {
		g.Go(func() error { return d.api.Run(gctx) })
	}
	if d.endpoint != nil {
		g.Go(func() error { return d.endpoint.Run(gctx) })
	}
	err = g.Wait()

	d.shutdown()
	if err != nil {
		return err
	}
	log.Info("consumer stopped")
	return nil
}

func (d *Daemon) shutdown() {
	log := GetLogger()

	d.poller.Stop()
	d.poller.Wait()

	if d.queue != nil {
		if err := d.queue.Stop(queueStopTimeout); err != nil {
			log.Warn("upload queue did not drain", logger.Error(err))
		}
	}
	if d.notifier != nil {
		d.notifier.Stop(notifyStopTimeout)
	}
	if d.mqtt != nil {
		d.mqtt.Disconnect()
	}
	d.reports.Flush()
	if err := d.store.Close(); err != nil {
		log.Warn("failed to close handoff store", logger.Error(err))
	}
}
