package handoff

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// DefaultPollInterval is how often the consumer checks for a pending session.
const DefaultPollInterval = 2 * time.Second

// Decision is the outcome of one poll.
type Decision int

const (
	// DecisionIdle - nothing is pending.
	DecisionIdle Decision = iota
	// DecisionDuplicate - the pending publication is not newer than the watermark.
	DecisionDuplicate
	// DecisionBusy - a newer publication waits for the current one to clear.
	DecisionBusy
	// DecisionNewPublication - a newer publication is dispatched for processing.
	DecisionNewPublication
	// DecisionCorrupt - the pending record is unusable and gets discarded.
	DecisionCorrupt
)

// String returns the metric label of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionIdle:
		return "idle"
	case DecisionDuplicate:
		return "duplicate"
	case DecisionBusy:
		return "busy"
	case DecisionNewPublication:
		return "new_publication"
	case DecisionCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Decide maps one observation to a decision. busy is true while a previous
// publication has not reached CLEARED.
func Decide(obs Observation, watermark float64, busy bool) Decision {
	switch {
	case !obs.Found:
		return DecisionIdle
	case obs.Corrupt:
		return DecisionCorrupt
	case !ShouldProcess(watermark, obs.PublishedAt):
		return DecisionDuplicate
	case busy:
		return DecisionBusy
	default:
		return DecisionNewPublication
	}
}

// ProcessFunc processes one claimed publication. A nil error means every group
// produced a clip.
type ProcessFunc func(ctx context.Context, rec Record) error

// PollMetrics receives poll outcomes.
type PollMetrics interface {
	RecordPoll(decision string)
	SetWatermark(publishedAt float64)
}

// Poller checks the channel on a fixed interval and dispatches at most one
// processing task at a time.
type Poller struct {
	channel  *Channel
	process  ProcessFunc
	interval time.Duration
	metrics  PollMetrics
	limiter  *rate.Limiter

	busy     atomic.Bool
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the poll interval. Non-positive values keep the default.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m PollMetrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// NewPoller returns a poller dispatching claimed publications to process.
func NewPoller(channel *Channel, process ProcessFunc, opts ...PollerOption) *Poller {
	p := &Poller{
		channel:  channel,
		process:  process,
		interval: DefaultPollInterval,
		limiter:  rate.NewLimiter(rate.Every(time.Minute), 1),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Busy reports whether a publication is being processed.
func (p *Poller) Busy() bool { return p.busy.Load() }

// Run polls until ctx is done or Stop is called. It does not wait for an in-flight
// task; use Wait for that.
func (p *Poller) Run(ctx context.Context) error {
	log := GetLogger()
	log.Info("handoff poller started",
		logger.String("backend", p.channel.Store().Name()),
		logger.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil && p.limiter.Allow() {
			log.Warn("handoff poll failed", logger.Error(err))
		}

		select {
		case <-ctx.Done():
			log.Info("handoff poller stopped", logger.String("reason", "context done"))
			return nil
		case <-p.stopCh:
			log.Info("handoff poller stopped", logger.String("reason", "stop requested"))
			return nil
		case <-ticker.C:
		}
	}
}

// Tick performs a single poll.
func (p *Poller) Tick(ctx context.Context) (Decision, error) {
	obs, wm, err := p.channel.Observe(ctx)
	if err != nil {
		return DecisionIdle, err
	}
	if p.metrics != nil {
		p.metrics.SetWatermark(wm)
	}

	d := Decide(obs, wm, p.busy.Load())
	switch d {
	case DecisionCorrupt:
		GetLogger().Warn("discarding corrupt handoff record", logger.Error(obs.Problem))
		if err := p.channel.Discard(ctx); err != nil {
			return d, err
		}
	case DecisionNewPublication:
		if !p.busy.CompareAndSwap(false, true) {
			d = DecisionBusy
			break
		}
		if err := p.channel.Begin(ctx, obs.Record); err != nil {
			p.busy.Store(false)
			return d, err
		}
		GetLogger().Info("processing pending session",
			logger.String("session", obs.Record.SessionURL),
			logger.Int("kills", obs.Record.Len()),
			logger.Float64("session_updated_at", obs.PublishedAt))
		p.wg.Add(1)
		go p.run(context.WithoutCancel(ctx), obs.Record)
	}

	if p.metrics != nil {
		p.metrics.RecordPoll(d.String())
	}
	return d, nil
}

// run processes rec and clears the publication. Stopping the poller does not
// cancel it.
func (p *Poller) run(ctx context.Context, rec Record) {
	defer p.wg.Done()
	defer p.busy.Store(false)

	err := p.safeProcess(ctx, rec)
	if err != nil {
		GetLogger().Warn("session processed with failures",
			logger.String("session", rec.SessionURL),
			logger.Error(err))
	}
	if cerr := p.channel.Complete(ctx, rec, err == nil); cerr != nil {
		GetLogger().Error("failed to clear handoff", logger.Error(cerr))
	}
}

func (p *Poller) safeProcess(ctx context.Context, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("session processing panicked: %v", r).
				Component("handoff").
				Category(errors.CategoryGeneric).
				Context("stack", string(debug.Stack())).
				Build()
		}
	}()
	return p.process(ctx, rec)
}

// Stop ends polling. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Wait blocks until the in-flight task, if any, has finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}
