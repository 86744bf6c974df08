package handoff

import (
	"context"
	"math"
	"sync"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Observation is what a consumer saw in the store on one poll.
type Observation struct {
	Found       bool
	Corrupt     bool
	PublishedAt float64
	Record      Record
	Problem     error // set when Corrupt
}

// Status summarizes the handoff for status displays.
type Status struct {
	State     State
	Watermark float64
	Pending   *Record
	Corrupt   bool
}

// Channel implements the publish and consume protocol over a Store.
type Channel struct {
	store     Store
	remover   VideoRemover
	lifecycle *Lifecycle
	mu        sync.Mutex
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithRemover sets the collaborator that deletes fully processed session videos.
func WithRemover(r VideoRemover) ChannelOption {
	return func(c *Channel) {
		if r != nil {
			c.remover = r
		}
	}
}

// NewChannel returns a channel over store. Session videos are kept unless a
// remover is configured.
func NewChannel(store Store, opts ...ChannelOption) *Channel {
	c := &Channel{
		store:     store,
		remover:   KeepRemover{},
		lifecycle: NewLifecycle(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store.
func (c *Channel) Store() Store { return c.store }

// State returns the lifecycle state of the publication this process last handled.
func (c *Channel) State() State { return c.lifecycle.State() }

// Watermark returns the last processed publish timestamp. A corrupt watermark
// is reset to 0.
func (c *Channel) Watermark(ctx context.Context) (float64, error) {
	return c.watermark(ctx)
}

// watermark reads the stored watermark. An unreadable value is logged, rewritten
// as 0 and reported as 0, so the pending record is processed again rather than
// blocking the handoff.
func (c *Channel) watermark(ctx context.Context) (float64, error) {
	wm, err := c.store.Watermark(ctx)
	if err == nil || !errors.IsCategory(err, errors.CategoryHandoffCorruption) {
		return wm, err
	}
	GetLogger().Warn("resetting corrupt handoff watermark",
		logger.String("backend", c.store.Name()),
		logger.Error(err))
	if err := c.store.SetWatermark(ctx, 0); err != nil {
		return 0, err
	}
	return 0, nil
}

// Publish writes rec as the pending session. The publish timestamp is raised when
// needed so it is strictly greater than both the watermark and any previous record.
// It returns the record as stored.
func (c *Channel) Publish(ctx context.Context, rec Record) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle.State() == StateConsuming {
		return Record{}, errors.New(ErrInvalidTransition).
			Component("handoff").
			Category(errors.CategoryState).
			Context("operation", "publish").
			Context("state", StateConsuming.String()).
			Build()
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}

	floor, err := c.watermark(ctx)
	if err != nil {
		return Record{}, err
	}
	prev, found, err := c.store.Load(ctx)
	switch {
	case err != nil && !errors.IsCategory(err, errors.CategoryHandoffCorruption):
		return Record{}, err
	case err == nil && found:
		floor = math.Max(floor, prev.UpdatedAt)
	}
	if rec.UpdatedAt <= floor {
		rec.UpdatedAt = math.Nextafter(floor, math.Inf(1))
	}

	if err := c.store.Save(ctx, rec); err != nil {
		return Record{}, err
	}
	if err := c.lifecycle.Reset(); err != nil {
		return Record{}, err
	}
	if err := c.lifecycle.Transition(StatePublished, rec.UpdatedAt); err != nil {
		return Record{}, err
	}

	GetLogger().Info("session published",
		logger.String("backend", c.store.Name()),
		logger.Int("kills", rec.Len()),
		logger.Float64("session_updated_at", rec.UpdatedAt))
	return rec, nil
}

// Observe reads the pending record and the watermark. A record that fails to
// decode or validate is reported as corrupt, not as an error. Only a corrupt
// watermark is written, reset to 0.
func (c *Channel) Observe(ctx context.Context) (Observation, float64, error) {
	wm, err := c.watermark(ctx)
	if err != nil {
		return Observation{}, 0, err
	}

	rec, found, err := c.store.Load(ctx)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryHandoffCorruption) {
			return Observation{Found: true, Corrupt: true, Problem: err}, wm, nil
		}
		return Observation{}, wm, err
	}
	if !found {
		return Observation{}, wm, nil
	}
	if err := rec.Validate(); err != nil {
		return Observation{Found: true, Corrupt: true, PublishedAt: rec.UpdatedAt, Problem: err}, wm, nil
	}
	return Observation{Found: true, PublishedAt: rec.UpdatedAt, Record: rec}, wm, nil
}

// Begin claims rec for processing. The watermark is written before returning so a
// second poll of the same publication sees it as already processed.
func (c *Channel) Begin(ctx context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lifecycle.Reset(); err != nil {
		return err
	}
	if err := c.store.SetWatermark(ctx, rec.UpdatedAt); err != nil {
		return err
	}
	if err := c.lifecycle.Transition(StatePublished, rec.UpdatedAt); err != nil {
		return err
	}
	return c.lifecycle.Transition(StateConsuming, rec.UpdatedAt)
}

// TryConsume claims the pending record when it is newer than the watermark.
// A corrupt record is cleared and reported as no pending session.
func (c *Channel) TryConsume(ctx context.Context) (Record, bool, error) {
	obs, wm, err := c.Observe(ctx)
	if err != nil {
		return Record{}, false, err
	}

	switch Decide(obs, wm, c.lifecycle.State() == StateConsuming) {
	case DecisionCorrupt:
		GetLogger().Warn("discarding corrupt handoff record", logger.Error(obs.Problem))
		if err := c.Discard(ctx); err != nil {
			return Record{}, false, err
		}
		return Record{}, false, nil
	case DecisionNewPublication:
		if err := c.Begin(ctx, obs.Record); err != nil {
			return Record{}, false, err
		}
		return obs.Record, true, nil
	default:
		return Record{}, false, nil
	}
}

// Complete clears the publication after every group was attempted. The session
// video is removed only when allSucceeded. A newer record published in the
// meantime is left in place.
func (c *Channel) Complete(ctx context.Context, rec Record, allSucceeded bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	current, found, err := c.store.Load(ctx)
	switch {
	case err == nil && found && current.UpdatedAt != rec.UpdatedAt:
		GetLogger().Info("newer session published while processing, keeping it",
			logger.Float64("processed", rec.UpdatedAt),
			logger.Float64("pending", current.UpdatedAt))
	case err != nil && !errors.IsCategory(err, errors.CategoryHandoffCorruption):
		errs = append(errs, err)
	default:
		if err := c.store.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if allSucceeded {
		if err := c.remover.Remove(ctx, rec.SessionURL); err != nil {
			errs = append(errs, err)
		}
	} else {
		GetLogger().Info("keeping session video, not every clip was created",
			logger.String("session", rec.SessionURL))
	}

	if c.lifecycle.State() == StateConsuming {
		if err := c.lifecycle.Transition(StateCleared, rec.UpdatedAt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard deletes the pending record without processing it.
func (c *Channel) Discard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx); err != nil {
		return err
	}
	if c.lifecycle.State() == StatePublished {
		return c.lifecycle.Transition(StateCleared, c.lifecycle.PublishedAt())
	}
	return nil
}

// Status reads the current handoff state.
func (c *Channel) Status(ctx context.Context) (Status, error) {
	obs, wm, err := c.Observe(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{State: c.lifecycle.State(), Watermark: wm, Corrupt: obs.Corrupt}
	if obs.Found && !obs.Corrupt {
		rec := obs.Record
		st.Pending = &rec
		if st.State == StateIdle && ShouldProcess(wm, rec.UpdatedAt) {
			st.State = StatePublished
		}
	}
	return st, nil
}
