package jobqueue

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Job is one enqueued action with its retry state.
type Job struct {
	ID          string
	Action      Action
	Data        any
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	NextRetryAt time.Time
	Status      JobStatus
	LastError   error
	Config      RetryConfig
	started     time.Time
}

// Stats is a point-in-time snapshot of queue statistics.
type Stats struct {
	TotalJobs      int `json:"total"`
	SuccessfulJobs int `json:"successful"`
	FailedJobs     int `json:"failed"`
	DroppedJobs    int `json:"dropped"`
	RetryAttempts  int `json:"retryAttempts"`
	PendingJobs    int `json:"pending"`
	MaxQueueSize   int `json:"maxSize"`
}

// Option configures a JobQueue.
type Option func(*JobQueue)

// WithMaxJobs bounds the number of unfinished jobs.
func WithMaxJobs(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.maxJobs = n
		}
	}
}

// WithProcessingInterval sets how often due jobs are started.
func WithProcessingInterval(d time.Duration) Option {
	return func(q *JobQueue) {
		if d > 0 {
			q.interval = d
		}
	}
}

// WithJobTimeout bounds a single attempt. Zero disables the bound.
func WithJobTimeout(d time.Duration) Option {
	return func(q *JobQueue) {
		q.jobTimeout = d
	}
}

// WithObserver registers a final-state observer.
func WithObserver(o Observer) Option {
	return func(q *JobQueue) {
		q.observer = o
	}
}

// JobQueue manages jobs that can be retried.
type JobQueue struct {
	mu         sync.Mutex
	jobs       []*Job
	stats      Stats
	maxJobs    int
	interval   time.Duration
	jobTimeout time.Duration
	observer   Observer

	isRunning bool
	stopCh    chan struct{}
	cancel    context.CancelFunc
	loopDone  chan struct{}
	running   sync.WaitGroup
}

// NewJobQueue returns a stopped queue.
func NewJobQueue(opts ...Option) *JobQueue {
	q := &JobQueue{
		maxJobs:    1000,
		interval:   time.Second,
		jobTimeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start begins processing. Calling Start on a running queue does nothing.
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return
	}
	q.isRunning = true
	q.stopCh = make(chan struct{})
	q.loopDone = make(chan struct{})

	processCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	go q.processJobs(processCtx, q.stopCh, q.loopDone)
}

// Stop stops processing and waits up to timeout for running attempts.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	close(q.stopCh)
	loopDone := q.loopDone
	q.mu.Unlock()

	<-loopDone

	done := make(chan struct{})
	go func() {
		q.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-time.After(timeout):
		q.cancel()
		<-done
		return errors.Newf("timed out waiting for jobs to complete after %v", timeout).
			Component("jobqueue").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// Enqueue adds a job that is due immediately.
func (q *JobQueue) Enqueue(action Action, data any, config RetryConfig) (*Job, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}
	if q.unfinishedLocked() >= q.maxJobs {
		q.stats.DroppedJobs++
		return nil, errors.New(fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)).
			Component("jobqueue").
			Category(errors.CategoryJobQueue).
			Context("action", action.GetDescription()).
			Build()
	}

	maxAttempts := 1
	if config.Enabled {
		maxAttempts = config.MaxRetries + 1
	}
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		Action:      action,
		Data:        data,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      JobStatusPending,
		Config:      config,
	}
	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++
	return job, nil
}

func (q *JobQueue) unfinishedLocked() int {
	n := 0
	for _, job := range q.jobs {
		if !job.Status.IsFinal() {
			n++
		}
	}
	return n
}

func (q *JobQueue) processJobs(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.ProcessDue(ctx)
		}
	}
}

// ProcessDue drops finished jobs and starts every job that is due.
func (q *JobQueue) ProcessDue(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	active := q.jobs[:0]
	for _, job := range q.jobs {
		if !job.Status.IsFinal() {
			active = append(active, job)
		}
	}
	clear(q.jobs[len(active):])
	q.jobs = active

	now := time.Now()
	var due []*Job
	for _, job := range q.jobs {
		if (job.Status == JobStatusPending || job.Status == JobStatusRetrying) && !job.NextRetryAt.After(now) {
			job.Status = JobStatusRunning
			if job.started.IsZero() {
				job.started = now
			}
			due = append(due, job)
		}
	}
	q.running.Add(len(due))
	q.mu.Unlock()

	for _, job := range due {
		go func(j *Job) {
			defer q.running.Done()
			q.executeJob(ctx, j)
		}(job)
	}
}

func (q *JobQueue) executeJob(ctx context.Context, job *Job) {
	q.mu.Lock()
	job.Attempts++
	attempt := job.Attempts
	if attempt > 1 {
		q.stats.RetryAttempts++
	}
	q.mu.Unlock()

	log := GetLogger().With(
		logger.String("job_id", job.ID),
		logger.String("action", job.Action.GetDescription()))
	if attempt > 1 {
		log.Info("retrying job", logger.Int("attempt", attempt), logger.Int("max_attempts", job.MaxAttempts))
	}

	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if q.jobTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, q.jobTimeout)
	}
	defer cancel()

	err := runAction(execCtx, job)

	q.mu.Lock()
	var finished bool
	switch {
	case err == nil:
		job.Status = JobStatusCompleted
		job.LastError = nil
		q.stats.SuccessfulJobs++
		finished = true
	case attempt >= job.MaxAttempts || ctx.Err() != nil:
		job.Status = JobStatusFailed
		job.LastError = err
		q.stats.FailedJobs++
		finished = true
	default:
		job.Status = JobStatusRetrying
		job.LastError = err
		delay := calculateBackoffDelay(job.Config, attempt)
		job.NextRetryAt = time.Now().Add(delay)
		log.Warn("job failed, will retry",
			logger.Duration("delay", delay),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", job.MaxAttempts),
			logger.Error(err))
	}
	status, elapsed := job.Status, time.Since(job.started)
	q.mu.Unlock()

	if !finished {
		return
	}
	if status == JobStatusFailed {
		log.Error("job permanently failed", logger.Int("attempts", attempt), logger.Error(err))
	} else if attempt > 1 {
		log.Info("job succeeded after retries", logger.Int("attempts", attempt))
	}
	if q.observer != nil {
		q.observer.JobFinished(job.Action.GetDescription(), status, attempt, elapsed)
	}
}

// runAction executes the action and converts a panic into an error.
func runAction(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job execution panicked: %v", r).
				Component("jobqueue").
				Category(errors.CategoryJobQueue).
				Build()
		}
	}()
	return job.Action.Execute(ctx, job.Data)
}

// calculateBackoffDelay returns InitialDelay * Multiplier^(attempt-1) with ±10% jitter,
// capped at MaxDelay.
func calculateBackoffDelay(config RetryConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialDelay) * math.Pow(multiplier, float64(max(attempt-1, 0)))
	backoff *= 0.9 + 0.2*rand.Float64()
	if config.MaxDelay > 0 && backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

// GetStats returns a snapshot of the queue statistics.
func (q *JobQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.PendingJobs = q.unfinishedLocked()
	s.MaxQueueSize = q.maxJobs
	return s
}

// IsRunning reports whether the queue processes jobs.
func (q *JobQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isRunning
}
